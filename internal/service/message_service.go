package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/events"
	"github.com/fathima-sithara/relay-service/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Content string `json:"content" validate:"required"`
	Kind    string `json:"kind" validate:"required,oneof=text sticker"`
}

func formatValidationErrors(err error) []errs.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]errs.FieldError, len(ve))
	for i, fe := range ve {
		out[i] = errs.FieldError{Field: fe.Field(), Tag: fe.Tag()}
		switch fe.Tag() {
		case "required":
			out[i].Message = fmt.Sprintf("%s is required", fe.Field())
		case "oneof":
			out[i].Message = fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
		default:
			out[i].Message = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
	}
	return out
}

// jsonFieldName reports validation errors under the json field name.
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

type MessageService struct {
	store    repository.MessageStore
	users    repository.UserDirectory
	events   events.Publisher
	validate *validator.Validate
	log      *zap.Logger
}

func NewMessageService(store repository.MessageStore, users repository.UserDirectory, pub events.Publisher, log *zap.Logger) *MessageService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &MessageService{store: store, users: users, events: pub, validate: v, log: log}
}

// Append persists one message and announces it. Both send paths end here.
func (s *MessageService) Append(ctx context.Context, from, to, content string, kind domain.Kind) (*domain.Message, error) {
	m, err := s.store.Append(ctx, domain.Draft{From: from, To: to, Content: content, Kind: kind})
	if err != nil {
		return nil, err
	}
	s.events.PublishMessageCreated(ctx, *m)
	s.log.Debug("message stored", zap.String("id", m.ID), zap.String("from", m.From), zap.String("to", m.To))
	return m, nil
}

// Send is the strict request path: every field is required, kind must be in
// the enum and the recipient must exist.
func (s *MessageService) Send(ctx context.Context, from string, req SendMessageRequest) (*domain.Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &errs.RequestError{Fields: formatValidationErrors(err)}
	}
	if _, err := s.users.Get(ctx, req.To); err != nil {
		return nil, err
	}
	return s.Append(ctx, from, req.To, req.Content, domain.Kind(req.Kind))
}

// History returns the conversation between viewer and contact, oldest first.
func (s *MessageService) History(ctx context.Context, viewerID, contactID string) ([]domain.Message, error) {
	if _, err := s.users.Get(ctx, contactID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, viewerID, contactID)
}
