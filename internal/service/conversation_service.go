package service

import (
	"context"
	"sort"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/repository"
	"go.uber.org/zap"
)

type ConversationService struct {
	store repository.MessageStore
	users repository.UserDirectory
	log   *zap.Logger
}

func NewConversationService(store repository.MessageStore, users repository.UserDirectory, log *zap.Logger) *ConversationService {
	return &ConversationService{store: store, users: users, log: log}
}

// ListConversations returns one row per contact the viewer has exchanged
// messages with, newest first. A viewer with no such contact gets every
// other user as a placeholder row instead; the two lists are never merged.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	latest, err := s.store.LatestPerContact(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ConversationSummary, 0, len(latest))
	if len(latest) > 0 {
		ids := make([]string, 0, len(latest))
		for id := range latest {
			ids = append(ids, id)
		}
		profiles, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for id, m := range latest {
			u, ok := profiles[id]
			if !ok {
				s.log.Debug("conversation contact has no profile", zap.String("viewer", viewerID), zap.String("contact", id))
				continue
			}
			out = append(out, domain.NewSummary(u, m))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	}
	if len(out) > 0 {
		return out, nil
	}

	others, err := s.users.ListExcept(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	for _, u := range others {
		out = append(out, domain.PlaceholderSummary(u))
	}
	return out, nil
}
