package api

import (
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/middleware"
	"github.com/fathima-sithara/relay-service/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handlers struct {
	d Deps
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{d: d}
}

func (h *Handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	list, err := h.d.Conversations.ListConversations(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return c.JSON(list)
}

func (h *Handlers) history(c *fiber.Ctx) error {
	msgs, err := h.d.Messages.History(c.UserContext(), middleware.UserID(c), c.Params("contactId"))
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(msgs)
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req service.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return errs.Validation("body", "must be a JSON object")
	}
	m, err := h.d.Messages.Send(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	h.d.Metrics.MessagesStored.WithLabelValues("rest").Inc()
	if h.d.Config.Relay.RestFanout && h.d.Relay != nil {
		n := h.d.Relay.Broadcast(m)
		h.d.Log.Debug("rest send relayed", zap.String("message_id", m.ID), zap.Int("connections", n))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "message sent", "data": m})
}

func (h *Handlers) listUsers(c *fiber.Ctx) error {
	users, err := h.d.Users.ListExcept(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	if users == nil {
		users = []domain.User{}
	}
	return c.JSON(users)
}

func (h *Handlers) getUser(c *fiber.Ctx) error {
	u, err := h.d.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *Handlers) presence(c *fiber.Ctx) error {
	st, err := h.d.Presence.Status(c.UserContext(), c.Params("userId"))
	if err != nil {
		return errs.Store("presence", err)
	}
	return c.JSON(st)
}
