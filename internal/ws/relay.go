package ws

import (
	"context"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/metrics"
	"go.uber.org/zap"
)

// sendFailedMessage is what the sender sees when a send cannot be stored.
const sendFailedMessage = "failed to send message"

// Appender persists one message.
type Appender interface {
	Append(ctx context.Context, from, to, content string, kind domain.Kind) (*domain.Message, error)
}

type Relay struct {
	messages Appender
	registry *Registry
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewRelay(messages Appender, registry *Registry, m *metrics.Metrics, log *zap.Logger) *Relay {
	return &Relay{messages: messages, registry: registry, metrics: m, log: log}
}

// OnSend handles one message:send from client. Any kind other than "sticker"
// is stored as text, and an event without recipient or content is dropped
// without a reply. A failed append is reported to the sending client only.
func (r *Relay) OnSend(ctx context.Context, from *Client, ev SendEvent) {
	if ev.To == "" || ev.Content == "" {
		r.metrics.SendsDropped.WithLabelValues(metrics.DropEmpty).Inc()
		return
	}
	m, err := r.messages.Append(ctx, from.userID, ev.To, ev.Content, domain.CoerceKind(ev.Kind))
	if err != nil {
		r.metrics.SendFailures.Inc()
		r.log.Warn("send failed", zap.String("user_id", from.userID), zap.String("conn_id", from.id), zap.Error(err))
		frame, encErr := encode(EventError, ErrorEvent{Message: sendFailedMessage})
		if encErr == nil {
			from.Deliver(frame)
		}
		return
	}
	r.metrics.MessagesStored.WithLabelValues("ws").Inc()
	r.Broadcast(m)
}

// Broadcast delivers message:new to every live connection of both
// participants and returns how many connections it reached.
func (r *Relay) Broadcast(m *domain.Message) int {
	frame, err := encode(EventMessageNew, m)
	if err != nil {
		r.log.Error("encode message:new", zap.String("message_id", m.ID), zap.Error(err))
		return 0
	}
	targets := r.registry.Connections(m.From)
	if m.To != m.From {
		targets = append(targets, r.registry.Connections(m.To)...)
	}
	delivered := 0
	for _, c := range targets {
		if c.Deliver(frame) {
			delivered++
		}
	}
	r.metrics.Deliveries.Add(float64(delivered))
	return delivered
}
