package domain

import (
	"time"

	"github.com/fathima-sithara/relay-service/internal/errs"
)

type Kind string

const (
	KindText    Kind = "text"
	KindSticker Kind = "sticker"
)

func (k Kind) Valid() bool {
	return k == KindText || k == KindSticker
}

// CoerceKind maps anything other than exactly "sticker" to text.
func CoerceKind(s string) Kind {
	if Kind(s) == KindSticker {
		return KindSticker
	}
	return KindText
}

// Message is immutable once persisted.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Draft is a message that has not been persisted yet.
type Draft struct {
	From    string
	To      string
	Content string
	Kind    Kind
}

func (d Draft) Validate() error {
	switch {
	case d.From == "":
		return errs.Validation("from", "is required")
	case d.To == "":
		return errs.Validation("to", "is required")
	case d.Content == "":
		return errs.Validation("content", "is required")
	case d.Kind == "":
		return errs.Validation("kind", "is required")
	case !d.Kind.Valid():
		return errs.Validation("kind", "must be one of text sticker")
	case d.From == d.To:
		return errs.Validation("to", "must differ from sender")
	}
	return nil
}

// Other returns the participant of m that is not userID.
func (m Message) Other(userID string) string {
	if m.From == userID {
		return m.To
	}
	return m.From
}

// StampTime rounds t up to the next millisecond in UTC. Stored timestamps keep
// millisecond precision and must never be earlier than the append call.
func StampTime(t time.Time) time.Time {
	t = t.UTC()
	r := t.Truncate(time.Millisecond)
	if r.Before(t) {
		r = r.Add(time.Millisecond)
	}
	return r
}
