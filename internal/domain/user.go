package domain

import "time"

// User is read-only reference data owned by the user service.
type User struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	Email    string `json:"email,omitempty" mapstructure:"email"`
	Phone    string `json:"phone,omitempty" mapstructure:"phone"`
	PhotoURL string `json:"photoURL" mapstructure:"photo_url"`
	Bio      string `json:"bio,omitempty" mapstructure:"bio"`
}

// ConversationSummary is one inbox row. Placeholder rows carry an empty
// LastMessage and nil pointers.
type ConversationSummary struct {
	ContactID       string     `json:"contactId"`
	Name            string     `json:"name"`
	PhotoURL        string     `json:"photoURL"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageAt   *time.Time `json:"lastMessageAt"`
	LastMessageFrom *string    `json:"lastMessageFrom"`
	LastMessageKind *Kind      `json:"lastMessageKind"`

	lastMessageID string
}

func NewSummary(contact User, last Message) ConversationSummary {
	at, from, kind := last.Timestamp, last.From, last.Kind
	return ConversationSummary{
		ContactID:       contact.ID,
		Name:            contact.Name,
		PhotoURL:        contact.PhotoURL,
		LastMessage:     last.Content,
		LastMessageAt:   &at,
		LastMessageFrom: &from,
		LastMessageKind: &kind,
		lastMessageID:   last.ID,
	}
}

func PlaceholderSummary(contact User) ConversationSummary {
	return ConversationSummary{
		ContactID: contact.ID,
		Name:      contact.Name,
		PhotoURL:  contact.PhotoURL,
	}
}

// Newer reports whether s should rank before o in the inbox.
func (s ConversationSummary) Newer(o ConversationSummary) bool {
	if s.LastMessageAt == nil || o.LastMessageAt == nil {
		return s.LastMessageAt != nil
	}
	if !s.LastMessageAt.Equal(*o.LastMessageAt) {
		return s.LastMessageAt.After(*o.LastMessageAt)
	}
	return s.lastMessageID > o.lastMessageID
}
