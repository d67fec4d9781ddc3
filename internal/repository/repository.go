package repository

import (
	"context"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

// MessageStore is the append-only message log.
type MessageStore interface {
	// Append validates d, assigns id and server timestamp, and persists it.
	Append(ctx context.Context, d domain.Draft) (*domain.Message, error)
	// History returns every message between a and b in either direction,
	// oldest first with ties broken by id.
	History(ctx context.Context, a, b string) ([]domain.Message, error)
	// LatestPerContact maps each contact of userID to the newest message
	// exchanged with them.
	LatestPerContact(ctx context.Context, userID string) (map[string]domain.Message, error)
}

// UserDirectory is read-only access to user profiles.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	// ListExcept returns every user other than id, sorted by name.
	ListExcept(ctx context.Context, id string) ([]domain.User, error)
}
