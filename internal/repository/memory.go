package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryMessageStore keeps messages in insertion order. Timestamps never go
// backwards, so insertion order is also (timestamp, id) order.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	msgs []domain.Message
	last time.Time
	now  func() time.Time
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{now: time.Now}
}

func (s *MemoryMessageStore) Append(ctx context.Context, d domain.Draft) (*domain.Message, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Store("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := domain.StampTime(s.now())
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	m := domain.Message{
		ID:        primitive.NewObjectID().Hex(),
		From:      d.From,
		To:        d.To,
		Content:   d.Content,
		Kind:      d.Kind,
		Timestamp: ts,
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *MemoryMessageStore) History(ctx context.Context, a, b string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Store("history", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Message{}
	for _, m := range s.msgs {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryMessageStore) LatestPerContact(ctx context.Context, userID string) (map[string]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Store("latest per contact", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Message)
	for _, m := range s.msgs {
		if m.From != userID && m.To != userID {
			continue
		}
		out[m.Other(userID)] = m
	}
	return out, nil
}

type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserDirectory(users ...domain.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *MemoryUserDirectory) Put(u domain.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryUserDirectory) Get(_ context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, errs.NotFound("user", id)
	}
	return &u, nil
}

func (d *MemoryUserDirectory) FindByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (d *MemoryUserDirectory) ListExcept(_ context.Context, id string) ([]domain.User, error) {
	d.mu.RLock()
	out := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
