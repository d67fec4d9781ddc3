package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a user's presence as seen by this relay.
type Status struct {
	UserID   string     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Tracker records live connections per user.
type Tracker interface {
	Connect(ctx context.Context, userID, connID string) error
	Disconnect(ctx context.Context, userID, connID string) error
	// Touch keeps a live connection counted; call it while the connection stays open.
	Touch(ctx context.Context, userID, connID string) error
	Status(ctx context.Context, userID string) (Status, error)
}

// RedisTracker keeps a set of connection ids per user:
//   - <prefix>:conn:<user>      set of connection ids, expires after ttl
//   - <prefix>:last_seen:<user> unix seconds of the last disconnect
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (t *RedisTracker) connKey(userID string) string { return fmt.Sprintf("%s:conn:%s", t.prefix, userID) }
func (t *RedisTracker) lastSeenKey(userID string) string {
	return fmt.Sprintf("%s:last_seen:%s", t.prefix, userID)
}

func (t *RedisTracker) Connect(ctx context.Context, userID, connID string) error {
	return t.refresh(ctx, userID, connID)
}

// Touch re-adds connID and pushes the set expiry out by ttl again.
func (t *RedisTracker) Touch(ctx context.Context, userID, connID string) error {
	return t.refresh(ctx, userID, connID)
}

func (t *RedisTracker) refresh(ctx context.Context, userID, connID string) error {
	key := t.connKey(userID)
	pipe := t.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	if t.ttl > 0 {
		pipe.Expire(ctx, key, t.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTracker) Disconnect(ctx context.Context, userID, connID string) error {
	key := t.connKey(userID)
	pipe := t.client.TxPipeline()
	pipe.SRem(ctx, key, connID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if card.Val() == 0 {
		return t.client.Set(ctx, t.lastSeenKey(userID), t.now().Unix(), 0).Err()
	}
	return nil
}

func (t *RedisTracker) Status(ctx context.Context, userID string) (Status, error) {
	st := Status{UserID: userID}
	n, err := t.client.SCard(ctx, t.connKey(userID)).Result()
	if err != nil {
		return st, err
	}
	st.Online = n > 0
	raw, err := t.client.Get(ctx, t.lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if sec, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
		ls := time.Unix(sec, 0).UTC()
		st.LastSeen = &ls
	}
	return st, nil
}

// MemoryTracker serves presence from this process only.
type MemoryTracker struct {
	mu       sync.Mutex
	conns    map[string]map[string]struct{}
	lastSeen map[string]time.Time
	now      func() time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		conns:    make(map[string]map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (t *MemoryTracker) Connect(_ context.Context, userID, connID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[userID] = set
	}
	set[connID] = struct{}{}
	return nil
}

// Touch has nothing to extend in memory; it re-adds a dropped connection.
func (t *MemoryTracker) Touch(ctx context.Context, userID, connID string) error {
	return t.Connect(ctx, userID, connID)
}

func (t *MemoryTracker) Disconnect(_ context.Context, userID, connID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[userID]
	if !ok {
		return nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(t.conns, userID)
		t.lastSeen[userID] = t.now().UTC().Truncate(time.Second)
	}
	return nil
}

func (t *MemoryTracker) Status(_ context.Context, userID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{UserID: userID, Online: len(t.conns[userID]) > 0}
	if ls, ok := t.lastSeen[userID]; ok {
		st.LastSeen = &ls
	}
	return st, nil
}
