package ws

import "sync"

// Registry maps user ids to their live clients. One Registry is owned by
// one Server for its whole lifetime.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[*Client]struct{}
	count  int
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]map[*Client]struct{})}
}

// Register adds c. It fails once the registry is closed.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	set, ok := r.byUser[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.byUser[c.userID] = set
	}
	if _, dup := set[c]; dup {
		return true
	}
	set[c] = struct{}{}
	r.count++
	return true
}

// Unregister removes c and reports whether it was registered, so exactly one
// of any number of concurrent calls returns true.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byUser, c.userID)
	}
	r.count--
	return true
}

// Connections returns a snapshot of userID's clients.
func (r *Registry) Connections(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Close refuses further registrations and closes every client. Clients stay
// registered until their own connection loop unregisters them.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Client, 0, r.count)
	for _, set := range r.byUser {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}
