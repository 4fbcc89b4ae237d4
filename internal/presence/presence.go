package presence

import (
	"context"
	"sort"
	"sync"
)

// Store tracks which identities are online. Presence is a reference count per
// identity: an identity with several concurrent sessions stays online until
// the last one disconnects.
type Store interface {
	// Add registers one session for the identity. Returns true when this is
	// the identity's first live session.
	Add(ctx context.Context, identity string) (first bool, err error)

	// Remove unregisters one session. Returns true when no sessions remain.
	Remove(ctx context.Context, identity string) (last bool, err error)

	// Members returns the identities currently online, sorted.
	Members(ctx context.Context) ([]string, error)

	// Heartbeat refreshes the identity's liveness so a crashed process does
	// not leave it online forever.
	Heartbeat(ctx context.Context, identity string) error
}

// Memory is a single-process Store. Liveness expiry is unnecessary here: if
// the process dies the map dies with it.
type Memory struct {
	mu   sync.Mutex
	refs map[string]int
}

// NewMemory creates an in-process presence store.
func NewMemory() *Memory {
	return &Memory{refs: make(map[string]int)}
}

func (m *Memory) Add(_ context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[identity]++
	return m.refs[identity] == 1, nil
}

func (m *Memory) Remove(_ context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.refs[identity]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(m.refs, identity)
		return true, nil
	}
	m.refs[identity] = n - 1
	return false, nil
}

func (m *Memory) Members(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.refs))
	for identity := range m.refs {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Heartbeat(context.Context, string) error { return nil }
