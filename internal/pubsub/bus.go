package pubsub

import (
	"context"
	"sync"
)

// Subscriber receives payloads published to channels it has joined. Deliver
// must not block; slow subscribers drop payloads.
type Subscriber interface {
	Deliver(payload []byte)
}

// Bus is the named-channel fan-out layer. Join is idempotent and Leave of an
// absent member is a no-op. A payload published to a channel reaches every
// current member of that channel and nobody else.
type Bus interface {
	Join(ctx context.Context, channel string, sub Subscriber) error
	Leave(ctx context.Context, channel string, sub Subscriber) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// registry tracks local channel membership. Both bus implementations share it.
type registry struct {
	mu       sync.RWMutex
	channels map[string]map[Subscriber]struct{}
}

func newRegistry() *registry {
	return &registry{channels: make(map[string]map[Subscriber]struct{})}
}

// add inserts sub into channel. Returns true if the channel gained its first member.
func (r *registry) add(channel string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[Subscriber]struct{})
		r.channels[channel] = members
	}
	members[sub] = struct{}{}
	return !ok
}

// remove deletes sub from channel. Returns true if the channel lost its last member.
func (r *registry) remove(channel string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channel]
	if !ok {
		return false
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(r.channels, channel)
		return true
	}
	return false
}

func (r *registry) dispatch(channel string, payload []byte) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.channels[channel]))
	for sub := range r.channels[channel] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(payload)
	}
}

// MemoryBus is a single-process Bus. It backs tests and redis-less deployments.
type MemoryBus struct {
	reg *registry
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{reg: newRegistry()}
}

func (b *MemoryBus) Join(_ context.Context, channel string, sub Subscriber) error {
	b.reg.add(channel, sub)
	return nil
}

func (b *MemoryBus) Leave(_ context.Context, channel string, sub Subscriber) error {
	b.reg.remove(channel, sub)
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.reg.dispatch(channel, payload)
	return nil
}

func (b *MemoryBus) Close() error { return nil }
