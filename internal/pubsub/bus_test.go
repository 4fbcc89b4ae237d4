package pubsub

import (
	"context"
	"sync"
	"testing"
)

type collector struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *collector) Deliver(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestMemoryBusPublishReachesMembersOnly(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	member := &collector{}
	outsider := &collector{}

	if err := bus.Join(ctx, "room_a", member); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := bus.Join(ctx, "room_b", outsider); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := bus.Publish(ctx, "room_a", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if member.count() != 1 {
		t.Fatalf("expected member to receive 1 payload, got %d", member.count())
	}
	if outsider.count() != 0 {
		t.Fatalf("expected outsider to receive nothing, got %d", outsider.count())
	}
}

func TestMemoryBusJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	sub := &collector{}
	for range 3 {
		if err := bus.Join(ctx, "room", sub); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	if err := bus.Publish(ctx, "room", []byte("once")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("duplicate join must not duplicate delivery, got %d", sub.count())
	}
}

func TestMemoryBusLeave(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	sub := &collector{}
	if err := bus.Join(ctx, "room", sub); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := bus.Leave(ctx, "room", sub); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if err := bus.Publish(ctx, "room", []byte("gone")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("expected no delivery after leave, got %d", sub.count())
	}

	// Leaving again, or leaving a channel never joined, is a silent no-op.
	if err := bus.Leave(ctx, "room", sub); err != nil {
		t.Fatalf("repeat leave: %v", err)
	}
	if err := bus.Leave(ctx, "never_joined", sub); err != nil {
		t.Fatalf("leave absent: %v", err)
	}
}

func TestRegistryFirstAndLastMember(t *testing.T) {
	reg := newRegistry()
	a := &collector{}
	b := &collector{}

	if first := reg.add("room", a); !first {
		t.Fatal("expected first member to be reported")
	}
	if first := reg.add("room", b); first {
		t.Fatal("second member must not be reported as first")
	}
	if last := reg.remove("room", a); last {
		t.Fatal("member remaining, must not report last")
	}
	if last := reg.remove("room", b); !last {
		t.Fatal("expected last member to be reported")
	}
}
