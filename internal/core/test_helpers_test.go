package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/history"
	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/pubsub"
)

// fakeGateway is an in-memory history.Gateway. Setting fail makes every
// operation error, simulating an unavailable durable store.
type fakeGateway struct {
	mu       sync.Mutex
	fail     bool
	nextID   int
	messages map[string]*history.MessageRecord
	calls    []history.CallEventRecord
	subs     map[string][]byte
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages: make(map[string]*history.MessageRecord),
		subs:     make(map[string][]byte),
	}
}

var errGatewayDown = errors.New("gateway unavailable")

func (g *fakeGateway) AppendMessage(_ context.Context, rec *history.MessageRecord) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errGatewayDown
	}
	g.nextID++
	rec.ID = fmt.Sprintf("msg-%d", g.nextID)
	cp := *rec
	g.messages[rec.ID] = &cp
	return rec.ID, nil
}

func (g *fakeGateway) AppendCallEvent(_ context.Context, rec *history.CallEventRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	g.calls = append(g.calls, *rec)
	return nil
}

func (g *fakeGateway) MarkRead(_ context.Context, messageID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	rec, ok := g.messages[messageID]
	if !ok {
		return fmt.Errorf("message %s not found", messageID)
	}
	rec.Read = true
	rec.ReadAt = &at
	return nil
}

func (g *fakeGateway) RecentMessages(_ context.Context, room string, limit int) ([]history.MessageRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errGatewayDown
	}
	var out []history.MessageRecord
	for _, rec := range g.messages {
		if rec.Room == room {
			out = append(out, *rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGateway) RecentCallEvents(_ context.Context, recipient string, limit int) ([]history.CallEventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errGatewayDown
	}
	var out []history.CallEventRecord
	for _, rec := range g.calls {
		if rec.Recipient == recipient {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGateway) SaveSubscription(_ context.Context, identity string, descriptor []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	g.subs[identity] = descriptor
	return nil
}

func (g *fakeGateway) Subscription(_ context.Context, identity string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errGatewayDown
	}
	return g.subs[identity], nil
}

func (g *fakeGateway) Close() error { return nil }

func (g *fakeGateway) message(id string) (history.MessageRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.messages[id]
	if !ok {
		return history.MessageRecord{}, false
	}
	return *rec, true
}

func (g *fakeGateway) setFail(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

// recordingPush captures notifications instead of delivering them.
type recordingPush struct {
	mu    sync.Mutex
	sends []pushSend
}

type pushSend struct {
	Identity, Title, Body, URL string
}

func (p *recordingPush) Notify(_ context.Context, identity, title, body, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, pushSend{identity, title, body, url})
}

func (p *recordingPush) sent() []pushSend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushSend(nil), p.sends...)
}

type relayFixture struct {
	bus      *pubsub.MemoryBus
	presence *presence.Memory
	gateway  *fakeGateway
	push     *recordingPush
	router   *Router
}

func newRelayFixture() *relayFixture {
	bus := pubsub.NewMemoryBus()
	pres := presence.NewMemory()
	gw := newFakeGateway()
	p := &recordingPush{}
	logger := zerolog.New(nil)
	return &relayFixture{
		bus:      bus,
		presence: pres,
		gateway:  gw,
		push:     p,
		router:   NewRouter(bus, pres, gw, p, &logger),
	}
}

// startSession creates and starts a session, failing the test on error.
func (f *relayFixture) startSession(t *testing.T, id, identity, room string) *Session {
	t.Helper()
	logger := zerolog.New(nil)
	s := NewSession(id, identity, room, f.bus, f.presence, 0, &logger)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start session %s: %v", id, err)
	}
	t.Cleanup(s.Close)
	return s
}

// mustPayload polls the session's outbound queue for an event of the given
// type, skipping unrelated events.
func mustPayload(t *testing.T, s *Session, eventType string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case payload := <-s.Outbound():
			var decoded map[string]any
			if err := json.Unmarshal(payload, &decoded); err != nil {
				continue
			}
			if decoded["type"] == eventType {
				return decoded
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected outbound event %q not received", eventType)
	return nil
}

// noPayload asserts that no event of the given type is queued.
func noPayload(t *testing.T, s *Session, eventType string) {
	t.Helper()

	for {
		select {
		case payload := <-s.Outbound():
			var decoded map[string]any
			if err := json.Unmarshal(payload, &decoded); err != nil {
				continue
			}
			if decoded["type"] == eventType {
				t.Fatalf("unexpected outbound event %q: %v", eventType, decoded)
			}
		default:
			return
		}
	}
}
