package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/proto"
	"github.com/pairwave/pairwave-server/internal/pubsub"
)

// SessionState is the lifecycle state of a connection session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

const (
	sendQueueSize   = 32
	teardownTimeout = 5 * time.Second
)

// Session is the server-side half of one live client connection. It owns the
// connection's identity, nominal room, and channel memberships. Exactly one
// session exists per connection; an identity may hold several concurrent
// sessions.
type Session struct {
	ID       string
	Identity string
	Room     string

	bus       pubsub.Bus
	presence  presence.Store
	heartbeat time.Duration
	log       *zerolog.Logger

	state         atomic.Int32
	send          chan []byte
	closeOnce     sync.Once
	stopHeartbeat chan struct{}
}

// NewSession creates a session in the CONNECTING state.
func NewSession(id, identity, room string, bus pubsub.Bus, pres presence.Store, heartbeat time.Duration, logger *zerolog.Logger) *Session {
	return &Session{
		ID:            id,
		Identity:      identity,
		Room:          room,
		bus:           bus,
		presence:      pres,
		heartbeat:     heartbeat,
		log:           logger,
		send:          make(chan []byte, sendQueueSize),
		stopHeartbeat: make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Anonymous reports whether the session carries the unauthenticated sentinel.
func (s *Session) Anonymous() bool {
	return s.Identity == AnonymousIdentity
}

// Outbound is the queue of payloads to write to the client transport.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Deliver implements pubsub.Subscriber. Relayed payloads are forwarded
// verbatim, except a typing indicator carrying the session's own identity,
// which is never echoed back. Payloads arriving after teardown, or faster
// than the transport drains them, are dropped.
func (s *Session) Deliver(payload []byte) {
	if s.State() == StateClosed {
		return
	}
	var peek struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(payload, &peek); err == nil &&
		peek.Type == proto.TypeTypingIndicator && peek.Username == s.Identity {
		return
	}
	s.enqueue(payload)
}

// Send queues a payload addressed to this session only.
func (s *Session) Send(payload []byte) {
	if s.State() == StateClosed {
		return
	}
	s.enqueue(payload)
}

func (s *Session) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	default:
		s.log.Debug().Str("session_id", s.ID).Msg("dropping payload for slow session")
	}
}

// Start moves the session from CONNECTING to ACTIVE: it joins the inbox, room
// and global presence channels, registers presence, sends the presence
// snapshot to this session only, and announces the join to the room. A
// channel join failure aborts the handshake; presence faults do not.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return fmt.Errorf("session %s already started", s.ID)
	}

	for _, channel := range s.channels() {
		if err := s.bus.Join(ctx, channel, s); err != nil {
			return fmt.Errorf("join %s: %w", channel, err)
		}
	}

	if !s.Anonymous() {
		first, err := s.presence.Add(ctx, s.Identity)
		if err != nil {
			// Non-fatal: the heartbeat re-registers liveness on its next tick.
			s.log.Warn().Err(err).Str("identity", s.Identity).Msg("presence add failed")
		} else if first {
			s.broadcastStatus(ctx, true)
		}

		s.sendSnapshot(ctx)

		go s.heartbeatLoop()
	}

	s.publishRoomEvent(ctx, proto.TypeJoin)

	s.log.Info().
		Str("session_id", s.ID).
		Str("identity", s.Identity).
		Str("room", s.Room).
		Msg("session active")
	return nil
}

// Close tears the session down: channel memberships, presence, and the leave
// announcement. It is idempotent, runs exactly once no matter how many paths
// race into it, and uses a fresh context so teardown completes even when the
// connection context is already cancelled.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.stopHeartbeat)

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		for _, channel := range s.channels() {
			if err := s.bus.Leave(ctx, channel, s); err != nil {
				s.log.Warn().Err(err).Str("channel", channel).Msg("channel leave failed")
			}
		}

		if !s.Anonymous() {
			last, err := s.presence.Remove(ctx, s.Identity)
			if err != nil {
				s.log.Warn().Err(err).Str("identity", s.Identity).Msg("presence remove failed")
			} else if last {
				s.broadcastStatus(ctx, false)
			}
		}

		s.publishRoomEvent(ctx, proto.TypeLeave)

		s.log.Info().
			Str("session_id", s.ID).
			Str("identity", s.Identity).
			Str("room", s.Room).
			Msg("session closed")
	})
}

func (s *Session) channels() []string {
	return []string{
		UserChannel(s.Identity),
		RoomChannel(s.Room),
		GlobalPresenceChannel,
	}
}

func (s *Session) broadcastStatus(ctx context.Context, online bool) {
	payload, err := proto.Encode(proto.NewUserStatus(s.Identity, online))
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, GlobalPresenceChannel, payload); err != nil {
		s.log.Warn().Err(err).Str("identity", s.Identity).Msg("presence broadcast failed")
	}
}

// sendSnapshot delivers the current presence set to this session only. The
// session's own identity is omitted: a freshly connected client wants to know
// who else is there.
func (s *Session) sendSnapshot(ctx context.Context) {
	members, err := s.presence.Members(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("presence snapshot failed")
		members = nil
	}
	others := make([]string, 0, len(members))
	for _, m := range members {
		if m != s.Identity {
			others = append(others, m)
		}
	}
	payload, err := proto.Encode(proto.NewOnlineUsersList(others))
	if err != nil {
		return
	}
	s.Send(payload)
}

func (s *Session) publishRoomEvent(ctx context.Context, kind string) {
	payload, err := proto.Encode(proto.NewRoomEvent(kind, s.Identity, s.Room))
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, RoomChannel(s.Room), payload); err != nil {
		s.log.Debug().Err(err).Str("room", s.Room).Str("kind", kind).Msg("room event publish failed")
	}
}

func (s *Session) heartbeatLoop() {
	if s.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			if err := s.presence.Heartbeat(ctx, s.Identity); err != nil {
				s.log.Debug().Err(err).Str("identity", s.Identity).Msg("presence heartbeat failed")
			}
			cancel()
		case <-s.stopHeartbeat:
			return
		}
	}
}
