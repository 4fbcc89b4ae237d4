package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/history"
	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/proto"
	"github.com/pairwave/pairwave-server/internal/pubsub"
	"github.com/pairwave/pairwave-server/internal/push"
)

// Router classifies inbound client events and dispatches each to its handler:
// persist, broadcast, targeted send, or transient relay. Undecodable frames
// are dropped without disturbing the connection, and persistence failures
// never abort the in-memory fan-out.
type Router struct {
	bus      pubsub.Bus
	presence presence.Store
	history  history.Gateway
	push     push.Bridge
	log      *zerolog.Logger
}

// NewRouter builds a router over the given collaborators.
func NewRouter(bus pubsub.Bus, pres presence.Store, gw history.Gateway, bridge push.Bridge, logger *zerolog.Logger) *Router {
	return &Router{
		bus:      bus,
		presence: pres,
		history:  gw,
		push:     bridge,
		log:      logger,
	}
}

// Handle processes one inbound frame from the session's client. Per-connection
// calls are strictly sequential: the transport read loop invokes Handle and
// does not read the next frame until it returns.
func (r *Router) Handle(ctx context.Context, s *Session, frame []byte) {
	ev, err := proto.Decode(frame)
	if err != nil {
		r.log.Debug().Err(err).Str("session_id", s.ID).Msg("dropping undecodable frame")
		return
	}

	switch ev := ev.(type) {
	case proto.Chat:
		r.handleChat(ctx, s, ev)
	case proto.CallSignal:
		r.handleCallSignal(ctx, s, ev)
	case proto.Typing:
		r.handleTyping(ctx, s, ev)
	case proto.ReadReceipt:
		r.handleReadReceipt(ctx, s, ev)
	case proto.OnlineUsersQuery:
		r.handleOnlineUsers(ctx, s)
	case proto.Ignored:
		r.log.Debug().Str("type", ev.Type).Str("session_id", s.ID).Msg("dropping unknown event type")
	}
}

// handleChat persists the message under the deterministic pair room computed
// from sender and recipient (not the session's nominal room), then fans it out
// to both inboxes so each participant sees it wherever they are.
func (r *Router) handleChat(ctx context.Context, s *Session, ev proto.Chat) {
	room := s.Room
	if ev.Recipient != "" {
		room = PairRoomName(s.Identity, ev.Recipient)
	}

	out := proto.ChatEvent{
		Type:          proto.TypeChat,
		Sender:        s.Identity,
		Room:          room,
		Recipient:     ev.Recipient,
		Message:       ev.Message,
		TempMessageID: ev.TempMessageID,
	}

	rec := &history.MessageRecord{
		Room:      room,
		Sender:    s.Identity,
		Body:      ev.Message,
		Timestamp: time.Now().UTC(),
	}
	if id, err := r.history.AppendMessage(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("room", room).Msg("message persist failed, relaying without id")
	} else {
		out.MessageID = id
		out.Timestamp = rec.Timestamp.Format(time.RFC3339Nano)
	}

	payload, err := proto.Encode(out)
	if err != nil {
		return
	}

	r.publish(ctx, UserChannel(s.Identity), payload)
	if ev.Recipient != "" && ev.Recipient != s.Identity {
		r.publish(ctx, UserChannel(ev.Recipient), payload)
		r.push.Notify(ctx, ev.Recipient,
			"New message from "+s.Identity, ev.Message, "/chat/room/"+s.Identity+"/")
	}
}

// handleCallSignal appends the event to the call log and relays it to the
// target identity's inbox when one is named, else to the nominal room.
func (r *Router) handleCallSignal(ctx context.Context, s *Session, ev proto.CallSignal) {
	room := ev.Room
	if room == "" {
		room = s.Room
	}

	out := proto.CallEvent{
		Type:        ev.Kind,
		Sender:      s.Identity,
		ToUser:      ev.To,
		Room:        room,
		Offer:       ev.Offer,
		Answer:      ev.Answer,
		Candidate:   ev.Candidate,
		IsGroupCall: ev.IsGroupCall,
	}

	rec := &history.CallEventRecord{
		Room:      room,
		Sender:    s.Identity,
		Recipient: ev.To,
		Type:      ev.Kind,
		Payload:   callPayload(ev),
		Timestamp: time.Now().UTC(),
	}
	if err := r.history.AppendCallEvent(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("type", ev.Kind).Msg("call event persist failed, relaying anyway")
	}

	payload, err := proto.Encode(out)
	if err != nil {
		return
	}

	if ev.To != "" {
		r.publish(ctx, UserChannel(ev.To), payload)
	} else {
		r.publish(ctx, RoomChannel(room), payload)
	}

	if ev.To != "" {
		switch ev.Kind {
		case proto.TypeCall:
			r.push.Notify(ctx, ev.To, "Pairwave Call",
				"Incoming call from "+s.Identity, "/chat/room/"+s.Identity+"/")
		case proto.TypeMissedCall:
			r.push.Notify(ctx, ev.To, "Pairwave Call",
				"Missed call from "+s.Identity, "/chat/room/"+s.Identity+"/")
		}
	}
}

// handleTyping relays the flag to the room only. The sender's own session
// suppresses the echo on delivery.
func (r *Router) handleTyping(ctx context.Context, s *Session, ev proto.Typing) {
	room := ev.Room
	if room == "" {
		room = s.Room
	}
	payload, err := proto.Encode(proto.NewTypingIndicator(s.Identity, room, ev.IsTyping))
	if err != nil {
		return
	}
	r.publish(ctx, RoomChannel(room), payload)
}

// handleReadReceipt updates the persisted message and confirms to the reader's
// own inbox only; nothing is broadcast room-wide.
func (r *Router) handleReadReceipt(ctx context.Context, s *Session, ev proto.ReadReceipt) {
	if ev.MessageID == "" {
		return
	}

	if err := r.history.MarkRead(ctx, ev.MessageID, time.Now().UTC()); err != nil {
		r.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("read receipt persist failed")
	}

	payload, err := proto.Encode(proto.NewReadReceiptUpdate(ev.MessageID))
	if err != nil {
		return
	}
	r.publish(ctx, UserChannel(s.Identity), payload)
}

// handleOnlineUsers replies with the presence snapshot to the requesting
// session only.
func (r *Router) handleOnlineUsers(ctx context.Context, s *Session) {
	members, err := r.presence.Members(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("presence snapshot failed")
		members = nil
	}
	payload, err := proto.Encode(proto.NewOnlineUsersList(members))
	if err != nil {
		return
	}
	s.Send(payload)
}

func (r *Router) publish(ctx context.Context, channel string, payload []byte) {
	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.log.Warn().Err(err).Str("channel", channel).Msg("publish failed")
	}
}

func callPayload(ev proto.CallSignal) []byte {
	payload, err := json.Marshal(struct {
		Offer       json.RawMessage `json:"offer,omitempty"`
		Answer      json.RawMessage `json:"answer,omitempty"`
		Candidate   json.RawMessage `json:"candidate,omitempty"`
		IsGroupCall bool            `json:"is_group_call,omitempty"`
	}{ev.Offer, ev.Answer, ev.Candidate, ev.IsGroupCall})
	if err != nil {
		return nil
	}
	return payload
}
