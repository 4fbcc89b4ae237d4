package proto

import (
	"encoding/json"
	"fmt"
)

// Client event type discriminators.
const (
	TypeChat           = "chat"
	TypeTyping         = "typing"
	TypeReadReceipt    = "read_receipt"
	TypeGetOnlineUsers = "get_online_users"

	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeICE        = "ice"
	TypeCall       = "call"
	TypeMissedCall = "missed_call"
	TypeEndCall    = "end_call"
	TypeReject     = "reject"
)

// Inbound is a decoded client event. The set of implementations is closed;
// unrecognized types decode to Ignored.
type Inbound interface {
	inbound()
}

// Chat is a chat message addressed to a single recipient.
type Chat struct {
	Room          string
	Recipient     string
	Message       string
	TempMessageID string
}

// Typing carries a typing on/off flag for the current room.
type Typing struct {
	Room     string
	IsTyping bool
}

// ReadReceipt marks a previously delivered message as read.
type ReadReceipt struct {
	Room      string
	MessageID string
}

// OnlineUsersQuery asks for the current presence snapshot.
type OnlineUsersQuery struct{}

// CallSignal is a WebRTC signaling event. SDP and ICE payloads are opaque to
// the relay and forwarded as-is.
type CallSignal struct {
	Kind        string // one of the call type constants
	To          string
	Room        string
	Offer       json.RawMessage
	Answer      json.RawMessage
	Candidate   json.RawMessage
	IsGroupCall bool
}

// Ignored is an event with an unknown type tag. The router drops it.
type Ignored struct {
	Type string
}

func (Chat) inbound()             {}
func (Typing) inbound()           {}
func (ReadReceipt) inbound()      {}
func (OnlineUsersQuery) inbound() {}
func (CallSignal) inbound()       {}
func (Ignored) inbound()          {}

// IsCallType reports whether t is one of the call signaling event types.
func IsCallType(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICE, TypeCall, TypeMissedCall, TypeEndCall, TypeReject:
		return true
	}
	return false
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a raw client frame into a typed event. Unknown fields are
// stripped by the typed unmarshal; unknown types map to Ignored. A non-nil
// error means the frame was not decodable at all.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}

	switch env.Type {
	case TypeChat:
		var raw struct {
			Room          string `json:"room"`
			Recipient     string `json:"recipient"`
			Message       string `json:"message"`
			TempMessageID string `json:"temp_message_id"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return Chat{
			Room:          raw.Room,
			Recipient:     raw.Recipient,
			Message:       raw.Message,
			TempMessageID: raw.TempMessageID,
		}, nil

	case TypeTyping:
		var raw struct {
			Room     string `json:"room"`
			IsTyping bool   `json:"is_typing"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode typing: %w", err)
		}
		return Typing{Room: raw.Room, IsTyping: raw.IsTyping}, nil

	case TypeReadReceipt:
		var raw struct {
			Room      string `json:"room"`
			MessageID string `json:"message_id"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode read receipt: %w", err)
		}
		return ReadReceipt{Room: raw.Room, MessageID: raw.MessageID}, nil

	case TypeGetOnlineUsers:
		return OnlineUsersQuery{}, nil

	default:
		if IsCallType(env.Type) {
			return decodeCallSignal(env.Type, data)
		}
		return Ignored{Type: env.Type}, nil
	}
}

func decodeCallSignal(kind string, data []byte) (Inbound, error) {
	// Browsers send the target as "to"; older clients used "to_user".
	var raw struct {
		To          string          `json:"to"`
		ToUser      string          `json:"to_user"`
		Room        string          `json:"room"`
		Offer       json.RawMessage `json:"offer"`
		Answer      json.RawMessage `json:"answer"`
		Candidate   json.RawMessage `json:"candidate"`
		IsGroupCall bool            `json:"is_group_call"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	to := raw.To
	if to == "" {
		to = raw.ToUser
	}

	return CallSignal{
		Kind:        kind,
		To:          to,
		Room:        raw.Room,
		Offer:       raw.Offer,
		Answer:      raw.Answer,
		Candidate:   raw.Candidate,
		IsGroupCall: raw.IsGroupCall,
	}, nil
}
