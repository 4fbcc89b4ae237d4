package history

import (
	"context"
	"time"
)

// MessageRecord is a persisted chat message. Immutable once written except for
// the read flag, which a read receipt flips.
type MessageRecord struct {
	ID        string
	Room      string
	Sender    string
	Body      string
	Timestamp time.Time
	Read      bool
	ReadAt    *time.Time
}

// CallEventRecord is an append-only record of a call signaling event.
type CallEventRecord struct {
	Room      string
	Sender    string
	Recipient string
	Type      string
	Payload   []byte // opaque signaling payload, JSON
	Timestamp time.Time
}

// Gateway is the narrow persistence interface the relay depends on. Callers
// treat every failure as soft: the in-memory fan-out proceeds without the
// durable copy.
type Gateway interface {
	// AppendMessage persists a chat message and returns its assigned id.
	AppendMessage(ctx context.Context, rec *MessageRecord) (string, error)

	// AppendCallEvent persists a call signaling event.
	AppendCallEvent(ctx context.Context, rec *CallEventRecord) error

	// MarkRead flips the read flag on a persisted message.
	MarkRead(ctx context.Context, messageID string, at time.Time) error

	// RecentMessages returns up to limit messages for a room, newest first.
	RecentMessages(ctx context.Context, room string, limit int) ([]MessageRecord, error)

	// RecentCallEvents returns up to limit call events addressed to an
	// identity, newest first.
	RecentCallEvents(ctx context.Context, recipient string, limit int) ([]CallEventRecord, error)

	// SaveSubscription upserts the identity's push subscription descriptor.
	SaveSubscription(ctx context.Context, identity string, descriptor []byte) error

	// Subscription returns the identity's push subscription descriptor, or
	// nil if none is stored.
	Subscription(ctx context.Context, identity string) ([]byte, error)

	// Close releases the underlying storage.
	Close() error
}
