package proto

import "encoding/json"

// Server event type discriminators.
const (
	TypeOnlineUsersList   = "online_users_list"
	TypeUserStatus        = "user_status"
	TypeTypingIndicator   = "typing_indicator"
	TypeReadReceiptUpdate = "read_receipt_update"
	TypeJoin              = "join"
	TypeLeave             = "leave"
)

// ChatEvent is the relayed form of a chat message. MessageID, Timestamp and
// Read are present only when the durable copy was written.
type ChatEvent struct {
	Type          string `json:"type"`
	Sender        string `json:"sender"`
	Room          string `json:"room"`
	Recipient     string `json:"recipient,omitempty"`
	Message       string `json:"message"`
	MessageID     string `json:"message_id,omitempty"`
	TempMessageID string `json:"temp_message_id,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	Read          bool   `json:"read"`
}

// CallEvent relays a signaling event with its opaque SDP/ICE payload.
type CallEvent struct {
	Type        string          `json:"type"`
	Sender      string          `json:"sender"`
	ToUser      string          `json:"to_user,omitempty"`
	Room        string          `json:"room,omitempty"`
	Offer       json.RawMessage `json:"offer,omitempty"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	IsGroupCall bool            `json:"is_group_call,omitempty"`
}

// OnlineUsersList is the full presence snapshot, sent to one session.
type OnlineUsersList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// UserStatus announces one identity going online or offline.
type UserStatus struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

// TypingIndicator relays a typing flag to a room.
type TypingIndicator struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// ReadReceiptUpdate confirms a read receipt back to the message sender.
type ReadReceiptUpdate struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// RoomEvent announces a session joining or leaving its room.
type RoomEvent struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	Room   string `json:"room"`
}

// Encode marshals an outbound event for the wire. Outbound structs contain no
// unmarshalable values, so failures indicate a programming error.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func NewOnlineUsersList(users []string) OnlineUsersList {
	if users == nil {
		users = []string{}
	}
	return OnlineUsersList{Type: TypeOnlineUsersList, Users: users}
}

func NewUserStatus(username string, online bool) UserStatus {
	return UserStatus{Type: TypeUserStatus, Username: username, IsOnline: online}
}

func NewTypingIndicator(username, room string, isTyping bool) TypingIndicator {
	return TypingIndicator{Type: TypeTypingIndicator, Username: username, Room: room, IsTyping: isTyping}
}

func NewReadReceiptUpdate(messageID string) ReadReceiptUpdate {
	return ReadReceiptUpdate{Type: TypeReadReceiptUpdate, MessageID: messageID}
}

func NewRoomEvent(kind, sender, room string) RoomEvent {
	return RoomEvent{Type: kind, Sender: sender, Room: room}
}
