package core

// AnonymousIdentity is the sentinel for unauthenticated connections. Anonymous
// sessions relay events but never appear in the presence set.
const AnonymousIdentity = "Anonymous"

// GlobalPresenceChannel carries online/offline broadcasts to every session.
const GlobalPresenceChannel = "global_presence"

// PairRoomName derives the logical room for two identities. Both participants
// compute the same name regardless of who initiates: the pair is sorted
// lexicographically before joining.
func PairRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// UserChannel names the identity's inbox channel, used for targeted delivery
// independent of which room the identity is currently viewing.
func UserChannel(identity string) string {
	return "user_" + identity
}

// RoomChannel names a room's broadcast channel.
func RoomChannel(room string) string {
	return "chat_" + room
}
