package core

import "github.com/vovakirdan/roomchat/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUsersOnline carries the full set of online user ids.
	EventUsersOnline EventKind = iota
	// EventNewMessage delivers a persisted message to room subscribers.
	EventNewMessage
	// EventNotification tells a mentioned user about a message.
	EventNotification
	// EventUserJoined notifies subscribers about a new room member.
	EventUserJoined
	// EventUserLeft notifies subscribers about a member leaving.
	EventUserLeft
	// EventUserTyping relays a typing indicator.
	EventUserTyping
	// EventUserStopTyping relays the end of a typing indicator.
	EventUserStopTyping
	// EventRoomJoined confirms a join to the acting connection.
	EventRoomJoined
	// EventRoomLeft confirms a leave to the acting connection.
	EventRoomLeft
	// EventError reports a failed command to the acting connection.
	EventError
)

var eventNames = map[EventKind]string{
	EventUsersOnline:    "users_online",
	EventNewMessage:     "new_message",
	EventNotification:   "notification",
	EventUserJoined:     "user_joined",
	EventUserLeft:       "user_left",
	EventUserTyping:     "user_typing",
	EventUserStopTyping: "user_stop_typing",
	EventRoomJoined:     "room_joined",
	EventRoomLeft:       "room_left",
	EventError:          "error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notice is the real-time part of a mention notification.
type Notice struct {
	Text   string
	RoomID int64
	From   string
}

// Event is sent to clients to describe what happened in the system.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind          EventKind
	RoomID        int64
	User          store.UserRef
	Message       *store.Message
	Notice        *Notice
	OnlineUserIDs []int64
	Error         *CoreError
}
