package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage posts a chat message to a room.
	CommandSendMessage CommandKind = iota
	// CommandJoinRoom makes the user a member of a room.
	CommandJoinRoom
	// CommandLeaveRoom removes the user from a room.
	CommandLeaveRoom
	// CommandTyping tells the room the user started typing.
	CommandTyping
	// CommandStopTyping tells the room the user stopped typing.
	CommandStopTyping
)

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	RoomID int64
	Text   string
}
