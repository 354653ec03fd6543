package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage = "send_message"
	InboundTypeJoinRoom    = "join_room"
	InboundTypeLeaveRoom   = "leave_room"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stop_typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Text   string `json:"text"`
	RoomID int64  `json:"roomId"`
}

// RoomData names the room a typing request is about. join_room and leave_room
// carry the bare room id instead, though this object form is accepted too.
type RoomData struct {
	RoomID int64 `json:"roomId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserPayload identifies a user on the wire.
type UserPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// MessagePayload is a stored chat message.
type MessagePayload struct {
	ID        int64         `json:"id"`
	RoomID    int64         `json:"roomId"`
	Text      string        `json:"text"`
	Sender    UserPayload   `json:"sender"`
	Mentions  []UserPayload `json:"mentions"`
	CreatedAt string        `json:"createdAt"`
}

// RoomUserPayload is carried by user_joined, user_left and the typing events.
type RoomUserPayload struct {
	RoomID int64       `json:"room"`
	User   UserPayload `json:"user"`
}

// NotificationPayload tells a user they were mentioned.
type NotificationPayload struct {
	Message string `json:"message"`
	RoomID  int64  `json:"room"`
	From    string `json:"from"`
}

// RoomIDPayload confirms a join or leave to the acting connection.
type RoomIDPayload struct {
	RoomID int64 `json:"roomId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
