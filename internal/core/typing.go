package core

// TypingRelay passes typing indicators to the other subscribers of a room.
// It keeps no state and does not check membership.
type TypingRelay struct {
	channels RoomChannels
}

// NewTypingRelay wires a relay over channels.
func NewTypingRelay(channels RoomChannels) *TypingRelay {
	return &TypingRelay{channels: channels}
}

// StartTyping announces that the user behind c is typing in roomID.
func (t *TypingRelay) StartTyping(c *Client, roomID int64) int {
	return t.relay(EventUserTyping, c, roomID)
}

// StopTyping announces that the user behind c stopped typing in roomID.
func (t *TypingRelay) StopTyping(c *Client, roomID int64) int {
	return t.relay(EventUserStopTyping, c, roomID)
}

func (t *TypingRelay) relay(kind EventKind, c *Client, roomID int64) int {
	return t.channels.Publish(roomID, &Event{Kind: kind, RoomID: roomID, User: c.User()}, skipClient(c))
}
