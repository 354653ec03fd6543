package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// RoomChannels is the publish/subscribe surface for room broadcasts.
// Live subscriptions are independent of persisted membership; the gateway and
// the lifecycle keep them aligned.
type RoomChannels interface {
	// Subscribe adds a connection to a room channel. Returns true if newly added.
	Subscribe(roomID int64, c *Client) bool
	// Unsubscribe removes a connection from a room channel. Returns true if removed.
	Unsubscribe(roomID int64, c *Client) bool
	// Publish delivers ev to every subscriber of roomID for which skip returns false.
	// It returns how many connections accepted the event.
	Publish(roomID int64, ev *Event, skip func(*Client) bool) int
}

// Channels is the in-process RoomChannels implementation.
type Channels struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Client]struct{}
	log   *zerolog.Logger
}

var _ RoomChannels = (*Channels)(nil)

// NewChannels constructs an empty channel set.
func NewChannels(logger *zerolog.Logger) *Channels {
	return &Channels{
		rooms: make(map[int64]map[*Client]struct{}),
		log:   logger,
	}
}

// Subscribe adds c to roomID. Closed connections are never subscribed.
func (ch *Channels) Subscribe(roomID int64, c *Client) bool {
	// c.mu is held across the channel insert so UnsubscribeAll, which runs after
	// the client is closed, always sees this room.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	if _, exists := c.rooms[roomID]; exists {
		return false
	}
	c.rooms[roomID] = struct{}{}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	set, ok := ch.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		ch.rooms[roomID] = set
	}
	set[c] = struct{}{}
	return true
}

// Unsubscribe removes c from roomID.
func (ch *Channels) Unsubscribe(roomID int64, c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rooms[roomID]; !exists {
		return false
	}
	delete(c.rooms, roomID)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.removeLocked(roomID, c)
	return true
}

// UnsubscribeAll drops every subscription of c.
func (ch *Channels) UnsubscribeAll(c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for roomID := range c.rooms {
		ch.removeLocked(roomID, c)
	}
	c.rooms = make(map[int64]struct{})
}

func (ch *Channels) removeLocked(roomID int64, c *Client) {
	set, ok := ch.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(ch.rooms, roomID)
	}
}

// Subscribers returns the connections subscribed to roomID.
func (ch *Channels) Subscribers(roomID int64) []*Client {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	set := ch.rooms[roomID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// Publish sends ev to the room's subscribers without blocking.
func (ch *Channels) Publish(roomID int64, ev *Event, skip func(*Client) bool) int {
	delivered := 0
	for _, c := range ch.Subscribers(roomID) {
		if skip != nil && skip(c) {
			continue
		}
		if c.Send(ev) {
			delivered++
			continue
		}
		// Drop if slow consumer.
		ch.log.Warn().
			Str("conn_id", c.ID).
			Int64("room_id", roomID).
			Str("event", ev.Kind.String()).
			Msg("event dropped")
	}
	return delivered
}

func skipClient(origin *Client) func(*Client) bool {
	return func(c *Client) bool { return c == origin }
}

func skipUser(userID int64) func(*Client) bool {
	return func(c *Client) bool { return c.UserID == userID }
}
