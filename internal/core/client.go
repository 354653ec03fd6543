package core

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vovakirdan/roomchat/internal/store"
)

// ConnState is a position in the connection lifecycle.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one live connection of an authenticated user.
// A user may hold several clients at once.
type Client struct {
	ID       string
	UserID   int64
	Username string
	Commands chan *Command
	Events   chan *Event

	mu    sync.Mutex
	state ConnState
	rooms map[int64]struct{}
	done  chan struct{}
}

// NewClient constructs a connection handle in the Connecting state.
func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = 8
	}
	return &Client{
		ID:       uuid.NewString(),
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		rooms:    make(map[int64]struct{}),
		done:     make(chan struct{}),
	}
}

// User returns the identity bound to the connection.
func (c *Client) User() store.UserRef {
	return store.UserRef{ID: c.UserID, Username: c.Username}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection reaches the Closed state.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Rooms returns the room ids the connection is currently subscribed to.
func (c *Client) Rooms() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Subscribed reports whether the connection receives events of roomID.
func (c *Client) Subscribed(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// Send queues an event without blocking. It returns false if the connection
// is closed or its buffer is full.
func (c *Client) Send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Submit queues a command for the connection's worker, blocking until there is room.
func (c *Client) Submit(ctx context.Context, cmd *Command) error {
	select {
	case c.Commands <- cmd:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) authenticate(user *store.User) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.UserID = user.ID
	c.Username = user.Username
	c.state = StateAuthenticated
	return true
}

func (c *Client) activate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return false
	}
	c.state = StateActive
	return true
}

// close moves the connection to Closed. It returns false if it already was.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	close(c.done)
	return true
}
