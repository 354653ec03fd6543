package core

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Authenticator resolves a bearer credential to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*store.User, error)
}

// Options tunes the hub.
type Options struct {
	// ClientBuffer is the size of each connection's command and event queues.
	ClientBuffer int
	// MaxTextLength caps message text in runes; 0 disables the check.
	MaxTextLength int
}

// Hub owns the real-time state of the process: presence, room channels and the
// lifecycle of every connection.
type Hub struct {
	authn    Authenticator
	store    store.Store
	presence *Presence
	channels *Channels
	gateway  *Gateway
	fanout   *Fanout
	typing   *TypingRelay
	locks    *roomLocks
	opts     Options
	log      *zerolog.Logger

	// presenceMu orders presence changes with their users_online broadcast so
	// the last snapshot a client sees is the current one. It also guards stopped.
	presenceMu sync.Mutex
	stopped    bool
}

// NewHub creates a new chat hub instance.
func NewHub(authn Authenticator, st store.Store, opts Options, logger *zerolog.Logger) *Hub {
	presence := NewPresence()
	channels := NewChannels(logger)
	locks := newRoomLocks()

	return &Hub{
		authn:    authn,
		store:    st,
		presence: presence,
		channels: channels,
		gateway:  NewGateway(st, channels, presence, locks, logger),
		fanout:   NewFanout(st, channels, presence, locks, opts.MaxTextLength, logger),
		typing:   NewTypingRelay(channels),
		locks:    locks,
		opts:     opts,
		log:      logger,
	}
}

// Presence exposes the registry for read-only queries.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Run blocks until ctx is cancelled, then closes every live connection.
// Connections activated after that are refused.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.presenceMu.Lock()
	h.stopped = true
	clients := h.presence.All()
	h.presenceMu.Unlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
	h.log.Info().Int("connections", len(clients)).Msg("hub stopped")
	return nil
}

// Authenticate admits a new connection: Connecting -> Authenticated.
// Failures return ErrUnauthenticated, ErrInvalidCredential or ErrUnknownUser and
// no connection is created.
func (h *Hub) Authenticate(ctx context.Context, credential string) (*Client, error) {
	user, err := h.authn.Authenticate(ctx, credential)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			return nil, ErrUnauthenticated
		case errors.Is(err, auth.ErrInvalidCredential):
			return nil, ErrInvalidCredential
		case errors.Is(err, auth.ErrUnknownUser):
			return nil, ErrUnknownUser
		default:
			h.log.Error().Err(err).Msg("authenticate connection")
			return nil, storageFailure(err)
		}
	}

	c := NewClient(h.opts.ClientBuffer)
	c.authenticate(user)
	return c, nil
}

// Activate moves an authenticated connection to Active: it is registered in
// presence and subscribed to every room its user belongs to. Once the hub has
// stopped the connection is closed instead and ErrConnectionClosed is returned.
func (h *Hub) Activate(ctx context.Context, c *Client) error {
	if !c.activate() {
		return ErrConnectionClosed
	}

	h.presenceMu.Lock()
	if h.stopped {
		h.presenceMu.Unlock()
		c.close()
		return ErrConnectionClosed
	}
	h.presence.Register(c.UserID, c)
	h.broadcastPresenceLocked()
	h.presenceMu.Unlock()

	rooms, err := h.store.ListUserRooms(ctx, c.UserID)
	if err != nil {
		// Best effort: the connection stays active without room subscriptions.
		h.log.Error().Err(err).Int64("user_id", c.UserID).Msg("list user rooms")
	}
	subscribed := 0
	for _, room := range rooms {
		if h.subscribeMember(ctx, c, room.ID) {
			subscribed++
		}
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Str("username", c.Username).
		Int("rooms", subscribed).
		Msg("connection active")
	return nil
}

// subscribeMember subscribes c to roomID under the room lock if its user is
// still a member. A leave that landed after the room list was read wins.
func (h *Hub) subscribeMember(ctx context.Context, c *Client, roomID int64) bool {
	unlock := h.locks.Lock(roomID)
	defer unlock()

	member, err := h.store.IsMember(ctx, c.UserID, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", c.UserID).Int64("room_id", roomID).Msg("check membership")
		return false
	}
	if !member {
		return false
	}
	return h.channels.Subscribe(roomID, c)
}

// Connect authenticates and activates a connection in one step.
func (h *Hub) Connect(ctx context.Context, credential string) (*Client, error) {
	c, err := h.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	if err := h.Activate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect closes a connection: its subscriptions are dropped and it leaves
// presence. Repeated calls are no-ops. No user_left events are sent.
func (h *Hub) Disconnect(c *Client) {
	if !c.close() {
		return
	}

	h.channels.UnsubscribeAll(c)

	h.presenceMu.Lock()
	if h.presence.Unregister(c.UserID, c) {
		h.broadcastPresenceLocked()
	}
	h.presenceMu.Unlock()

	h.log.Info().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("connection closed")
}

func (h *Hub) broadcastPresenceLocked() {
	ids := h.presence.OnlineUserIDs()
	for _, c := range h.presence.All() {
		if !c.Send(&Event{Kind: EventUsersOnline, OnlineUserIDs: ids}) {
			h.log.Warn().Str("conn_id", c.ID).Msg("users_online dropped")
		}
	}
}

// Serve handles the commands of an active connection one at a time until the
// connection closes or ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case cmd := <-c.Commands:
			if cmd != nil {
				h.Handle(ctx, c, cmd)
			}
		}
	}
}

// Handle executes a single command on behalf of c. Failures are reported to c only.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) {
	var err error
	switch cmd.Kind {
	case CommandSendMessage:
		_, err = h.fanout.SendMessage(ctx, c.User(), cmd.RoomID, cmd.Text)
	case CommandJoinRoom:
		if _, err = h.gateway.Join(ctx, c.User(), cmd.RoomID); err == nil {
			c.Send(&Event{Kind: EventRoomJoined, RoomID: cmd.RoomID})
		}
	case CommandLeaveRoom:
		if _, err = h.gateway.Leave(ctx, c.User(), cmd.RoomID); err == nil {
			c.Send(&Event{Kind: EventRoomLeft, RoomID: cmd.RoomID})
		}
	case CommandTyping:
		h.typing.StartTyping(c, cmd.RoomID)
	case CommandStopTyping:
		h.typing.StopTyping(c, cmd.RoomID)
	default:
		err = badRequest("unknown command")
	}

	if err != nil {
		h.reportError(c, err)
	}
}

func (h *Hub) reportError(c *Client, err error) {
	ce := AsCoreError(err)
	if ce.Code == ErrCodeStorageFailure {
		h.log.Error().Err(err).Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("command failed")
	} else {
		h.log.Debug().Str("code", ce.Code).Str("conn_id", c.ID).Msg("command rejected")
	}
	c.Send(&Event{Kind: EventError, Error: ce})
}

// JoinRoom runs a join without an acting connection (REST).
func (h *Hub) JoinRoom(ctx context.Context, user store.UserRef, roomID int64) (*store.Room, error) {
	return h.gateway.Join(ctx, user, roomID)
}

// LeaveRoom runs a leave without an acting connection (REST).
func (h *Hub) LeaveRoom(ctx context.Context, user store.UserRef, roomID int64) (*store.Room, error) {
	return h.gateway.Leave(ctx, user, roomID)
}

// CreateRoom persists a room and subscribes its creator's live connections.
func (h *Hub) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	return h.gateway.Create(ctx, room)
}

// SendMessage posts a message without an acting connection (REST).
func (h *Hub) SendMessage(ctx context.Context, sender store.UserRef, roomID int64, text string) (*store.Message, error) {
	return h.fanout.SendMessage(ctx, sender, roomID, text)
}
