package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
)

// connectionLookup finds the live connections of a user.
type connectionLookup interface {
	Connections(userID int64) []*Client
}

// Gateway changes persisted room membership and keeps live subscriptions in step.
type Gateway struct {
	rooms    store.RoomStore
	channels RoomChannels
	conns    connectionLookup
	locks    *roomLocks
	log      *zerolog.Logger
}

// NewGateway wires a membership gateway.
func NewGateway(rooms store.RoomStore, channels RoomChannels, conns connectionLookup, locks *roomLocks, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		rooms:    rooms,
		channels: channels,
		conns:    conns,
		locks:    locks,
		log:      logger,
	}
}

// Join makes user a member of roomID and subscribes all of its connections.
// A user who already is a member gets ErrAlreadyMember; its connections are
// still (re)subscribed and nothing is broadcast.
func (g *Gateway) Join(ctx context.Context, user store.UserRef, roomID int64) (*store.Room, error) {
	unlock := g.locks.Lock(roomID)
	defer unlock()

	room, err := g.lookupRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	added, err := g.rooms.AddMember(ctx, user.ID, roomID)
	if err != nil {
		return nil, storageFailure(err)
	}

	for _, c := range g.conns.Connections(user.ID) {
		g.channels.Subscribe(roomID, c)
	}

	if !added {
		return room, ErrAlreadyMember
	}

	g.channels.Publish(roomID, &Event{Kind: EventUserJoined, RoomID: roomID, User: user}, skipUser(user.ID))
	g.log.Info().Int64("user_id", user.ID).Int64("room_id", roomID).Msg("user joined room")
	return room, nil
}

// Leave removes user from roomID and unsubscribes all of its connections.
func (g *Gateway) Leave(ctx context.Context, user store.UserRef, roomID int64) (*store.Room, error) {
	unlock := g.locks.Lock(roomID)
	defer unlock()

	room, err := g.lookupRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	removed, err := g.rooms.RemoveMember(ctx, user.ID, roomID)
	if err != nil {
		return nil, storageFailure(err)
	}
	if !removed {
		return room, ErrNotAMember
	}

	for _, c := range g.conns.Connections(user.ID) {
		g.channels.Unsubscribe(roomID, c)
	}

	g.channels.Publish(roomID, &Event{Kind: EventUserLeft, RoomID: roomID, User: user}, skipUser(user.ID))
	g.log.Info().Int64("user_id", user.ID).Int64("room_id", roomID).Msg("user left room")
	return room, nil
}

// Create persists a new room; its creator becomes a member and is subscribed.
func (g *Gateway) Create(ctx context.Context, room *store.Room) (*store.Room, error) {
	created, err := g.rooms.CreateRoom(ctx, room)
	if err != nil {
		return nil, storageFailure(err)
	}
	for _, c := range g.conns.Connections(created.CreatorID) {
		g.channels.Subscribe(created.ID, c)
	}
	return created, nil
}

func (g *Gateway) lookupRoom(ctx context.Context, roomID int64) (*store.Room, error) {
	room, err := g.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storageFailure(err)
	}
	return room, nil
}
