package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
)

// fanoutStore is the slice of the storage collaborator the fanout engine needs.
type fanoutStore interface {
	GetRoomByID(ctx context.Context, id int64) (*store.Room, error)
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)
	GetUsersByUsernames(ctx context.Context, usernames []string) ([]*store.User, error)
	SaveMessage(ctx context.Context, msg *store.Message, notifications []*store.Notification) error
}

// Fanout validates, persists and broadcasts chat messages.
type Fanout struct {
	store         fanoutStore
	channels      RoomChannels
	conns         connectionLookup
	locks         *roomLocks
	maxTextLength int
	now           func() time.Time
	log           *zerolog.Logger
}

// NewFanout wires a fanout engine. maxTextLength <= 0 disables the length check.
func NewFanout(st fanoutStore, channels RoomChannels, conns connectionLookup, locks *roomLocks, maxTextLength int, logger *zerolog.Logger) *Fanout {
	return &Fanout{
		store:         st,
		channels:      channels,
		conns:         conns,
		locks:         locks,
		maxTextLength: maxTextLength,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger,
	}
}

// SendMessage stores text as a message from sender in roomID, broadcasts it to
// the room and notifies mentioned users. Nothing is broadcast unless the message
// and its notifications were stored.
func (f *Fanout) SendMessage(ctx context.Context, sender store.UserRef, roomID int64, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, badRequest("message text is required")
	}
	if f.maxTextLength > 0 && utf8.RuneCountInString(text) > f.maxTextLength {
		return nil, badRequest(fmt.Sprintf("message text exceeds %d characters", f.maxTextLength))
	}

	unlock := f.locks.Lock(roomID)
	defer unlock()

	room, err := f.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storageFailure(err)
	}

	isMember, err := f.store.IsMember(ctx, sender.ID, roomID)
	if err != nil {
		return nil, storageFailure(err)
	}
	if !isMember {
		return nil, ErrNotAMember
	}

	mentioned, err := f.store.GetUsersByUsernames(ctx, ExtractMentions(text))
	if err != nil {
		return nil, storageFailure(err)
	}

	msg := &store.Message{
		RoomID:    roomID,
		UserID:    sender.ID,
		Username:  sender.Username,
		Text:      text,
		CreatedAt: f.now(),
	}
	noticeText := fmt.Sprintf("You were mentioned by %s in %s", sender.Username, room.Name)
	notifications := make([]*store.Notification, 0, len(mentioned))
	for _, u := range mentioned {
		msg.Mentions = append(msg.Mentions, store.UserRef{ID: u.ID, Username: u.Username})
		notifications = append(notifications, &store.Notification{
			UserID:    u.ID,
			RoomID:    roomID,
			Text:      noticeText,
			CreatedAt: msg.CreatedAt,
		})
	}

	if err := f.store.SaveMessage(ctx, msg, notifications); err != nil {
		return nil, storageFailure(err)
	}

	f.channels.Publish(roomID, &Event{Kind: EventNewMessage, RoomID: roomID, Message: msg}, nil)

	for _, ref := range msg.Mentions {
		notice := &Event{
			Kind:   EventNotification,
			RoomID: roomID,
			Notice: &Notice{Text: noticeText, RoomID: roomID, From: sender.Username},
		}
		for _, c := range f.conns.Connections(ref.ID) {
			if !c.Send(notice) {
				f.log.Warn().Str("conn_id", c.ID).Int64("user_id", ref.ID).Msg("notification dropped")
			}
		}
	}

	f.log.Debug().
		Int64("message_id", msg.ID).
		Int64("room_id", roomID).
		Int("mentions", len(msg.Mentions)).
		Msg("message fanned out")
	return msg, nil
}
