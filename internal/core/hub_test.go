package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

func TestConnectRefusesBadCredentials(t *testing.T) {
	h := newHarness(t)
	ghost := h.token(t, 999, "ghost")

	other := &auth.JWTConfig{Secret: []byte("other"), Issuer: "test", Audience: "test", TTL: time.Hour}
	forged, err := auth.GenerateToken(other, 1, "alice")
	require.NoError(t, err)

	cases := []struct {
		name       string
		credential string
		want       error
	}{
		{"missing", "", ErrUnauthenticated},
		{"malformed", "not-a-jwt", ErrUnauthenticated},
		{"bad signature", forged, ErrInvalidCredential},
		{"unknown user", ghost, ErrUnknownUser},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := h.hub.Connect(context.Background(), tc.credential)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Empty(t, h.hub.Presence().OnlineUserIDs())
}

func TestConnectBroadcastsOnlineUsers(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	ca := h.connect(t, alice)
	ev := mustEvent(t, ca.Events, EventUsersOnline)
	assert.Equal(t, []int64{alice.ID}, ev.OnlineUserIDs)
	assert.Equal(t, StateActive, ca.State())

	h.connect(t, bob)
	ev = mustEvent(t, ca.Events, EventUsersOnline)
	assert.Equal(t, []int64{alice.ID, bob.ID}, ev.OnlineUserIDs)
}

func TestUserStaysOnlineUntilLastConnectionCloses(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	phone := h.connect(t, alice)
	laptop := h.connect(t, alice)
	cb := h.connect(t, bob)
	drain(cb.Events)

	h.hub.Disconnect(phone)
	assert.True(t, h.hub.Presence().IsOnline(alice.ID))
	ev := mustEvent(t, cb.Events, EventUsersOnline)
	assert.Equal(t, []int64{alice.ID, bob.ID}, ev.OnlineUserIDs)

	h.hub.Disconnect(laptop)
	assert.False(t, h.hub.Presence().IsOnline(alice.ID))
	ev = mustEvent(t, cb.Events, EventUsersOnline)
	assert.Equal(t, []int64{bob.ID}, ev.OnlineUserIDs)
}

func TestDisconnectIsIdempotentAndTerminal(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	ca := h.connect(t, alice)
	cb := h.connect(t, bob)
	drain(cb.Events)

	h.hub.Disconnect(ca)
	mustEvent(t, cb.Events, EventUsersOnline)

	h.hub.Disconnect(ca)
	noEvent(t, cb.Events, EventUsersOnline)

	assert.Equal(t, StateClosed, ca.State())
	assert.True(t, errors.Is(h.hub.Activate(context.Background(), ca), ErrConnectionClosed))
	assert.True(t, errors.Is(ca.Submit(context.Background(), &Command{Kind: CommandTyping, RoomID: 1}), ErrConnectionClosed))
	assert.False(t, ca.Send(&Event{Kind: EventUsersOnline}))
}

func TestActivateSubscribesPersistedRooms(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	general := h.room(t, alice, "general")
	random := h.room(t, alice, "random")

	ca := h.connect(t, alice)

	assert.ElementsMatch(t, []int64{general.ID, random.ID}, ca.Rooms())
}

func TestJoinTwiceReportsAlreadyMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	room := h.room(t, alice, "general")

	ca := h.connect(t, alice)
	cb := h.connect(t, bob)

	h.hub.Handle(ctx, cb, &Command{Kind: CommandJoinRoom, RoomID: room.ID})
	ev := mustEvent(t, cb.Events, EventRoomJoined)
	assert.Equal(t, room.ID, ev.RoomID)
	ev = mustEvent(t, ca.Events, EventUserJoined)
	assert.Equal(t, "bob", ev.User.Username)
	assert.True(t, cb.Subscribed(room.ID))

	drain(ca.Events)
	h.hub.Handle(ctx, cb, &Command{Kind: CommandJoinRoom, RoomID: room.ID})
	ev = mustEvent(t, cb.Events, EventError)
	assert.Equal(t, ErrCodeAlreadyMember, ev.Error.Code)
	noEvent(t, ca.Events, EventUserJoined)

	members, err := h.store.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	ca := h.connect(t, alice)

	h.hub.Handle(context.Background(), ca, &Command{Kind: CommandJoinRoom, RoomID: 42})

	ev := mustEvent(t, ca.Events, EventError)
	assert.Equal(t, ErrCodeRoomNotFound, ev.Error.Code)
	assert.Empty(t, ca.Rooms())
}

func TestJoinSubscribesEveryConnectionOfUser(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	room := h.room(t, alice, "general")

	phone := h.connect(t, bob)
	laptop := h.connect(t, bob)

	_, err := h.hub.JoinRoom(context.Background(), bob.Ref(), room.ID)
	require.NoError(t, err)

	assert.True(t, phone.Subscribed(room.ID))
	assert.True(t, laptop.Subscribed(room.ID))
	noEvent(t, laptop.Events, EventUserJoined)
}

func TestSendFromNonMemberIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	mallory := h.user(t, "mallory")
	room := h.room(t, alice, "general")

	ca := h.connect(t, alice)
	cm := h.connect(t, mallory)

	h.hub.Handle(ctx, cm, &Command{Kind: CommandSendMessage, RoomID: room.ID, Text: "hello"})

	ev := mustEvent(t, cm.Events, EventError)
	assert.Equal(t, ErrCodeNotAMember, ev.Error.Code)
	noEvent(t, ca.Events, EventNewMessage)

	n, err := h.store.CountMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendNotifiesMentionedUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")
	room := h.room(t, alice, "general")
	h.addMember(t, bob, room)
	h.addMember(t, carol, room)

	ca := h.connect(t, alice)
	cb := h.connect(t, bob)
	cc := h.connect(t, carol)

	h.hub.Handle(ctx, ca, &Command{Kind: CommandSendMessage, RoomID: room.ID, Text: "  hi @carol and @nobody  "})

	for _, c := range []*Client{ca, cb, cc} {
		ev := mustEvent(t, c.Events, EventNewMessage)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hi @carol and @nobody", ev.Message.Text)
		assert.Equal(t, "alice", ev.Message.Username)
		require.Len(t, ev.Message.Mentions, 1)
		assert.Equal(t, carol.ID, ev.Message.Mentions[0].ID)
	}

	ev := mustEvent(t, cc.Events, EventNotification)
	assert.Equal(t, "You were mentioned by alice in general", ev.Notice.Text)
	assert.Equal(t, room.ID, ev.Notice.RoomID)
	assert.Equal(t, "alice", ev.Notice.From)
	noEvent(t, cb.Events, EventNotification)

	notes, err := h.store.ListNotifications(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Read)

	notes, err = h.store.ListNotifications(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestMentionOfOfflineUserIsPersistedOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	carol := h.user(t, "carol")
	room := h.room(t, alice, "general")

	_, err := h.hub.SendMessage(ctx, alice.Ref(), room.ID, "ping @carol")
	require.NoError(t, err)

	notes, err := h.store.ListNotifications(ctx, carol.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestLeaveThenSendIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	room := h.room(t, alice, "general")
	h.addMember(t, bob, room)

	ca := h.connect(t, alice)
	cb := h.connect(t, bob)
	require.True(t, cb.Subscribed(room.ID))

	h.hub.Handle(ctx, cb, &Command{Kind: CommandLeaveRoom, RoomID: room.ID})
	mustEvent(t, cb.Events, EventRoomLeft)
	ev := mustEvent(t, ca.Events, EventUserLeft)
	assert.Equal(t, bob.ID, ev.User.ID)
	assert.False(t, cb.Subscribed(room.ID))

	h.hub.Handle(ctx, cb, &Command{Kind: CommandSendMessage, RoomID: room.ID, Text: "still here?"})
	ev = mustEvent(t, cb.Events, EventError)
	assert.Equal(t, ErrCodeNotAMember, ev.Error.Code)
	noEvent(t, ca.Events, EventNewMessage)
	noEvent(t, cb.Events, EventNewMessage)

	count, err := h.store.CountMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	h.hub.Handle(ctx, cb, &Command{Kind: CommandLeaveRoom, RoomID: room.ID})
	ev = mustEvent(t, cb.Events, EventError)
	assert.Equal(t, ErrCodeNotAMember, ev.Error.Code)
}

func TestMessagesArriveInPersistedOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	room := h.room(t, alice, "general")
	h.addMember(t, bob, room)

	cb := h.connect(t, bob)
	drain(cb.Events)

	const senders, perSender = 4, 5
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := h.hub.SendMessage(ctx, alice.Ref(), room.ID, "msg")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var received []int64
	for i := 0; i < senders*perSender; i++ {
		ev := mustEvent(t, cb.Events, EventNewMessage)
		received = append(received, ev.Message.ID)
	}

	stored, err := h.store.ListMessages(ctx, room.ID, senders*perSender, 0)
	require.NoError(t, err)
	require.Len(t, stored, senders*perSender)
	for i, msg := range stored {
		assert.Equal(t, msg.ID, received[i])
	}
}

func TestTypingSkipsOriginConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	room := h.room(t, alice, "general")
	h.addMember(t, bob, room)

	phone := h.connect(t, alice)
	laptop := h.connect(t, alice)
	cb := h.connect(t, bob)

	h.hub.Handle(ctx, phone, &Command{Kind: CommandTyping, RoomID: room.ID})
	ev := mustEvent(t, cb.Events, EventUserTyping)
	assert.Equal(t, "alice", ev.User.Username)
	mustEvent(t, laptop.Events, EventUserTyping)
	noEvent(t, phone.Events, EventUserTyping)

	h.hub.Handle(ctx, phone, &Command{Kind: CommandStopTyping, RoomID: room.ID})
	mustEvent(t, cb.Events, EventUserStopTyping)
}

func TestServeProcessesSubmittedCommands(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	room := h.room(t, alice, "general")
	bob := h.user(t, "bob")
	cb := h.connect(t, bob)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.hub.Serve(ctx, cb)
		close(done)
	}()

	require.NoError(t, cb.Submit(ctx, &Command{Kind: CommandJoinRoom, RoomID: room.ID}))
	mustEvent(t, cb.Events, EventRoomJoined)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRunClosesConnectionsOnShutdown(t *testing.T) {
	h := newHarness(t)
	ca := h.connect(t, h.user(t, "alice"))
	cb := h.connect(t, h.user(t, "bob"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.hub.Run(ctx) }()
	cancel()

	require.NoError(t, <-errCh)
	assert.Equal(t, StateClosed, ca.State())
	assert.Equal(t, StateClosed, cb.State())
	assert.Empty(t, h.hub.Presence().OnlineUserIDs())
}

func TestActivateAfterShutdownIsRefused(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")

	// Authenticated before shutdown, activated after it.
	pending, err := h.hub.Authenticate(context.Background(), h.token(t, alice.ID, alice.Username))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.hub.Run(ctx))

	err = h.hub.Activate(context.Background(), pending)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
	assert.Equal(t, StateClosed, pending.State())
	assert.False(t, h.hub.Presence().IsOnline(alice.ID))

	select {
	case <-pending.Done():
	default:
		t.Fatal("refused connection is not done")
	}
}

// leavingStore removes the user from leaveRoomID right after the room list is
// read, as a leave from another connection would.
type leavingStore struct {
	*sqlite.SQLiteStore
	leaveRoomID int64
}

func (s *leavingStore) ListUserRooms(ctx context.Context, userID int64) ([]*store.Room, error) {
	rooms, err := s.SQLiteStore.ListUserRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.SQLiteStore.RemoveMember(ctx, userID, s.leaveRoomID); err != nil {
		return nil, err
	}
	return rooms, nil
}

func TestActivateSkipsRoomLeftWhileSubscribing(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	general := h.room(t, alice, "general")
	random := h.room(t, alice, "random")

	st := &leavingStore{SQLiteStore: h.store, leaveRoomID: random.ID}
	logger := zerolog.Nop()
	hub := NewHub(auth.NewService(st, h.jwt), st, Options{ClientBuffer: 64}, &logger)

	c, err := hub.Connect(context.Background(), h.token(t, alice.ID, alice.Username))
	require.NoError(t, err)
	t.Cleanup(func() { hub.Disconnect(c) })

	assert.Equal(t, []int64{general.ID}, c.Rooms())
	assert.False(t, c.Subscribed(random.ID))
}
