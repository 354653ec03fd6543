package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent drains ch for a short while and fails if an event of kind shows up.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type harness struct {
	hub   *Hub
	store *sqlite.SQLiteStore
	jwt   *auth.JWTConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	logger := zerolog.Nop()
	hub := NewHub(auth.NewService(st, jwtCfg), st, Options{ClientBuffer: 64, MaxTextLength: 200}, &logger)

	return &harness{hub: hub, store: st, jwt: jwtCfg}
}

func (h *harness) user(t *testing.T, name string) *store.User {
	t.Helper()
	u, err := h.store.CreateUser(context.Background(), name, "hash")
	require.NoError(t, err)
	return u
}

func (h *harness) token(t *testing.T, userID int64, name string) string {
	t.Helper()
	tok, err := auth.GenerateToken(h.jwt, userID, name)
	require.NoError(t, err)
	return tok
}

func (h *harness) connect(t *testing.T, u *store.User) *Client {
	t.Helper()
	c, err := h.hub.Connect(context.Background(), h.token(t, u.ID, u.Username))
	require.NoError(t, err)
	t.Cleanup(func() { h.hub.Disconnect(c) })
	return c
}

func (h *harness) room(t *testing.T, creator *store.User, name string) *store.Room {
	t.Helper()
	r, err := h.store.CreateRoom(context.Background(), &store.Room{Name: name, CreatorID: creator.ID})
	require.NoError(t, err)
	return r
}

func (h *harness) addMember(t *testing.T, u *store.User, r *store.Room) {
	t.Helper()
	added, err := h.store.AddMember(context.Background(), u.ID, r.ID)
	require.NoError(t, err)
	require.True(t, added)
}
