package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceMultipleConnections(t *testing.T) {
	p := NewPresence()
	a1, a2, b := NewClient(1), NewClient(1), NewClient(1)

	assert.True(t, p.Register(1, a1))
	assert.True(t, p.Register(1, a2))
	assert.False(t, p.Register(1, a2))
	assert.True(t, p.Register(2, b))
	assert.Equal(t, []int64{1, 2}, p.OnlineUserIDs())
	assert.Len(t, p.Connections(1), 2)
	assert.Len(t, p.All(), 3)

	assert.True(t, p.Unregister(1, a1))
	assert.True(t, p.IsOnline(1))

	assert.True(t, p.Unregister(1, a2))
	assert.False(t, p.IsOnline(1))
	assert.Equal(t, []int64{2}, p.OnlineUserIDs())
}

func TestPresenceUnregisterUnknownIsNoop(t *testing.T) {
	p := NewPresence()
	c := NewClient(1)

	assert.False(t, p.Unregister(7, c))

	p.Register(7, c)
	assert.True(t, p.Unregister(7, c))
	assert.False(t, p.Unregister(7, c))
	assert.Empty(t, p.OnlineUserIDs())
	assert.Empty(t, p.Connections(7))
}
