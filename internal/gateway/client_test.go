package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleybot/parley/internal/logging"
)

func TestClientRegistry(t *testing.T) {
	log := logging.New(nil, "silent")
	reg := NewClientRegistry(log)

	c1 := NewClient(nil, log)
	c2 := NewClient(nil, log)
	assert.NotEqual(t, c1.ConnID, c2.ConnID)

	reg.Add(c1)
	reg.Add(c2)
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Get(c1.ConnID)
	assert.True(t, ok)
	assert.Same(t, c1, got)

	reg.Remove(c1.ConnID)
	assert.Equal(t, 1, reg.Count())
	_, ok = reg.Get(c1.ConnID)
	assert.False(t, ok)
}

func TestClosedClientRejectsSend(t *testing.T) {
	log := logging.New(nil, "silent")
	c := NewClient(nil, log)
	c.closed = true

	err := c.SendEvent("new_message", nil, 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}
