package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuesFIFOOrderPerPriority(t *testing.T) {
	qs := NewQueues()
	qs.Push(High, []byte("h1"))
	qs.Push(High, []byte("h2"))
	qs.Push(Low, []byte("l1"))

	b, ok := qs.Pop(High)
	require.True(t, ok)
	assert.Equal(t, "h1", string(b))

	b, ok = qs.Pop(High)
	require.True(t, ok)
	assert.Equal(t, "h2", string(b))

	_, ok = qs.Pop(High)
	assert.False(t, ok)

	b, ok = qs.Pop(Low)
	require.True(t, ok)
	assert.Equal(t, "l1", string(b))
}

func TestQueuesLenAndEmpty(t *testing.T) {
	qs := NewQueues()
	assert.True(t, qs.Empty(Medium))
	assert.Equal(t, 0, qs.Len(Medium))

	qs.Push(Medium, []byte("x"))
	qs.Push(Medium, []byte("y"))
	assert.False(t, qs.Empty(Medium))
	assert.Equal(t, 2, qs.Len(Medium))

	qs.Pop(Medium)
	assert.Equal(t, 1, qs.Len(Medium))
}

func TestSessionConnectDisconnectDiscardsQueues(t *testing.T) {
	sess := NewSession("peer-1")
	assert.False(t, sess.Connected())
	_, ok := sess.Transport()
	assert.False(t, ok)

	qs := sess.Connect("fake-transport")
	assert.True(t, sess.Connected())
	qs.Push(High, []byte("queued before disconnect"))

	sess.Disconnect()
	assert.False(t, sess.Connected())
	assert.Nil(t, sess.Queues())
	_, ok = sess.Transport()
	assert.False(t, ok)

	// Reconnecting must start with empty queues, not the stale backlog.
	fresh := sess.Connect("fake-transport-2")
	assert.Equal(t, 0, fresh.Len(High))
}
