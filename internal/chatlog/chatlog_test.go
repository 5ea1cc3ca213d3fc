package chatlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndEntries(t *testing.T) {
	l := New()
	startVersion := l.Version()

	l.Append("peer-1", 100, "hi")
	l.Append("peer-2", 101, "hello back")

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "peer-1", entries[0].SenderID)
	assert.Equal(t, "hello back", entries[1].Text)
	assert.NotEqual(t, startVersion, l.Version())
}

func TestAppendEvictsOldestBeyondMaxSize(t *testing.T) {
	l := New()
	for i := 0; i < MaxSize+10; i++ {
		l.Append("peer", int64(i), "msg")
	}
	entries := l.Entries()
	require.Len(t, entries, MaxSize)
	assert.Equal(t, int64(10), entries[0].Timestamp)
	assert.Equal(t, int64(MaxSize+9), entries[len(entries)-1].Timestamp)
}

func TestEntriesReturnsSnapshotNotLiveSlice(t *testing.T) {
	l := New()
	l.Append("peer", 1, "a")
	snap := l.Entries()
	l.Append("peer", 2, "b")
	assert.Len(t, snap, 1)
}
