package peertable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRemove(t *testing.T) {
	tbl := New()
	tbl.Put(Record{Identity: "p1", Hostname: "a.example", Port: 9700, Enabled: true})

	rec, ok := tbl.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "a.example", rec.Hostname)

	tbl.Remove("p1")
	_, ok = tbl.Get("p1")
	assert.False(t, ok)
}

func TestSetEnabledUnknownPeer(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.SetEnabled("ghost", true))
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	tbl := New()
	tbl.Put(Record{Identity: "c"})
	tbl.Put(Record{Identity: "a"})
	tbl.Put(Record{Identity: "b"})

	all := tbl.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].Identity, all[1].Identity, all[2].Identity})
}

func TestEnabledFiltersDisabledPeers(t *testing.T) {
	tbl := New()
	tbl.Put(Record{Identity: "on", Enabled: true})
	tbl.Put(Record{Identity: "off", Enabled: false})

	enabled := tbl.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "on", enabled[0].Identity)
}

func TestPutReplacesExistingRecord(t *testing.T) {
	tbl := New()
	tbl.Put(Record{Identity: "p1", RemoteNickname: "old"})
	tbl.Put(Record{Identity: "p1", RemoteNickname: "new"})

	rec, ok := tbl.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "new", rec.RemoteNickname)
	assert.Len(t, tbl.All(), 1)
}
