package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := Load(path, nil)
	require.NoError(t, err)

	doc := store.Get()
	assert.Equal(t, 9700, doc.ApplicationPort)
	assert.Equal(t, 8700, doc.WebPort)
	assert.Equal(t, "downloads", doc.DownloadLocation)

	// The defaults must have been persisted, so a fresh Load round-trips.
	reloaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, doc, reloaded.Get())
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	var notified Document
	calls := 0
	store, err := Load(path, func(d Document) { notified = d; calls++ })
	require.NoError(t, err)

	err = store.Update(func(d *Document) { d.Nickname = "alice" })
	require.NoError(t, err)

	assert.Equal(t, "alice", store.Get().Nickname)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "alice", notified.Nickname)

	reloaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", reloaded.Get().Nickname)
}

func TestPeerEntryJSONKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := Load(path, nil)
	require.NoError(t, err)

	err = store.Update(func(d *Document) {
		d.Peers["peer-1"] = PeerEntry{Hostname: "example.com", Port: 9700, Enabled: true}
	})
	require.NoError(t, err)

	reloaded, err := Load(path, nil)
	require.NoError(t, err)
	entry, ok := reloaded.Get().Peers["peer-1"]
	require.True(t, ok)
	assert.Equal(t, "example.com", entry.Hostname)
	assert.True(t, entry.Enabled)
}
