package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysLive(string) bool { return true }

func TestSingleChunkTransferCompletes(t *testing.T) {
	downloadDir := t.TempDir()
	data := []byte("hello, taco")

	var sentUUID string
	var sentPeer string
	buildReq := func(shareDir, fileName string, offset int64, chunkUUID string) []byte {
		sentUUID = chunkUUID
		return []byte(chunkUUID)
	}
	send := func(peerID string, payload []byte) { sentPeer = peerID }

	c := New(downloadDir, buildReq, send, alwaysLive)
	defer c.Close()

	item := Item{ShareDir: "docs", FileName: "f.txt", FileSize: int64(len(data))}
	c.Add("peer-1", item)

	c.Tick("peer-1")
	require.NotEmpty(t, sentUUID)
	assert.Equal(t, "peer-1", sentPeer)

	c.HandleData("peer-1", sentUUID, data)

	got, err := os.ReadFile(filepath.Join(downloadDir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	completed := c.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, "peer-1", completed[0].PeerID)
	assert.Equal(t, "f.txt", completed[0].FileName)

	assert.Empty(t, c.Get("peer-1"))
}

func TestHandleAckErrorAbortsTransfer(t *testing.T) {
	downloadDir := t.TempDir()
	var sentUUID string
	buildReq := func(shareDir, fileName string, offset int64, chunkUUID string) []byte {
		sentUUID = chunkUUID
		return nil
	}
	c := New(downloadDir, buildReq, func(string, []byte) {}, alwaysLive)
	defer c.Close()

	c.Add("peer-1", Item{ShareDir: "docs", FileName: "big.bin", FileSize: 1 << 20})
	c.Tick("peer-1")
	require.NotEmpty(t, sentUUID)

	c.HandleAck("peer-1", sentUUID, false)

	// Aborted: re-ticking must start the transfer over, not resume.
	var secondUUID string
	sentUUID = ""
	c.Tick("peer-1")
	_ = secondUUID
	assert.NotEmpty(t, sentUUID)
}

func TestDownloadQueueAddRemoveMove(t *testing.T) {
	c := New(t.TempDir(), func(string, string, int64, string) []byte { return nil }, func(string, []byte) {}, alwaysLive)
	defer c.Close()

	c.Add("peer-1", Item{FileName: "a"})
	c.Add("peer-1", Item{FileName: "b"})
	c.Add("peer-1", Item{FileName: "c"})

	require.NoError(t, c.Move("peer-1", 2, 0))
	items := c.Get("peer-1")
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].FileName)

	require.NoError(t, c.Remove("peer-1", 1))
	items = c.Get("peer-1")
	require.Len(t, items, 2)
	assert.Equal(t, []string{"c", "b"}, []string{items[0].FileName, items[1].FileName})

	require.Error(t, c.Remove("peer-1", 5))
}

func TestTickIdlesWhenPeerNotLive(t *testing.T) {
	sendCount := 0
	c := New(t.TempDir(),
		func(string, string, int64, string) []byte { return nil },
		func(string, []byte) { sendCount++ },
		func(string) bool { return false },
	)
	defer c.Close()

	c.Add("peer-1", Item{FileName: "a", FileSize: 1})
	c.Tick("peer-1")
	assert.Equal(t, 0, sendCount)
}
