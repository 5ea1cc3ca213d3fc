// Package transfer implements C8, the per-peer credit-based chunked
// download state machine of spec.md §4.8. Grounded on the teacher's
// request-tracking style in its peer piece-request bookkeeping
// (anacrolix/torrent's per-connection outstanding-request accounting)
// generalized from bitfield pieces to named chunk-uuids, and on
// taco/download.go's pending/requested chunk-set bookkeeping for the
// exact state-transition rules. File-handle caching uses
// hashicorp/golang-lru, also present in the example pack
// (ethereum-go-ethereum's ChainManager block cache).
package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/anacrolix/log"
	"github.com/google/uuid"

	"github.com/taconet/taco/internal/metrics"
	"github.com/taconet/taco/internal/protoconst"
)

const inProgressSuffix = ".filepart"

var logger = log.Default.WithNames("taco", "transfer")

// Item is one queued download: a file offered by a peer under one of its
// declared shares. Spec.md §3's "Download queue".
type Item struct {
	ShareDir    string
	FileName    string
	FileSize    int64
	FileModTime time.Time
}

// Completed is one finished transfer record. Spec.md §3's "Completed
// queue".
type Completed struct {
	Time     time.Time
	PeerID   string
	ShareDir string
	FileName string
	FileSize int64
}

type chunkStatus struct {
	offset          int64
	requestSentTime time.Time
	ackTime         time.Time
}

// activeTransfer is the live state for a peer's queue head. Spec.md §3's
// "Active download state".
type activeTransfer struct {
	item Item

	partialPath string
	finalPath   string

	pending   []chunkStatus
	requested map[string]*chunkStatus // chunk-uuid -> status

	lastChunkReceived time.Time
}

func (a *activeTransfer) inFlight() int { return len(a.pending) + len(a.requested) }

// Sender is how the coordinator pushes an outgoing get-file-chunk
// request; the Session Supervisor (C9) supplies this, enqueuing onto the
// peer's file priority queue.
type Sender func(peerID string, payload []byte)

// BuildRequest constructs the get-file-chunk wire payload for one chunk.
// Kept as a function value so transfer does not import command (which
// would create a cycle back through the Host interface); Coordinator is
// constructed with it bound to command.BuildGetFileChunk.
type BuildRequest func(shareDir, fileName string, offset int64, chunkUUID string) []byte

// Liveness reports whether a peer's session is currently reachable in
// both directions, per spec.md §4.8's "Peer liveness gate".
type Liveness func(peerID string) bool

// Coordinator owns the per-peer download queues and active transfer
// state. The Session Supervisor (C9) holds the one instance; the client
// engine (C6) calls its Tick. It is otherwise safe for concurrent use
// from the UI boundary (download_queue_add/remove/move/get,
// completed_queue_get/clear).
type Coordinator struct {
	mu sync.Mutex

	downloadDir string
	buildReq    BuildRequest
	send        Sender
	live        Liveness

	queues  map[string][]Item
	active  map[string]*activeTransfer
	stalled map[string]bool

	completed []Completed

	readCache  *lru.Cache
	writeCache *lru.Cache
}

func New(downloadDir string, buildReq BuildRequest, send Sender, live Liveness) *Coordinator {
	readCache, _ := lru.NewWithEvict(64, evictReadHandle)
	writeCache, _ := lru.NewWithEvict(64, evictWriteHandle)
	return &Coordinator{
		downloadDir: downloadDir,
		buildReq:    buildReq,
		send:        send,
		live:        live,
		queues:      make(map[string][]Item),
		active:      make(map[string]*activeTransfer),
		stalled:     make(map[string]bool),
		readCache:   readCache,
		writeCache:  writeCache,
	}
}

func evictReadHandle(key, value interface{}) {
	if f, ok := value.(*os.File); ok {
		f.Close()
	}
}

func evictWriteHandle(key, value interface{}) {
	if f, ok := value.(*os.File); ok {
		f.Close()
	}
}

// Add appends an item to a peer's download queue (download_queue_add).
func (c *Coordinator) Add(peerID string, item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[peerID] = append(c.queues[peerID], item)
}

// Remove deletes the item at index from a peer's queue
// (download_queue_remove). Removing the head aborts any active transfer
// for that peer.
func (c *Coordinator) Remove(peerID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queues[peerID]
	if index < 0 || index >= len(q) {
		return fmt.Errorf("transfer: index %d out of range for peer %s", index, peerID)
	}
	if index == 0 {
		delete(c.active, peerID)
	}
	c.queues[peerID] = append(q[:index], q[index+1:]...)
	return nil
}

// Move reorders item from one index to another within a peer's queue
// (download_queue_move). Moving the head away aborts its active state;
// it is rebuilt from scratch if it becomes head again.
func (c *Coordinator) Move(peerID string, from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queues[peerID]
	if from < 0 || from >= len(q) || to < 0 || to >= len(q) {
		return fmt.Errorf("transfer: move index out of range for peer %s", peerID)
	}
	item := q[from]
	q = append(q[:from], q[from+1:]...)
	q = append(q[:to], append([]Item{item}, q[to:]...)...)
	c.queues[peerID] = q
	if from == 0 || to == 0 {
		delete(c.active, peerID)
	}
	return nil
}

// Get returns a snapshot of a peer's download queue (download_queue_get).
func (c *Coordinator) Get(peerID string) []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.queues[peerID]))
	copy(out, c.queues[peerID])
	return out
}

// Completed returns a snapshot of the completed queue
// (completed_queue_get).
func (c *Coordinator) Completed() []Completed {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Completed, len(c.completed))
	copy(out, c.completed)
	return out
}

// ClearCompleted empties the completed queue (completed_queue_clear).
func (c *Coordinator) ClearCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = nil
}

// Tick drives one coordinator pass for one peer: initializes a transfer
// if the head changed, issues credit-bounded chunk requests, and checks
// for a stall. Called from C6's per-peer tick (clientengine's
// fileTransaction), so peers are visited in C6's randomized order and
// only while the download rate is below its cap; the coordinator runs
// no loop of its own.
func (c *Coordinator) Tick(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[peerID]
	if len(q) == 0 {
		delete(c.active, peerID)
		return
	}
	if !c.live(peerID) {
		// Peer liveness gate: idle, not an error.
		return
	}

	head := q[0]
	at, ok := c.active[peerID]
	if !ok || at.item != head {
		var err error
		at, err = c.initTransfer(peerID, head)
		if err != nil {
			logger.Levelf(log.Warning, "transfer init failed for %s/%s from %s: %v", head.ShareDir, head.FileName, peerID, err)
			return
		}
		if at == nil {
			// already complete, finalized and popped inside initTransfer
			metrics.ActiveTransfers.Set(float64(len(c.active)))
			return
		}
		c.active[peerID] = at
		metrics.ActiveTransfers.Set(float64(len(c.active)))
	}

	c.checkStall(peerID, at)
	c.issueCredit(peerID, at)
}

// initTransfer implements spec.md §4.8's "Initialization of a transfer".
// Caller holds c.mu.
func (c *Coordinator) initTransfer(peerID string, item Item) (*activeTransfer, error) {
	partialPath := filepath.Join(c.downloadDir, item.FileName+inProgressSuffix)
	finalPath := filepath.Join(c.downloadDir, item.FileName)

	currentSize := int64(0)
	if fi, err := os.Stat(partialPath); err == nil {
		currentSize = fi.Size()
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if currentSize == item.FileSize {
		if err := c.finalize(peerID, item, partialPath, finalPath); err != nil {
			return nil, err
		}
		return nil, nil
	}

	at := &activeTransfer{
		item:              item,
		partialPath:       partialPath,
		finalPath:         finalPath,
		requested:         make(map[string]*chunkStatus),
		lastChunkReceived: time.Now(),
	}
	for offset := currentSize; offset < item.FileSize; offset += protoconst.FileChunkSize {
		at.pending = append(at.pending, chunkStatus{offset: offset})
	}
	// reverse so pop() (from the tail) yields lowest offset first
	for i, j := 0, len(at.pending)-1; i < j; i, j = i+1, j-1 {
		at.pending[i], at.pending[j] = at.pending[j], at.pending[i]
	}
	delete(c.stalled, peerID)
	return at, nil
}

// issueCredit implements spec.md §4.8's "Credit-based issuing". Caller
// holds c.mu.
func (c *Coordinator) issueCredit(peerID string, at *activeTransfer) {
	for len(at.pending) > 0 && len(at.requested) < protoconst.CreditMax {
		next := at.pending[len(at.pending)-1]
		at.pending = at.pending[:len(at.pending)-1]

		chunkUUID := uuid.NewString()
		next.requestSentTime = time.Now()
		at.requested[chunkUUID] = &next

		payload := c.buildReq(at.item.ShareDir, at.item.FileName, next.offset, chunkUUID)
		c.send(peerID, payload)
	}
}

// HandleAck implements spec.md §4.8's "Ack handling": status=ok marks
// ack_time; status=error aborts the transfer by dropping its active
// state. The item stays at the head of the queue, so the next Tick
// rebuilds the transfer from the current partial-file size.
func (c *Coordinator) HandleAck(peerID, chunkUUID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, found := c.active[peerID]
	if !found {
		return
	}
	status, found := at.requested[chunkUUID]
	if !found {
		return
	}
	if ok {
		status.ackTime = time.Now()
		return
	}
	logger.Levelf(log.Warning, "chunk %s failed for %s/%s from %s, aborting transfer", chunkUUID, at.item.ShareDir, at.item.FileName, peerID)
	delete(c.active, peerID)
}

// HandleData implements spec.md §4.8's "Data handling".
func (c *Coordinator) HandleData(peerID, chunkUUID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, found := c.active[peerID]
	if !found {
		logger.Levelf(log.Warning, "dropping chunk %s for unknown transfer from %s", chunkUUID, peerID)
		return
	}
	status, found := at.requested[chunkUUID]
	if !found {
		logger.Levelf(log.Warning, "dropping chunk %s with unknown uuid from %s", chunkUUID, peerID)
		return
	}

	f, err := c.writeHandle(at.partialPath)
	if err != nil {
		logger.Levelf(log.Warning, "opening partial file %s failed: %v", at.partialPath, err)
		return
	}
	if _, err := f.WriteAt(data, status.offset); err != nil {
		logger.Levelf(log.Warning, "writing chunk %s to %s failed: %v", chunkUUID, at.partialPath, err)
		return
	}

	delete(at.requested, chunkUUID)
	at.lastChunkReceived = time.Now()
	delete(c.stalled, peerID)

	fi, err := f.Stat()
	if err == nil && fi.Size() >= at.item.FileSize && at.inFlight() == 0 {
		c.writeCache.Remove(at.partialPath)
		if err := c.finalize(peerID, at.item, at.partialPath, at.finalPath); err != nil {
			logger.Levelf(log.Warning, "finalizing %s from %s failed: %v", at.item.FileName, peerID, err)
			return
		}
		delete(c.active, peerID)
	}
}

// checkStall implements spec.md §4.8's "Stall detection". Caller holds
// c.mu.
func (c *Coordinator) checkStall(peerID string, at *activeTransfer) {
	if at.inFlight() == 0 {
		return
	}
	if time.Since(at.lastChunkReceived) <= protoconst.DataTimeout {
		return
	}
	if c.stalled[peerID] {
		return
	}
	logger.Levelf(log.Warning, "transfer %s/%s from %s stalled, re-issuing", at.item.ShareDir, at.item.FileName, peerID)
	c.stalled[peerID] = true
	for _, status := range at.requested {
		at.pending = append(at.pending, *status)
	}
	at.requested = make(map[string]*chunkStatus)
}

// finalize renames the partial file to its final name, disambiguating if
// the target exists, appends a completion record, and pops the peer's
// queue head. Caller holds c.mu.
func (c *Coordinator) finalize(peerID string, item Item, partialPath, finalPath string) error {
	target := finalPath
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(finalPath)
		base := finalPath[:len(finalPath)-len(ext)]
		target = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
	if err := os.Rename(partialPath, target); err != nil {
		return err
	}
	c.completed = append(c.completed, Completed{
		Time:     time.Now(),
		PeerID:   peerID,
		ShareDir: item.ShareDir,
		FileName: item.FileName,
		FileSize: item.FileSize,
	})
	c.queues[peerID] = c.queues[peerID][1:]
	return nil
}

func (c *Coordinator) writeHandle(path string) (*os.File, error) {
	if v, ok := c.writeCache.Get(path); ok {
		return v.(*os.File), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	c.writeCache.Add(path, f)
	return f, nil
}

// ReadHandle returns a cached (or freshly opened) read handle for the
// outgoing chunk service (callee side of get-file-chunk), per spec.md
// §4.8's "Outgoing chunk service".
func (c *Coordinator) ReadHandle(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.readCache.Get(path); ok {
		return v.(*os.File), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c.readCache.Add(path, f)
	return f, nil
}

// Close releases every cached file handle. Part of spec.md §4.9's
// shutdown() contract.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readCache.Purge()
	c.writeCache.Purge()
}
