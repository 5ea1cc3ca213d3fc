// Package queue implements C5 (spec.md §4.5): the four FIFO priority
// queues owned by each connected peer's Session, plus the Session struct
// itself (spec.md §3's "per-peer session struct" design note — one struct
// per peer instead of four parallel maps keyed by peer-id, eliminating the
// distributed-delete problem on disconnect).
package queue

import (
	"sync"
	"time"

	"github.com/anacrolix/generics"

	"github.com/taconet/taco/internal/ratecount"
)

type Priority int

const (
	High Priority = iota
	Medium
	Low
	File
)

// fifo is a simple mutex-guarded byte-slice queue.
type fifo struct {
	mu    sync.Mutex
	items [][]byte
}

func (q *fifo) push(b []byte) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
}

func (q *fifo) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

func (q *fifo) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *fifo) length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Queues bundles the four priority FIFOs a live session owns. Created
// when a session becomes connected, discarded (along with any unsent
// backlog) when it disconnects — spec.md §4.5, testable property in §8
// ("no data from the previous session can be delivered on the new
// session").
type Queues struct {
	high, medium, low, file fifo
}

func NewQueues() *Queues { return &Queues{} }

func (qs *Queues) Push(p Priority, b []byte) {
	switch p {
	case High:
		qs.high.push(b)
	case Medium:
		qs.medium.push(b)
	case Low:
		qs.low.push(b)
	case File:
		qs.file.push(b)
	}
}

func (qs *Queues) Pop(p Priority) ([]byte, bool) {
	switch p {
	case High:
		return qs.high.pop()
	case Medium:
		return qs.medium.pop()
	case Low:
		return qs.low.pop()
	case File:
		return qs.file.pop()
	default:
		return nil, false
	}
}

// Len reports how many messages are currently queued at priority p, for
// status/metrics reporting.
func (qs *Queues) Len(p Priority) int {
	switch p {
	case High:
		return qs.high.length()
	case Medium:
		return qs.medium.length()
	case Low:
		return qs.low.length()
	case File:
		return qs.file.length()
	default:
		return 0
	}
}

func (qs *Queues) Empty(p Priority) bool {
	switch p {
	case High:
		return qs.high.empty()
	case Medium:
		return qs.medium.empty()
	case Low:
		return qs.low.empty()
	case File:
		return qs.file.empty()
	default:
		return true
	}
}

// Session is the runtime state the client engine (C6) keeps for one
// enabled peer, per spec.md §3.
type Session struct {
	mu sync.Mutex

	PeerID string

	ConnectTime      time.Time
	ReconnectBackoff time.Duration
	LastReplyTime    time.Time
	LivenessDeadline time.Time
	NextRollcall     time.Time

	// BytesSent/BytesReceived are this session's lifetime totals, per
	// peer, adapted from the teacher's Count type (there, per-torrent
	// ConnStats fields) for the peer_status() UI boundary.
	BytesSent     ratecount.Count
	BytesReceived ratecount.Count

	queues    generics.Option[*Queues]
	transport generics.Option[any] // holds a *transport.Dealer; any to avoid an import cycle
}

func NewSession(peerID string) *Session {
	return &Session{PeerID: peerID}
}

// Connected reports whether the session currently owns a transport handle,
// i.e. has live queues. Spec.md §3 invariant: a session has a transport
// handle iff connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.Ok
}

// Queues returns the live queue set, or nil if disconnected.
func (s *Session) Queues() *Queues {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.queues.Ok {
		return nil
	}
	return s.queues.Value
}

// Transport returns the live transport handle (as `any`), or ok=false if
// disconnected.
func (s *Session) Transport() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.Value, s.transport.Ok
}

// Connect installs a fresh, empty queue set and transport handle,
// atomically with respect to Disconnect — spec.md §3's "on transport
// removal all four queues are discarded" and its mirror image here.
func (s *Session) Connect(transport any) *Queues {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := NewQueues()
	s.queues = generics.Some(qs)
	s.transport = generics.Some(transport)
	return qs
}

// Disconnect removes the transport handle and discards the four queues.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = generics.None[*Queues]()
	s.transport = generics.None[any]()
}
