// Package chatlog implements the bounded chat deque of spec.md §3 ("Chat
// log") and the version-token change-detection scheme of spec.md §6.
// Grounded on taco/chat.go's deque(maxlen=CHAT_LOG_MAXSIZE) plus a random
// version counter, and on the teacher's anacrolix/sync mutex-wrapped
// owned-state style used throughout its torrent.Client fields.
package chatlog

import (
	"math/rand"

	"github.com/anacrolix/sync"
)

// MaxSize caps the log length, per spec.md §8's testable property
// "Chat log length ≤ CHAT_LOG_MAXSIZE" (CHAT_LOG_MAXSIZE in the original).
const MaxSize = 128

// Entry is one chat line.
type Entry struct {
	SenderID  string
	Timestamp int64
	Text      string
}

// Log is a size-bounded, append-only (oldest entries drop) chat history
// with a version token bumped on every append so the UI boundary can
// detect changes cheaply (spec.md §6's chat_version()).
type Log struct {
	mu      sync.Mutex
	entries []Entry
	version int64
}

func New() *Log {
	return &Log{version: rand.Int63()}
}

// Append adds an entry, evicting the oldest if the log is at capacity,
// and bumps the version token. Spec.md §4.4's chat semantics.
func (l *Log) Append(senderID string, ts int64, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{SenderID: senderID, Timestamp: ts, Text: text})
	if len(l.entries) > MaxSize {
		l.entries = l.entries[len(l.entries)-MaxSize:]
	}
	l.version++
}

// Entries returns a snapshot of the current log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Version returns the current version token.
func (l *Log) Version() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}
