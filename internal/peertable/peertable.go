// Package peertable holds the peer record table described in spec.md §3:
// identity -> record, keyed uniquely, never containing the local node's
// own identity. Iteration order is preserved (orderedmap, the teacher's
// dependency) so the UI's peer listing and C2's reconciliation pass are
// deterministic between runs.
package peertable

import (
	"sync"

	"github.com/elliotchance/orderedmap"
)

// Record is one row of the peer table (spec.md §3).
type Record struct {
	Identity        string
	Hostname        string
	Port            uint16
	Enabled         bool
	Dynamic         bool
	LocalNickname   string
	RemoteNickname  string
	ClientPublicKey []byte
	ServerPublicKey []byte
}

// Table owns the peer -> Record mapping plus the lock disciplining access
// to it, per spec.md §5 ("settings -> peer-tables -> individual queues").
type Table struct {
	mu   sync.RWMutex
	byID *orderedmap.OrderedMap // string identity -> *Record
}

func New() *Table {
	return &Table{byID: orderedmap.NewOrderedMap()}
}

// Put inserts or replaces a record. It is the caller's job to ensure
// localIdentity is never passed here (spec.md §3 invariant).
func (t *Table) Put(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID.Set(r.Identity, &r)
}

func (t *Table) Get(identity string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	raw, ok := t.byID.Get(identity)
	if !ok {
		return Record{}, false
	}
	return *raw.(*Record), true
}

func (t *Table) Remove(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID.Delete(identity)
}

// SetEnabled flips the enabled flag for an existing peer, returning false
// if the peer is unknown.
func (t *Table) SetEnabled(identity string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, ok := t.byID.Get(identity)
	if !ok {
		return false
	}
	raw.(*Record).Enabled = enabled
	return true
}

// All returns a snapshot slice of every record, in table order.
func (t *Table) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, t.byID.Len())
	for el := t.byID.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*Record))
	}
	return out
}

// Enabled returns a snapshot of every enabled record, in table order.
func (t *Table) Enabled() []Record {
	all := t.All()
	out := all[:0:0]
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether identity is present in the table.
func (t *Table) Has(identity string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byID.Get(identity)
	return ok
}
