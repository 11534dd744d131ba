// Copyright (C) 2024 Far Memory Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package spantable implements the concurrent id -> state map at the
// heart of the far-memory client: the authoritative record of where
// each span's bytes currently live.
//
// The map itself (which ids exist) is guarded by a coarse RWMutex.
// Each entry additionally carries its own sync.Mutex so that With does
// not block callers mutating a different span's entry: readers of an
// already-local span only ever take the table's read lock plus that
// span's own entry lock, never a global write lock, which is what
// keeps the hot pin path lock-light.
package spantable

import (
	"fmt"
	"sync"

	"github.com/farmemory/client/span"
)

// ID is a 64-bit monotonically assigned span identifier.
type ID uint64

// State is one of the three places a span's bytes can be.
type State int

const (
	// Local means the entire span is resident in r.Region.
	Local State = iota
	// Partial means the prefix of length LocalSize is resident in
	// r.Region and the suffix lives in the backend.
	Partial
	// Remote means no bytes are resident locally; the backend holds
	// the entire span.
	Remote
)

func (s State) String() string {
	switch s {
	case Local:
		return "local"
	case Partial:
		return "partial"
	case Remote:
		return "remote"
	default:
		return "invalid"
	}
}

// Entry is one span's table row. Callers outside this package only ever
// see a copy (via Get/IterSnapshot) or a pointer scoped to the duration
// of a With callback; the authoritative Entry lives inside Table.
type Entry struct {
	State     State
	Region    *span.Region // non-nil iff State != Remote
	LocalSize int64
	TotalSize int64
	InUse     int32
	Poisoned  bool

	// SwapInFlight is set while one goroutine is paging this span's
	// remote bytes back in, so that a second pinner of the same span
	// waits for that swap-in instead of issuing its own (SwapIn is
	// destructive on the backend; two racing swap-ins would hand one
	// of them ErrNotFound for a perfectly healthy span).
	SwapInFlight bool

	mu   sync.Mutex
	cond *sync.Cond // lazily built; waiters on SwapInFlight
}

// Summary is a point-in-time, lock-free-to-read copy of an Entry,
// returned by Get and IterSnapshot.
type Summary struct {
	ID        ID
	State     State
	LocalSize int64
	TotalSize int64
	InUse     int32
	Poisoned  bool
}

func (e *Entry) summary(id ID) Summary {
	return Summary{
		ID:        id,
		State:     e.State,
		LocalSize: e.LocalSize,
		TotalSize: e.TotalSize,
		InUse:     e.InUse,
		Poisoned:  e.Poisoned,
	}
}

// Table is the concurrent span id -> state map.
type Table struct {
	mu      sync.RWMutex
	entries map[ID]*Entry
	next    ID
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[ID]*Entry)}
}

// NextID assigns and returns the next monotonically increasing span id.
// It does not insert anything into the table.
func (t *Table) NextID() ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	return id
}

// Insert adds a new entry for id. It panics if id already exists, since
// ids are assigned by NextID and are never reused.
func (t *Table) Insert(id ID, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		panic(fmt.Sprintf("spantable: duplicate insert of id %d", id))
	}
	t.entries[id] = e
}

// Remove deletes id's entry entirely. The client core never calls this
// today (spans are never explicitly freed once allocated), but
// higher-level adapters that add freeing semantics need it, so the
// table supports it.
func (t *Table) Remove(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Get returns a consistent snapshot of id's state, or ok=false if id
// does not exist.
func (t *Table) Get(id ID) (Summary, bool) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}
	e.mu.Lock()
	s := e.summary(id)
	e.mu.Unlock()
	return s, true
}

// With runs f under id's per-entry exclusive lock, holding only the
// table's read lock to look the entry up. f must not block on another
// span's With call or on backend I/O while holding f's entry lock
// longer than necessary, since With is on the hot pin path.
func (t *Table) With(id ID, f func(e *Entry)) error {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("spantable: unknown span %d", id)
	}
	e.mu.Lock()
	f(e)
	if e.cond != nil {
		// any mutation may be the one a WithWait caller is waiting on
		e.cond.Broadcast()
	}
	e.mu.Unlock()
	return nil
}

// WithWait is With for callers that may need to wait out another
// goroutine's in-flight work on the same entry: f runs under the
// per-entry lock and returns false to go back to sleep until the next
// mutation through With/WithWait, true when it has finished. The wait
// releases only the entry's own lock, never the table's, so waiting on
// one span does not stall operations on any other.
func (t *Table) WithWait(id ID, f func(e *Entry) (done bool)) error {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("spantable: unknown span %d", id)
	}
	e.mu.Lock()
	for !f(e) {
		if e.cond == nil {
			e.cond = sync.NewCond(&e.mu)
		}
		e.cond.Wait()
	}
	if e.cond != nil {
		e.cond.Broadcast()
	}
	e.mu.Unlock()
	return nil
}

// IterSnapshot returns a consistent snapshot of every entry's summary,
// used by eviction candidate selection.
func (t *Table) IterSnapshot() []Summary {
	t.mu.RLock()
	ids := make([]ID, 0, len(t.entries))
	ents := make([]*Entry, 0, len(t.entries))
	for id, e := range t.entries {
		ids = append(ids, id)
		ents = append(ents, e)
	}
	t.mu.RUnlock()

	out := make([]Summary, len(ids))
	for i, e := range ents {
		e.mu.Lock()
		out[i] = e.summary(ids[i])
		e.mu.Unlock()
	}
	return out
}

// Len reports the number of spans currently tracked.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
