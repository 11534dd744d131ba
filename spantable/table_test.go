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

package spantable

import (
	"sync"
	"testing"
	"time"

	"github.com/farmemory/client/span"
)

func TestInsertGet(t *testing.T) {
	tbl := New()
	id := tbl.NextID()
	r, _ := span.Alloc(10)
	tbl.Insert(id, &Entry{State: Local, Region: r, LocalSize: 10, TotalSize: 10})

	s, ok := tbl.Get(id)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if s.State != Local || s.LocalSize != 10 || s.TotalSize != 10 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if _, ok := tbl.Get(id + 1); ok {
		t.Fatal("expected unknown id to be absent")
	}
}

func TestWithMutation(t *testing.T) {
	tbl := New()
	id := tbl.NextID()
	tbl.Insert(id, &Entry{State: Local, LocalSize: 5, TotalSize: 5})

	err := tbl.With(id, func(e *Entry) {
		e.InUse++
	})
	if err != nil {
		t.Fatal(err)
	}
	s, _ := tbl.Get(id)
	if s.InUse != 1 {
		t.Fatalf("expected InUse 1, got %d", s.InUse)
	}
}

func TestWithUnknownID(t *testing.T) {
	tbl := New()
	if err := tbl.With(ID(999), func(e *Entry) {}); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestIterSnapshotConsistentUnderConcurrentAccess(t *testing.T) {
	tbl := New()
	const n = 50
	for i := 0; i < n; i++ {
		id := tbl.NextID()
		tbl.Insert(id, &Entry{State: Local, LocalSize: int64(i), TotalSize: int64(i)})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id ID) {
			defer wg.Done()
			tbl.With(id, func(e *Entry) { e.InUse++ })
		}(ID(i))
	}
	wg.Wait()

	snap := tbl.IterSnapshot()
	if len(snap) != n {
		t.Fatalf("expected %d entries, got %d", n, len(snap))
	}
	for _, s := range snap {
		if s.InUse != 1 {
			t.Fatalf("span %d: expected InUse 1, got %d", s.ID, s.InUse)
		}
	}
}

func TestWithWaitWakesOnMutation(t *testing.T) {
	tbl := New()
	id := tbl.NextID()
	tbl.Insert(id, &Entry{State: Remote, TotalSize: 10, SwapInFlight: true})

	woke := make(chan struct{})
	go func() {
		err := tbl.WithWait(id, func(e *Entry) bool {
			return !e.SwapInFlight
		})
		if err != nil {
			t.Error(err)
		}
		close(woke)
	}()

	// the waiter must be asleep until the flag clears
	select {
	case <-woke:
		t.Fatal("WithWait returned before the condition held")
	case <-time.After(10 * time.Millisecond):
	}

	if err := tbl.With(id, func(e *Entry) { e.SwapInFlight = false }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("WithWait did not wake after the flag cleared")
	}
}

func TestConcurrentDistinctSpansDontSerialize(t *testing.T) {
	tbl := New()
	a, b := tbl.NextID(), tbl.NextID()
	tbl.Insert(a, &Entry{State: Local})
	tbl.Insert(b, &Entry{State: Local})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		tbl.With(a, func(e *Entry) {
			close(started)
			<-release
		})
		close(done)
	}()
	<-started

	// b must be reachable while a's With callback is still blocked.
	if err := tbl.With(b, func(e *Entry) { e.InUse++ }); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done
}
