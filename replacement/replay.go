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

package replacement

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/farmemory/client/spantable"
)

// traceRecord is one {time_step, span_id} pair of the on-disk trace
// format: a little-endian uint64 record count followed by that many
// 16-byte records.
type traceRecord struct {
	TimeStep uint64
	SpanID   uint64
}

// Replay drives eviction from a prerecorded access trace: the
// candidate whose next occurrence in the remaining trace is furthest
// away is preferred for eviction (it won't be needed again for the
// longest time). If path does not exist at construction, Replay
// records the live access sequence to path instead and delegates
// every PickForEviction call to fallback; once the trace is exhausted
// during replay, it also delegates to fallback for the rest of the
// run.
type Replay struct {
	path     string
	fallback Policy

	mu        sync.Mutex
	recording bool
	clock     uint64

	// replay mode state
	trace    []traceRecord
	pos      int // index of the next unconsumed trace record
	recorded []traceRecord
}

// NewReplay returns a Replay policy. path's existence at call time
// selects the mode: an absent file means record, a present one means
// replay.
func NewReplay(path string, fallback Policy) (*Replay, error) {
	r := &Replay{path: path, fallback: fallback}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		r.recording = true
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replacement: replay: opening trace %s: %w", path, err)
	}
	defer f.Close()
	trace, err := readTrace(f)
	if err != nil {
		return nil, fmt.Errorf("replacement: replay: reading trace %s: %w", path, err)
	}
	r.trace = trace
	return r, nil
}

func readTrace(f *os.File) ([]traceRecord, error) {
	br := bufio.NewReader(f)
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]traceRecord, count)
	for i := range out {
		if err := binary.Read(br, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

func writeTrace(path string, records []traceRecord) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		f.Close()
		return err
	}
	for _, rec := range records {
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (r *Replay) OnSpanAccess(id spantable.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		r.recorded = append(r.recorded, traceRecord{TimeStep: r.clock, SpanID: uint64(id)})
		r.clock++
		return
	}
	// advance replay position past this access so the "remaining
	// trace" used by PickForEviction starts after it
	if r.pos < len(r.trace) && r.trace[r.pos].SpanID == uint64(id) {
		r.pos++
	}
	r.fallback.OnSpanAccess(id)
}

func (r *Replay) OnSpanSwapIn(id spantable.ID) { r.fallback.OnSpanSwapIn(id) }

func (r *Replay) OnSpanSwapOut(id spantable.ID, partial bool) {
	r.fallback.OnSpanSwapOut(id, partial)
}

func (r *Replay) OnStop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		if err := writeTrace(r.path, r.recorded); err != nil {
			return fmt.Errorf("replacement: replay: flushing trace: %w", err)
		}
	}
	return r.fallback.OnStop()
}

// PickForEviction prefers, among candidates, whichever span's next
// occurrence in the remaining trace is furthest away (or absent
// entirely, which counts as "furthest" of all). When recording, or
// once the trace is exhausted, it delegates to fallback outright.
func (r *Replay) PickForEviction(candidates []spantable.ID) []spantable.ID {
	r.mu.Lock()
	if r.recording || r.pos >= len(r.trace) {
		r.mu.Unlock()
		return r.fallback.PickForEviction(candidates)
	}

	const unreferenced = math.MaxInt
	distance := make(map[spantable.ID]int, len(candidates))
	want := make(map[uint64]bool, len(candidates))
	for _, id := range candidates {
		want[uint64(id)] = true
		distance[id] = unreferenced
	}
	remaining := len(want)
	for i := r.pos; i < len(r.trace) && remaining > 0; i++ {
		id := spantable.ID(r.trace[i].SpanID)
		if !want[uint64(id)] {
			continue
		}
		if distance[id] == unreferenced {
			distance[id] = i - r.pos
			remaining--
		}
	}
	r.mu.Unlock()

	// furthest-future-reference wins eviction first.
	worse := func(a, b spantable.ID) bool { return distance[a] > distance[b] }
	return orderCandidates(candidates, worse)
}
