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
	"sync"

	"github.com/farmemory/client/spantable"
)

// recency tracks a logical clock's value as of each span's last access
// (including swap-in, which counts as an access since it's always
// immediately followed by a pin) and orders eviction candidates by
// that value. LRU wants the smallest value first and MRU the largest:
// both are the same bookkeeping with the comparison direction flipped,
// which is why they share one type instead of being duplicated.
type recency struct {
	mu       sync.Mutex
	clock    uint64
	lastSeen map[spantable.ID]uint64
	mru      bool
}

// NewLRU returns a least-recently-used policy: PickForEviction orders
// the span least recently touched first.
func NewLRU() Policy {
	return &recency{lastSeen: make(map[spantable.ID]uint64)}
}

// NewMRU returns a most-recently-used policy: PickForEviction orders
// the span most recently touched first. This suits workloads that
// scan a working set larger than local memory in a fixed repeating
// order, where the most-recently-touched span is the one furthest
// from being referenced again.
func NewMRU() Policy {
	return &recency{lastSeen: make(map[spantable.ID]uint64), mru: true}
}

func (r *recency) touch(id spantable.ID) {
	r.mu.Lock()
	r.clock++
	r.lastSeen[id] = r.clock
	r.mu.Unlock()
}

func (r *recency) OnSpanAccess(id spantable.ID) { r.touch(id) }
func (r *recency) OnSpanSwapIn(id spantable.ID) { r.touch(id) }

func (r *recency) OnSpanSwapOut(id spantable.ID, partial bool) {
	if partial {
		// still resident in part; keep its recency so a later full
		// eviction doesn't treat it as never-accessed
		return
	}
	r.mu.Lock()
	delete(r.lastSeen, id)
	r.mu.Unlock()
}

func (r *recency) OnStop() error { return nil }

func (r *recency) PickForEviction(candidates []spantable.ID) []spantable.ID {
	r.mu.Lock()
	seen := make(map[spantable.ID]uint64, len(candidates))
	for _, id := range candidates {
		v, ok := r.lastSeen[id]
		if !ok {
			// never observed (shouldn't happen in practice, since
			// every candidate was at least allocated); treat as
			// oldest so it's preferred for eviction under LRU and
			// least preferred under MRU
			v = 0
		}
		seen[id] = v
	}
	r.mu.Unlock()

	worse := func(a, b spantable.ID) bool {
		if r.mru {
			return seen[a] > seen[b]
		}
		return seen[a] < seen[b]
	}
	return orderCandidates(candidates, worse)
}
