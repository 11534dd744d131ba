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

import "github.com/farmemory/client/spantable"

// orderCandidates returns candidates reordered so that the span
// PickForEviction should evict first comes first, per worse(a, b):
// worse reports whether a should be evicted before b. Both recency
// (LRU/MRU) and Replay need exactly this: rank a small pin-free
// candidate set by some per-span score and hand back the full
// best-to-evict-first order, never just the single best candidate, so
// the eviction driver can keep walking the list if earlier candidates
// turn out to be too small or go stale before they're evicted.
//
// Candidate sets here are always small (pin-free local spans, a tiny
// fraction of everything allocated), so an in-place binary heap built
// by repeated sift and drained by repeated pop keeps the ordering
// logic self-contained and allocation-light.
func orderCandidates(candidates []spantable.ID, worse func(a, b spantable.ID) bool) []spantable.ID {
	h := append([]spantable.ID(nil), candidates...)
	heapify(h, worse)
	out := make([]spantable.ID, 0, len(h))
	for len(h) > 0 {
		out = append(out, popBest(&h, worse))
	}
	return out
}

// heapify arranges h into a min-heap (by worse) in place.
func heapify(h []spantable.ID, worse func(a, b spantable.ID) bool) {
	for i := len(h) - 1; i >= 0; i-- {
		siftDown(h, i, worse)
	}
}

// popBest removes and returns the best eviction candidate (the
// heap root), restoring the heap property over the remainder of *h.
func popBest(h *[]spantable.ID, worse func(a, b spantable.ID) bool) spantable.ID {
	x := *h
	best := x[0]
	x[0], *h = x[len(x)-1], x[:len(x)-1]
	if len(*h) > 0 {
		siftDown(*h, 0, worse)
	}
	return best
}

func siftDown(h []spantable.ID, index int, worse func(a, b spantable.ID) bool) {
	for {
		left := index*2 + 1
		right := left + 1
		if left >= len(h) {
			return
		}
		child := left
		if right < len(h) && worse(h[right], h[left]) {
			child = right
		}
		if !worse(h[child], h[index]) {
			return
		}
		h[index], h[child] = h[child], h[index]
		index = child
	}
}
