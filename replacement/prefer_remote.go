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

// PreferRemote wraps another policy and biases eviction toward spans
// that have already been remote at some point: it maintains the set of
// recently-evicted span ids, and when a PickForEviction call's
// candidates intersect that set, it defers to the wrapped policy on
// just that intersection rather than the full candidate set. The
// intuition is that a span already paged out once is cheaper to evict
// again (its bytes may still be resident on the backend, skipping a
// redundant swap-out) than one that has never left local memory.
type PreferRemote struct {
	inner Policy

	mu              sync.Mutex
	recentlyEvicted map[spantable.ID]struct{}
}

// NewPreferRemote wraps inner.
func NewPreferRemote(inner Policy) *PreferRemote {
	return &PreferRemote{inner: inner, recentlyEvicted: make(map[spantable.ID]struct{})}
}

func (p *PreferRemote) PickForEviction(candidates []spantable.ID) []spantable.ID {
	p.mu.Lock()
	var subset []spantable.ID
	for _, id := range candidates {
		if _, ok := p.recentlyEvicted[id]; ok {
			subset = append(subset, id)
		}
	}
	p.mu.Unlock()

	if len(subset) > 0 {
		return p.inner.PickForEviction(subset)
	}
	return p.inner.PickForEviction(candidates)
}

func (p *PreferRemote) OnSpanAccess(id spantable.ID) { p.inner.OnSpanAccess(id) }

func (p *PreferRemote) OnSpanSwapIn(id spantable.ID) {
	p.mu.Lock()
	delete(p.recentlyEvicted, id)
	p.mu.Unlock()
	p.inner.OnSpanSwapIn(id)
}

func (p *PreferRemote) OnSpanSwapOut(id spantable.ID, partial bool) {
	p.mu.Lock()
	p.recentlyEvicted[id] = struct{}{}
	p.mu.Unlock()
	p.inner.OnSpanSwapOut(id, partial)
}

func (p *PreferRemote) OnStop() error { return p.inner.OnStop() }
