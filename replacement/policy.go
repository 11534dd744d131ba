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

// Package replacement implements pluggable eviction-candidate
// ordering for the far-memory client: Random, LRU, MRU, trace-driven
// Replay, and a PreferRemote wrapper that composes any of the others.
package replacement

import "github.com/farmemory/client/spantable"

// Policy observes span lifecycle events and answers eviction queries.
// Implementations must be safe for concurrent use: an observation hook
// may run concurrently with PickForEviction or with another
// observation hook.
type Policy interface {
	// PickForEviction orders candidates from best-to-evict first. It
	// must return at least one id when candidates is non-empty, and
	// must not return ids absent from candidates.
	PickForEviction(candidates []spantable.ID) []spantable.ID

	// OnSpanAccess is called whenever a span is pinned (including the
	// allocation that creates it).
	OnSpanAccess(id spantable.ID)

	// OnSpanSwapIn is called after a span's bytes are paged back from
	// the backend, whether in full or to satisfy ensure_local_under.
	OnSpanSwapIn(id spantable.ID)

	// OnSpanSwapOut is called after a span (or a prefix/suffix of one)
	// is evicted. partial is true when the span remains resident in
	// part (state became Partial rather than Remote).
	OnSpanSwapOut(id spantable.ID, partial bool)

	// OnStop flushes any persistent state (only Replay has any).
	OnStop() error
}
