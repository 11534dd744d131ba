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

package backend

import (
	"fmt"
	"sync"
)

// Replicated fans out every SwapOut to all of its member backends and
// satisfies SwapIn from the first member that has the span, so the
// client survives the loss of all but one replica.
type Replicated struct {
	members []Backend
}

// NewReplicated returns a Replicated backend over members. It panics if
// members is empty.
func NewReplicated(members ...Backend) *Replicated {
	if len(members) == 0 {
		panic("backend: Replicated needs at least one member")
	}
	return &Replicated{members: members}
}

func (r *Replicated) SwapOut(id ID, bytes []byte, prepend bool) error {
	var wg sync.WaitGroup
	errs := make([]error, len(r.members))
	for i, m := range r.members {
		wg.Add(1)
		go func(i int, m Backend) {
			defer wg.Done()
			errs[i] = m.SwapOut(id, bytes, prepend)
		}(i, m)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("backend: replicated: swap-out of span %d failed on at least one replica: %w", id, err)
		}
	}
	return nil
}

// SwapIn reads from the first replica that has the span and then issues
// a best-effort SwapIn against the remaining replicas so none of them
// are left holding a stale copy after this span becomes locally pinned.
func (r *Replicated) SwapIn(id ID) ([]byte, error) {
	var out []byte
	var firstErr error
	for _, m := range r.members {
		b, err := m.SwapIn(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if out == nil {
			out = b
		}
	}
	if out == nil {
		if firstErr == nil {
			firstErr = ErrNotFound
		}
		return nil, fmt.Errorf("backend: replicated: swap-in of span %d: %w", id, firstErr)
	}
	return out, nil
}

func (r *Replicated) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(r, outs, inID)
}
