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

package client

import (
	"fmt"

	"github.com/farmemory/client/backend"
	"github.com/farmemory/client/ints"
	"github.com/farmemory/client/replacement"
	"github.com/farmemory/client/spantable"
)

// ensureLocalUnderStrict drives local usage down to target, failing
// with ErrCannotFreeMemory when target cannot be reached because no
// pin-free candidates remain. Used by the foreground allocate path,
// which needs a guarantee.
func (c *Client) ensureLocalUnderStrict(target int64) error {
	return c.ensureLocalUnder(target, true)
}

// ensureLocalUnderBestEffort is the same driver used by the background
// reclaimer and by Pin's pre-swap-in headroom step: it does as much as
// it can and never fails merely because candidates ran out.
func (c *Client) ensureLocalUnderBestEffort(target int64) error {
	return c.ensureLocalUnder(target, false)
}

func (c *Client) ensureLocalUnder(target int64, strict bool) error {
	need := ints.Max(c.TotalLocalBytes()-target, 0)
	if need == 0 {
		return nil
	}

	policy := c.currentPolicy()
	if policy == nil {
		if strict {
			return ErrCannotFreeMemory
		}
		return nil
	}

	for need > 0 {
		candidates := c.evictionCandidates()
		if len(candidates) == 0 {
			if strict {
				return ErrCannotFreeMemory
			}
			return nil
		}
		order := policy.PickForEviction(candidates)
		progressed := false
		for _, id := range order {
			if need <= 0 {
				break
			}
			localSize, ok := c.localSizeOf(id)
			if !ok || localSize <= 0 {
				continue
			}
			free := ints.Min(localSize, need)
			if err := c.evict(id, free, policy); err != nil {
				logf(c.Logger, "client: eviction of span %d failed: %v", id, err)
				continue
			}
			need -= free
			progressed = true
		}
		if !progressed {
			if strict {
				return ErrCannotFreeMemory
			}
			return nil
		}
	}
	return nil
}

// evictionCandidates returns every span id that is Local or Partial,
// has local_size > 0, and has no outstanding pins.
func (c *Client) evictionCandidates() []spantable.ID {
	var out []spantable.ID
	for _, sum := range c.table.IterSnapshot() {
		if sum.InUse > 0 || sum.Poisoned {
			continue
		}
		if (sum.State == spantable.Local || sum.State == spantable.Partial) && sum.LocalSize > 0 {
			out = append(out, sum.ID)
		}
	}
	return out
}

func (c *Client) localSizeOf(id spantable.ID) (int64, bool) {
	sum, ok := c.table.Get(id)
	if !ok {
		return 0, false
	}
	return sum.LocalSize, true
}

// evict moves bytesToFree bytes from the tail of id's local buffer out
// to the backend, prepending to bytes the backend already holds if the
// span was already Partial (the backend always stores a single
// contiguous suffix).
func (c *Client) evict(id spantable.ID, bytesToFree int64, policy replacement.Policy) error {
	var tail []byte
	var wasPartial bool
	var fullEviction bool
	var swapErr error

	err := c.table.With(id, func(e *spantable.Entry) {
		if e.InUse > 0 {
			swapErr = fmt.Errorf("client: span %d pinned during eviction attempt", id)
			return
		}
		if bytesToFree > e.LocalSize {
			swapErr = fmt.Errorf("client: span %d: cannot free %d bytes of a %d-byte local region", id, bytesToFree, e.LocalSize)
			return
		}
		wasPartial = e.State == spantable.Partial
		fullEviction = bytesToFree == e.LocalSize

		b, err := e.Region.Tail(int(bytesToFree))
		if err != nil {
			swapErr = err
			return
		}
		tail = append([]byte(nil), b...)
	})
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownSpan, id)
	}
	if swapErr != nil {
		return swapErr
	}

	if err := c.backend.SwapOut(backend.ID(id), tail, wasPartial); err != nil {
		c.table.With(id, func(e *spantable.Entry) { e.Poisoned = true })
		return &EvictionFailedError{ID: id, Err: err}
	}

	c.table.With(id, func(e *spantable.Entry) {
		newLocal := e.LocalSize - bytesToFree
		if fullEviction {
			e.Region.Free()
			e.State = spantable.Remote
		} else {
			e.Region.Shrink(int(newLocal))
			e.State = spantable.Partial
		}
		e.LocalSize = newLocal
	})
	c.addLocal(-bytesToFree)
	c.addRemote(bytesToFree)

	if policy != nil {
		policy.OnSpanSwapOut(id, !fullEviction)
	}
	return nil
}
