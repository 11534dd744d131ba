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

// Package client implements the far-memory client core: the arbiter
// that owns the span table, decides which spans live in local RAM
// versus the backend, and exposes allocate/pin/unpin plus the
// reclamation driver every other operation funnels through.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/farmemory/client/backend"
	"github.com/farmemory/client/replacement"
	"github.com/farmemory/client/span"
	"github.com/farmemory/client/spantable"
)

// Sentinel errors surfaced to callers.
var (
	ErrOutOfMemory      = errors.New("client: out of memory")
	ErrCannotFreeMemory = errors.New("client: cannot free enough local memory")
	ErrUnknownSpan      = errors.New("client: unknown span")
	ErrSpanPoisoned     = errors.New("client: span is poisoned")
)

// EvictionFailedError wraps a backend error encountered during
// swap_out. The affected span is poisoned.
type EvictionFailedError struct {
	ID  spantable.ID
	Err error
}

func (e *EvictionFailedError) Error() string {
	return fmt.Sprintf("client: eviction of span %d failed: %v", e.ID, e.Err)
}
func (e *EvictionFailedError) Unwrap() error { return e.Err }

// SwapInFailedError wraps a backend error encountered during swap_in.
// The affected span is poisoned.
type SwapInFailedError struct {
	ID  spantable.ID
	Err error
}

func (e *SwapInFailedError) Error() string {
	return fmt.Sprintf("client: swap-in of span %d failed: %v", e.ID, e.Err)
}
func (e *SwapInFailedError) Unwrap() error { return e.Err }

// Logger is the single-method Printf-shaped logging seam used
// throughout this module; nil means silent.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// Client arbitrates which spans live in local RAM and which reside on
// the backend, within a configured local-memory budget. The zero
// Client is not usable; construct with New.
type Client struct {
	backend backend.Backend
	lMax    int64

	mu     sync.Mutex // guards policy swaps and localBytes bookkeeping
	policy replacement.Policy
	table  *spantable.Table

	localBytes  int64
	remoteBytes int64

	Logger Logger

	reclaimer *reclaimer // set by StartBackgroundReclaimer
}

// New returns a Client backed by b, enforcing a local-memory budget of
// lMax bytes. policy may be nil, in which case SetReplacementPolicy must
// be called before any eviction-requiring operation.
func New(b backend.Backend, lMax int64, policy replacement.Policy) *Client {
	return &Client{
		backend: b,
		lMax:    lMax,
		policy:  policy,
		table:   spantable.New(),
	}
}

// SetReplacementPolicy swaps the active replacement policy.
func (c *Client) SetReplacementPolicy(p replacement.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

func (c *Client) currentPolicy() replacement.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// TotalLocalBytes reports the bytes currently resident in local memory
// across every span.
func (c *Client) TotalLocalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localBytes
}

// TotalRemoteBytes reports the bytes currently resident on the backend
// across every span.
func (c *Client) TotalRemoteBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteBytes
}

// Stats is a point-in-time snapshot of the client's resource usage.
type Stats struct {
	LocalBytes    int64
	RemoteBytes   int64
	SpanCount     int
	PoisonedCount int
}

// Stats returns a snapshot of the client's current resource usage.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	s := Stats{LocalBytes: c.localBytes, RemoteBytes: c.remoteBytes}
	c.mu.Unlock()

	for _, sum := range c.table.IterSnapshot() {
		s.SpanCount++
		if sum.Poisoned {
			s.PoisonedCount++
		}
	}
	return s
}

func (c *Client) addLocal(delta int64)  { c.mu.Lock(); c.localBytes += delta; c.mu.Unlock() }
func (c *Client) addRemote(delta int64) { c.mu.Lock(); c.remoteBytes += delta; c.mu.Unlock() }

// EnsureLocalUnder drives local memory usage down to target bytes,
// evicting pin-free spans chosen by the active replacement policy. It
// is best-effort: unlike the internal path Allocate/Pin use, it never
// fails merely because no further candidates are available, which is
// what the background reclaimer (see the reclaim package) needs.
func (c *Client) EnsureLocalUnder(target int64) error {
	return c.ensureLocalUnderBestEffort(target)
}

// Allocate reserves a new span of size bytes, fully resident locally,
// evicting colder spans first if the budget requires it.
func (c *Client) Allocate(size int) (spantable.ID, error) {
	if err := c.ensureLocalUnderStrict(c.lMax - int64(size)); err != nil {
		return 0, err
	}
	region, err := span.Alloc(size)
	if err != nil {
		// one more reclamation attempt before failing
		if err2 := c.ensureLocalUnderStrict(c.lMax - int64(size)); err2 == nil {
			region, err = span.Alloc(size)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
	}

	id := c.table.NextID()
	c.table.Insert(id, &spantable.Entry{
		State:     spantable.Local,
		Region:    region,
		LocalSize: int64(size),
		TotalSize: int64(size),
	})
	c.addLocal(int64(size))

	if p := c.currentPolicy(); p != nil {
		p.OnSpanAccess(id)
	}
	return id, nil
}

// Pin grants the caller a stable view of id's bytes for the duration of
// the pin, swapping in remote/partial content as needed. Callers must
// call Unpin exactly once per successful Pin. The all-local case is
// the hot path and stays lock-light: it never touches the backend or
// the reclamation driver.
func (c *Client) Pin(id spantable.ID) ([]byte, error) {
	var fast []byte
	var needSwapIn, poisoned bool
	var remoteLen int64

	// WithWait rather than With: if another goroutine is already paging
	// this span in, wait for it to finish instead of issuing a second
	// (destructive) backend swap-in for the same id.
	err := c.table.WithWait(id, func(e *spantable.Entry) bool {
		if e.Poisoned {
			poisoned = true
			return true
		}
		if e.State == spantable.Local {
			e.InUse++
			fast = e.Region.Bytes()
			return true
		}
		if e.SwapInFlight {
			return false
		}
		// mark pinned before releasing the table lock so reclamation
		// cannot pick this span out from under us
		e.InUse++
		e.SwapInFlight = true
		remoteLen = e.TotalSize - e.LocalSize
		needSwapIn = true
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSpan, id)
	}
	if poisoned {
		return nil, fmt.Errorf("%w: span %d", ErrSpanPoisoned, id)
	}
	if !needSwapIn {
		if p := c.currentPolicy(); p != nil {
			p.OnSpanAccess(id)
		}
		return fast, nil
	}

	if err := c.ensureLocalUnderBestEffort(c.lMax - remoteLen); err != nil {
		// best-effort: reclamation falling short of target doesn't fail
		// the pin outright; the swap-in below may briefly push usage
		// over budget, resolved by the next reclamation pass.
		logf(c.Logger, "client: reclamation before swap-in of span %d fell short: %v", id, err)
	}

	bytes, err := c.backend.SwapIn(backend.ID(id))
	if err != nil {
		c.table.With(id, func(e *spantable.Entry) {
			e.Poisoned = true
			e.InUse--
			e.SwapInFlight = false
		})
		return nil, &SwapInFailedError{ID: id, Err: err}
	}

	var out []byte
	var swapInErr error
	c.table.With(id, func(e *spantable.Entry) {
		defer func() { e.SwapInFlight = false }()
		wasPartial := e.State == spantable.Partial
		if wasPartial {
			e.Region.Extend(bytes)
		} else {
			region, allocErr := span.Alloc(len(bytes))
			if allocErr != nil {
				swapInErr = allocErr
				e.InUse--
				return
			}
			copy(region.Bytes(), bytes)
			e.Region = region
		}
		e.LocalSize = e.TotalSize
		e.State = spantable.Local
		out = e.Region.Bytes()
	})
	if swapInErr != nil {
		// the backend copy was destroyed by the swap-in above; put the
		// bytes back so the span's contents aren't lost, then fail the
		// pin. If even that fails, the data is gone and the span is
		// poisoned like any other backend failure.
		if outErr := c.backend.SwapOut(backend.ID(id), bytes, false); outErr != nil {
			c.table.With(id, func(e *spantable.Entry) { e.Poisoned = true })
			logf(c.Logger, "client: could not restore span %d to backend after failed swap-in: %v", id, outErr)
		}
		return nil, fmt.Errorf("%w: %d: %v", ErrOutOfMemory, id, swapInErr)
	}
	c.addLocal(int64(len(bytes)))
	c.addRemote(-int64(len(bytes)))

	if p := c.currentPolicy(); p != nil {
		p.OnSpanSwapIn(id)
		p.OnSpanAccess(id)
	}
	return out, nil
}

// Unpin releases a pin acquired by Pin, restoring eviction eligibility
// once the last pin on the span is released.
func (c *Client) Unpin(id spantable.ID) error {
	err := c.table.With(id, func(e *spantable.Entry) {
		if e.InUse > 0 {
			e.InUse--
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownSpan, id)
	}
	return nil
}
