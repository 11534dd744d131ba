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

// Package span owns the raw memory that backs the local portion of a
// far-memory span. It performs no I/O and knows nothing about span ids,
// states, or backends; it only allocates, resizes, and frees anonymous
// memory, and hands out zero-copy byte slices over it.
package span

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned by Alloc and Realloc when the host
// allocator cannot satisfy a request.
var ErrOutOfMemory = errors.New("span: out of memory")

// Region is a contiguous block of local memory backing a span's local
// prefix. The zero Region is empty and owns no memory.
//
// Region is not safe for concurrent use; callers serialize access to a
// given span's Region through the span table's per-entry exclusion
// (see spantable.Table.With).
type Region struct {
	buf   []byte
	large bool // buf is backed by an OS mapping, not the Go heap
}

func newBacking(size int) ([]byte, bool, error) {
	if size >= largeSpanThreshold {
		buf, err := allocLarge(size)
		if err != nil {
			return nil, false, err
		}
		return buf, true, nil
	}
	return make([]byte, size), false, nil
}

// Len reports the number of bytes currently backing the region.
func (r *Region) Len() int {
	if r == nil {
		return 0
	}
	return len(r.buf)
}

// Alloc returns a new Region of exactly size bytes. Zero-initialization
// is not guaranteed beyond what the Go runtime already provides for
// freshly-made slices.
//
// The heap path never fails (Go's allocator panics instead of
// returning ENOMEM); the mmap path for large regions can, surfacing
// ErrOutOfMemory when the kernel refuses the mapping.
func Alloc(size int) (*Region, error) {
	if size < 0 {
		return nil, fmt.Errorf("span: negative size %d", size)
	}
	buf, large, err := newBacking(size)
	if err != nil {
		return nil, err
	}
	return &Region{buf: buf, large: large}, nil
}

// Realloc resizes r to newSize, preserving the first min(oldSize,
// newSize) bytes at the head. It may replace r's backing array; callers
// must not retain slices obtained from ReadSlice/Bytes across a
// Realloc call.
func (r *Region) Realloc(newSize int) error {
	if newSize < 0 {
		return fmt.Errorf("span: negative size %d", newSize)
	}
	old := r.buf
	if newSize <= cap(old) {
		r.buf = old[:newSize]
		return nil
	}
	grown, large, err := newBacking(newSize)
	if err != nil {
		return err
	}
	copy(grown, old)
	if r.large {
		freeLarge(old)
	}
	r.buf, r.large = grown, large
	return nil
}

// Shrink drops the tail of the region, keeping only the first newSize
// bytes. Unlike Realloc it never reallocates a smaller backing array;
// the underlying capacity is released to the GC only once every
// reference to the old slice is gone, matching the span store's "free"
// operation used during full eviction (Shrink(0) == Free).
func (r *Region) Shrink(newSize int) {
	if newSize < 0 || newSize > len(r.buf) {
		panic("span: Shrink out of range")
	}
	// Copy into a right-sized buffer so the evicted tail's backing
	// array isn't held alive by a stale slice header.
	next, large, _ := newBacking(newSize)
	copy(next, r.buf[:newSize])
	if r.large {
		freeLarge(r.buf)
	}
	r.buf, r.large = next, large
}

// Extend grows the region by appending tail to its current contents,
// used when a Partial span is promoted back to Local by a swap-in.
func (r *Region) Extend(tail []byte) {
	next, large, _ := newBacking(len(r.buf) + len(tail))
	copy(next, r.buf)
	copy(next[len(r.buf):], tail)
	if r.large {
		freeLarge(r.buf)
	}
	r.buf, r.large = next, large
}

// Free releases the region's memory. After Free, r must not be used.
func (r *Region) Free() {
	if r.large {
		freeLarge(r.buf)
	}
	r.buf = nil
	r.large = false
}

// ReadSlice borrows the bytes in [lo, hi) without copying. The returned
// slice is only valid until the next mutating call (Realloc, Shrink,
// Extend, Free) on r.
func (r *Region) ReadSlice(lo, hi int) ([]byte, error) {
	if lo < 0 || hi > len(r.buf) || lo > hi {
		return nil, fmt.Errorf("span: range [%d,%d) out of bounds for region of size %d", lo, hi, len(r.buf))
	}
	return r.buf[lo:hi], nil
}

// Bytes borrows the entire region without copying.
func (r *Region) Bytes() []byte { return r.buf }

// Tail returns the last n bytes of the region without copying; used by
// eviction to read the bytes that are about to be swapped out.
func (r *Region) Tail(n int) ([]byte, error) {
	return r.ReadSlice(len(r.buf)-n, len(r.buf))
}
