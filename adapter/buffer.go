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

// Package adapter layers structured abstractions over the far-memory
// client's raw allocate/pin/unpin: a logical byte buffer split across
// equal-size spans, a typed vector view over a single span, and a
// packed serialized-object store keyed by size class.
package adapter

import (
	"fmt"

	"github.com/farmemory/client/ints"
	"github.com/farmemory/client/spantable"
)

// Pinner is the subset of *client.Client the adapters need. It exists
// so these adapters, and their tests, depend only on the three
// operations they actually call.
type Pinner interface {
	Allocate(size int) (spantable.ID, error)
	Pin(id spantable.ID) ([]byte, error)
	Unpin(id spantable.ID) error
}

// Buffer is a logical byte sequence split across a sequence of
// equal-size spans, so that cold stretches of a large buffer can be
// evicted span by span.
type Buffer struct {
	c        Pinner
	spanSize int
	spans    []spantable.ID
	length   int
}

// NewBuffer returns an empty Buffer that grows in spanSize-byte spans.
func NewBuffer(c Pinner, spanSize int) *Buffer {
	if spanSize <= 0 {
		panic("adapter: buffer span size must be positive")
	}
	return &Buffer{c: c, spanSize: spanSize}
}

// Len reports the buffer's current logical length in bytes.
func (b *Buffer) Len() int { return b.length }

// Append grows the buffer by len(data) bytes, allocating new spans as
// needed to hold them.
func (b *Buffer) Append(data []byte) error {
	for len(data) > 0 {
		capacity := len(b.spans) * b.spanSize
		if b.length == capacity {
			id, err := b.c.Allocate(b.spanSize)
			if err != nil {
				return fmt.Errorf("adapter: buffer: allocating span: %w", err)
			}
			b.spans = append(b.spans, id)
		}
		spanIdx := b.length / b.spanSize
		offset := b.length % b.spanSize
		n := ints.Min(b.spanSize-offset, len(data))
		if err := b.writeIntoSpan(spanIdx, offset, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		b.length += n
	}
	return nil
}

func (b *Buffer) writeIntoSpan(spanIdx, offset int, chunk []byte) error {
	id := b.spans[spanIdx]
	ptr, err := b.c.Pin(id)
	if err != nil {
		return fmt.Errorf("adapter: buffer: pinning span %d: %w", id, err)
	}
	copy(ptr[offset:], chunk)
	return b.c.Unpin(id)
}

// Slice copies out the logical byte range [lo, hi), pinning and
// unpinning every span that covers it.
func (b *Buffer) Slice(lo, hi int) ([]byte, error) {
	if lo < 0 || hi > b.length || lo > hi {
		return nil, fmt.Errorf("adapter: buffer: range [%d,%d) out of bounds for length %d", lo, hi, b.length)
	}
	out := make([]byte, 0, hi-lo)
	for lo < hi {
		spanIdx := lo / b.spanSize
		offset := lo % b.spanSize
		n := ints.Min(b.spanSize-offset, hi-lo)
		id := b.spans[spanIdx]
		ptr, err := b.c.Pin(id)
		if err != nil {
			return nil, fmt.Errorf("adapter: buffer: pinning span %d: %w", id, err)
		}
		out = append(out, ptr[offset:offset+n]...)
		if err := b.c.Unpin(id); err != nil {
			return nil, err
		}
		lo += n
	}
	return out, nil
}

// WriteRange writes data into the logical byte range starting at off,
// symmetric with Slice. The range [off, off+len(data)) must already
// exist (created by a prior Append); WriteRange never grows the
// buffer.
func (b *Buffer) WriteRange(off int, data []byte) error {
	if off < 0 || off+len(data) > b.length {
		return fmt.Errorf("adapter: buffer: range [%d,%d) out of bounds for length %d", off, off+len(data), b.length)
	}
	for len(data) > 0 {
		spanIdx := off / b.spanSize
		offset := off % b.spanSize
		n := ints.Min(b.spanSize-offset, len(data))
		if err := b.writeIntoSpan(spanIdx, offset, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		off += n
	}
	return nil
}
