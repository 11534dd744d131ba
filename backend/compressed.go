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

	"github.com/farmemory/client/compr"
)

// Compressed wraps another Backend, compressing bytes with the named
// algorithm (see compr.ByName) before handing them to Inner and
// decompressing what Inner returns.
//
// Two independently-compressed streams cannot be spliced into one, so
// a prepend-mode SwapOut first swaps the existing compressed bytes
// back in, decompresses them, concatenates with the new bytes, and
// recompresses the whole thing. That costs an extra round trip per
// partial eviction of an already-partial span; a per-block framing
// scheme could avoid it, at the price of a nonuniform backend
// interface.
type Compressed struct {
	Inner     Backend
	Algorithm string

	mu    sync.Mutex
	sizes map[ID]int // decompressed length, needed by Codec.Decompress
}

// NewCompressed returns a Compressed backend wrapping inner using algo
// (one of "zstd", "s2").
func NewCompressed(inner Backend, algo string) *Compressed {
	return &Compressed{Inner: inner, Algorithm: algo, sizes: make(map[ID]int)}
}

func (c *Compressed) SwapOut(id ID, bytes []byte, prepend bool) error {
	if prepend {
		existing, err := c.SwapIn(id)
		if err != nil && err != ErrNotFound {
			return err
		}
		bytes = append(append([]byte(nil), bytes...), existing...)
	}
	codec := compr.ByName(c.Algorithm)
	if codec == nil {
		return fmt.Errorf("backend: compressed: unknown algorithm %q", c.Algorithm)
	}
	out := codec.Compress(bytes, nil)
	if err := c.Inner.SwapOut(id, out, false); err != nil {
		return fmt.Errorf("backend: compressed: %w", err)
	}
	c.mu.Lock()
	c.sizes[id] = len(bytes)
	c.mu.Unlock()
	return nil
}

func (c *Compressed) SwapIn(id ID) ([]byte, error) {
	raw, err := c.Inner.SwapIn(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	size, ok := c.sizes[id]
	delete(c.sizes, id)
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: compressed: unknown decompressed size for span %d", id)
	}
	codec := compr.ByName(c.Algorithm)
	if codec == nil {
		return nil, fmt.Errorf("backend: compressed: unknown algorithm %q", c.Algorithm)
	}
	out := make([]byte, size)
	if err := codec.Decompress(raw, out); err != nil {
		return nil, fmt.Errorf("backend: compressed: decompressing span %d: %w", id, err)
	}
	return out, nil
}

func (c *Compressed) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(c, outs, inID)
}
