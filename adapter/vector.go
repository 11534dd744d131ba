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

package adapter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/farmemory/client/spantable"
)

// Vector is a span holding a packed array of fixed-size float64
// elements. Go has no safe way to reinterpret a pinned []byte as a
// []float64 in place, so View/Set each pin for exactly the duration of
// one encode/decode pass instead of handing back a live-aliased view
// the caller would have to release. The span's local size must equal
// n*8, checked on every View.
type Vector struct {
	c  Pinner
	id spantable.ID
	n  int
}

const float64Size = 8

// NewVector allocates a span sized to hold n float64 elements.
func NewVector(c Pinner, n int) (*Vector, error) {
	id, err := c.Allocate(n * float64Size)
	if err != nil {
		return nil, fmt.Errorf("adapter: vector: allocating: %w", err)
	}
	return &Vector{c: c, id: id, n: n}, nil
}

// View pins the backing span just long enough to decode it as
// []float64 and returns the decoded copy.
func (v *Vector) View() ([]float64, error) {
	buf, err := v.c.Pin(v.id)
	if err != nil {
		return nil, fmt.Errorf("adapter: vector: pinning: %w", err)
	}
	defer v.c.Unpin(v.id)
	if len(buf) != v.n*float64Size {
		return nil, fmt.Errorf("adapter: vector: local_size %d != %d*sizeof(float64)", len(buf), v.n)
	}
	out := make([]float64, v.n)
	for i := range out {
		bits := binary.LittleEndian.Uint64(buf[i*float64Size:])
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

// Set pins the backing span, encodes vals into it, and unpins.
func (v *Vector) Set(vals []float64) error {
	if len(vals) != v.n {
		return fmt.Errorf("adapter: vector: expected %d elements, got %d", v.n, len(vals))
	}
	buf, err := v.c.Pin(v.id)
	if err != nil {
		return fmt.Errorf("adapter: vector: pinning: %w", err)
	}
	defer v.c.Unpin(v.id)
	for i, f := range vals {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(f))
	}
	return nil
}
