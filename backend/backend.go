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

// Package backend defines the pluggable sink/source of span bytes and
// provides several composable implementations: an in-memory map, a
// local-disk store, an HTTP object-store client standing in for a
// remote storage node, and wrapper backends (replicated,
// erasure-coded, compressed, encrypted, sharded) that compose an inner
// backend.
//
// The implementations here define and exercise the contract; none of
// them attempt to be a production-grade storage engine, and all of
// them are free to keep their entire working set in memory between
// calls for simplicity.
package backend

import (
	"errors"
	"fmt"
)

// ID identifies a span to a backend. Backends never interpret it beyond
// using it as an opaque map/file/object key.
type ID uint64

// ErrNotFound is returned by SwapIn when the backend never received a
// SwapOut for the given id (or has already serviced one destructively).
var ErrNotFound = errors.New("backend: span not found")

// SwapOutOp is one element of a Batch call's outbound half.
type SwapOutOp struct {
	ID      ID
	Data    []byte
	Prepend bool
}

// Backend is the sink/source of the bytes a span keeps out of local
// memory, keyed by span id. Implementations must be safe for
// concurrent use from multiple goroutines.
type Backend interface {
	// SwapOut stores bytes for id. If prepend is true, bytes logically
	// precede any suffix already stored for id (used by partial
	// eviction of a span that was already Partial); otherwise bytes
	// replace whatever was stored.
	SwapOut(id ID, bytes []byte, prepend bool) error

	// SwapIn returns the bytes stored for id and deletes the backend's
	// copy. It is destructive: a subsequent SwapIn or Batch-with-read
	// for the same id returns ErrNotFound until another SwapOut occurs.
	SwapIn(id ID) ([]byte, error)

	// Batch performs every op in outs, in order, and optionally one
	// swap-in for inID, in a single call. It must be semantically
	// equivalent to performing the operations individually in order;
	// implementations that cannot do better than that are free to do
	// exactly that.
	Batch(outs []SwapOutOp, inID *ID) ([]byte, error)
}

// DefaultBatch performs outs and an optional inID swap-in by simply
// calling SwapOut/SwapIn individually, in order. Batching is only ever
// an optimization over that sequence, so implementations with no real
// batching advantage delegate their Batch method here.
func DefaultBatch(b Backend, outs []SwapOutOp, inID *ID) ([]byte, error) {
	for _, op := range outs {
		if err := b.SwapOut(op.ID, op.Data, op.Prepend); err != nil {
			return nil, fmt.Errorf("backend: batch swap-out of span %d: %w", op.ID, err)
		}
	}
	if inID == nil {
		return nil, nil
	}
	return b.SwapIn(*inID)
}
