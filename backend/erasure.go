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
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// ErasureCoded spreads each span across dataShards+parityShards member
// backends using Reed-Solomon coding, so the span survives the loss of
// up to parityShards members at a fraction of full replication's
// storage cost.
type ErasureCoded struct {
	enc     reedsolomon.Encoder
	data    int
	parity  int
	members []Backend // len == data+parity

	mu    sync.Mutex
	sizes map[ID]int // original byte length, needed to Join back exactly
}

// NewErasureCoded returns a K+M erasure-coded backend. len(members) must
// equal dataShards+parityShards.
func NewErasureCoded(dataShards, parityShards int, members ...Backend) (*ErasureCoded, error) {
	if len(members) != dataShards+parityShards {
		return nil, fmt.Errorf("backend: erasure coded: need %d members, got %d", dataShards+parityShards, len(members))
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("backend: erasure coded: %w", err)
	}
	return &ErasureCoded{
		enc:     enc,
		data:    dataShards,
		parity:  parityShards,
		members: members,
		sizes:   make(map[ID]int),
	}, nil
}

func (e *ErasureCoded) plaintext(id ID) ([]byte, error) {
	shards := make([][]byte, len(e.members))
	have := 0
	for i, m := range e.members {
		b, err := m.SwapIn(id)
		if err != nil {
			continue
		}
		shards[i] = b
		have++
	}
	if have == 0 {
		return nil, ErrNotFound
	}
	if have < e.data {
		return nil, fmt.Errorf("backend: erasure coded: span %d lost too many shards (have %d, need %d)", id, have, e.data)
	}
	if have < len(shards) {
		if err := e.enc.Reconstruct(shards); err != nil {
			return nil, fmt.Errorf("backend: erasure coded: reconstructing span %d: %w", id, err)
		}
	}
	e.mu.Lock()
	size, ok := e.sizes[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: erasure coded: unknown original size for span %d", id)
	}
	var buf bytes.Buffer
	buf.Grow(size)
	if err := e.enc.Join(&buf, shards, size); err != nil {
		return nil, fmt.Errorf("backend: erasure coded: joining span %d: %w", id, err)
	}
	return buf.Bytes(), nil
}

func (e *ErasureCoded) SwapOut(id ID, data []byte, prepend bool) error {
	if prepend {
		existing, err := e.plaintext(id)
		if err != nil && err != ErrNotFound {
			return err
		}
		data = append(append([]byte(nil), data...), existing...)
	}
	shards, err := e.enc.Split(data)
	if err != nil {
		return fmt.Errorf("backend: erasure coded: splitting span %d: %w", id, err)
	}
	if err := e.enc.Encode(shards); err != nil {
		return fmt.Errorf("backend: erasure coded: encoding span %d: %w", id, err)
	}
	for i, m := range e.members {
		if err := m.SwapOut(id, shards[i], false); err != nil {
			return fmt.Errorf("backend: erasure coded: storing shard %d of span %d: %w", i, id, err)
		}
	}
	e.mu.Lock()
	e.sizes[id] = len(data)
	e.mu.Unlock()
	return nil
}

func (e *ErasureCoded) SwapIn(id ID) ([]byte, error) {
	b, err := e.plaintext(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	delete(e.sizes, id)
	e.mu.Unlock()
	return b, nil
}

func (e *ErasureCoded) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(e, outs, inID)
}
