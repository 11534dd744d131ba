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

import "sync"

// InMemory is a Backend that keeps every stored span in a process-local
// map. It is mainly useful for tests and for single-process deployments
// that want the far-memory budget enforcement without an actual remote
// tier.
type InMemory struct {
	mu   sync.Mutex
	data map[ID][]byte
}

// NewInMemory returns an empty InMemory backend.
func NewInMemory() *InMemory {
	return &InMemory{data: make(map[ID][]byte)}
}

func (m *InMemory) SwapOut(id ID, bytes []byte, prepend bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), bytes...)
	existing, ok := m.data[id]
	if !ok {
		m.data[id] = cp
		return nil
	}
	if prepend {
		m.data[id] = append(cp, existing...)
	} else {
		m.data[id] = cp
	}
	return nil
}

func (m *InMemory) SwapIn(id ID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.data, id)
	return b, nil
}

func (m *InMemory) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(m, outs, inID)
}

// Len reports how many spans currently have bytes stored, for tests.
func (m *InMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
