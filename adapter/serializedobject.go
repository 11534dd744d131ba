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
	"fmt"
	"sync"

	"github.com/farmemory/client/ints"
	"github.com/farmemory/client/spantable"
)

// ObjectHandle identifies one object packed into a shared span by a
// SerializedObjectStore: the span it lives in, plus its offset and
// length within that span.
type ObjectHandle struct {
	SpanID spantable.ID
	Offset int
	Length int
}

// sizeClassBase is the unit objects are rounded up to when choosing a
// size class; a size-class span is sized sizeClassBase * classShards.
const sizeClassBase = 64

// classShards is how many sizeClassBase-sized slots a size-class span
// holds before a new span of that class is allocated.
const classShards = 64

// SerializedObjectStore packs small pre-serialized objects into shared
// spans grouped by size class. Objects are never freed individually;
// spans are only reclaimed by the client's eviction path, never
// explicitly.
type SerializedObjectStore struct {
	c Pinner

	mu      sync.Mutex
	classes map[int]*sizeClass
}

type sizeClass struct {
	slotSize int
	current  spantable.ID
	hasSpan  bool
	used     int // slots filled in current
}

// NewSerializedObjectStore returns an empty store.
func NewSerializedObjectStore(c Pinner) *SerializedObjectStore {
	return &SerializedObjectStore{c: c, classes: make(map[int]*sizeClass)}
}

func classFor(size int) int {
	return int(ints.AlignUp(uint(size), sizeClassBase))
}

// Put serializes data into the store and returns a handle to read it
// back later.
func (s *SerializedObjectStore) Put(data []byte) (ObjectHandle, error) {
	if len(data) > sizeClassBase*classShards {
		return ObjectHandle{}, fmt.Errorf("adapter: serialized object: %d bytes exceeds max object size %d", len(data), sizeClassBase*classShards)
	}
	slot := classFor(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()
	cls, ok := s.classes[slot]
	if !ok {
		cls = &sizeClass{slotSize: slot}
		s.classes[slot] = cls
	}
	if !cls.hasSpan || cls.used >= classShards {
		id, err := s.c.Allocate(slot * classShards)
		if err != nil {
			return ObjectHandle{}, fmt.Errorf("adapter: serialized object: allocating size-class %d span: %w", slot, err)
		}
		cls.current = id
		cls.hasSpan = true
		cls.used = 0
	}
	offset := cls.used * slot
	id := cls.current
	cls.used++

	ptr, err := s.c.Pin(id)
	if err != nil {
		return ObjectHandle{}, fmt.Errorf("adapter: serialized object: pinning span %d: %w", id, err)
	}
	copy(ptr[offset:], data)
	if err := s.c.Unpin(id); err != nil {
		return ObjectHandle{}, err
	}
	return ObjectHandle{SpanID: id, Offset: offset, Length: len(data)}, nil
}

// Get reads back the bytes a handle from Put refers to.
func (s *SerializedObjectStore) Get(h ObjectHandle) ([]byte, error) {
	ptr, err := s.c.Pin(h.SpanID)
	if err != nil {
		return nil, fmt.Errorf("adapter: serialized object: pinning span %d: %w", h.SpanID, err)
	}
	defer s.c.Unpin(h.SpanID)
	if h.Offset < 0 || h.Offset+h.Length > len(ptr) {
		return nil, fmt.Errorf("adapter: serialized object: handle range [%d,%d) out of bounds for span of %d bytes", h.Offset, h.Offset+h.Length, len(ptr))
	}
	out := make([]byte, h.Length)
	copy(out, ptr[h.Offset:h.Offset+h.Length])
	return out, nil
}
