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
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Sharded places each span id on exactly one of its member backends by
// a consistent hash of the id, spreading the aggregate remote working
// set across member backends without any single one holding all of it.
// Placement is deliberately a pure function of the id rather than
// anything dynamic: no rebalancing, no placement table to persist.
type Sharded struct {
	members []Backend
	k0, k1  uint64
}

// NewSharded returns a Sharded backend over members, keyed by (k0, k1)
// so that two clients with different keys don't agree on placement (not
// a security property, just avoiding accidental correlation across
// independently configured clients sharing member backends).
func NewSharded(k0, k1 uint64, members ...Backend) *Sharded {
	if len(members) == 0 {
		panic("backend: Sharded needs at least one member")
	}
	return &Sharded{members: members, k0: k0, k1: k1}
}

func (s *Sharded) shardFor(id ID) Backend {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h := siphash.Hash(s.k0, s.k1, buf[:])
	return s.members[h%uint64(len(s.members))]
}

func (s *Sharded) SwapOut(id ID, bytes []byte, prepend bool) error {
	return s.shardFor(id).SwapOut(id, bytes, prepend)
}

func (s *Sharded) SwapIn(id ID) ([]byte, error) {
	return s.shardFor(id).SwapIn(id)
}

func (s *Sharded) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(s, outs, inID)
}
