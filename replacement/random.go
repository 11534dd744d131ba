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

package replacement

import (
	"math/rand"
	"sync"

	"github.com/farmemory/client/spantable"
)

// Random orders candidates by a uniform random shuffle. It ignores
// every observation hook. rand.Rand is not safe for concurrent use, so
// the shuffle takes a lock; PickForEviction may race with itself when
// the background reclaimer and a foreground pin both need candidates.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom returns a Random policy seeded from seed. Two Random
// policies built from the same seed produce the same ordering given
// the same candidate sets in the same order, which is useful for
// reproducing a test run.
func NewRandom(seed int64) *Random {
	return &Random{rnd: rand.New(rand.NewSource(seed))}
}

func (r *Random) PickForEviction(candidates []spantable.ID) []spantable.ID {
	out := append([]spantable.ID(nil), candidates...)
	r.mu.Lock()
	r.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	r.mu.Unlock()
	return out
}

func (r *Random) OnSpanAccess(spantable.ID)        {}
func (r *Random) OnSpanSwapIn(spantable.ID)        {}
func (r *Random) OnSpanSwapOut(spantable.ID, bool) {}
func (r *Random) OnStop() error                    { return nil }
