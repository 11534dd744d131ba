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

package ints

import "testing"

func TestMinMax(t *testing.T) {
	if Min(3, 7) != 3 || Min(7, 3) != 3 {
		t.Error("Min should return the smaller value")
	}
	if Max(3, 7) != 7 || Max(7, 3) != 7 {
		t.Error("Max should return the greater value")
	}
	if Min(int64(-5), 0) != -5 || Max(int64(-5), 0) != 0 {
		t.Error("Min/Max should handle negative values")
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, a, want uint }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
	}
	for _, c := range cases {
		if got := AlignUp(c.v, c.a); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.v, c.a, got, c.want)
		}
	}
}

func TestRandomFillSlice(t *testing.T) {
	out := make([]byte, 32)
	if err := RandomFillSlice(out); err != nil {
		t.Fatal(err)
	}
	var zero [32]byte
	if string(out) == string(zero[:]) {
		t.Error("expected non-zero random bytes (astronomically unlikely to all be zero)")
	}
}
