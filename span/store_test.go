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

package span

import (
	"bytes"
	"testing"
)

func TestAllocZeroSize(t *testing.T) {
	r, err := Alloc(0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected len 0, got %d", r.Len())
	}
}

func TestRealloc(t *testing.T) {
	r, err := Alloc(4)
	if err != nil {
		t.Fatal(err)
	}
	copy(r.Bytes(), []byte{1, 2, 3, 4})
	if err := r.Realloc(8); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 8 {
		t.Fatalf("expected len 8, got %d", r.Len())
	}
	if !bytes.Equal(r.Bytes()[:4], []byte{1, 2, 3, 4}) {
		t.Fatalf("head not preserved across grow: %v", r.Bytes())
	}
	if err := r.Realloc(2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.Bytes(), []byte{1, 2}) {
		t.Fatalf("head not preserved across shrink: %v", r.Bytes())
	}
}

func TestShrinkAndExtendRoundTrip(t *testing.T) {
	r, _ := Alloc(10)
	copy(r.Bytes(), []byte("0123456789"))
	tail, err := r.Tail(4)
	if err != nil {
		t.Fatal(err)
	}
	tailCopy := append([]byte(nil), tail...)
	r.Shrink(6)
	if !bytes.Equal(r.Bytes(), []byte("012345")) {
		t.Fatalf("unexpected head after shrink: %q", r.Bytes())
	}
	r.Extend(tailCopy)
	if !bytes.Equal(r.Bytes(), []byte("0123456789")) {
		t.Fatalf("extend did not restore original contents: %q", r.Bytes())
	}
}

func TestReadSliceOutOfBounds(t *testing.T) {
	r, _ := Alloc(4)
	if _, err := r.ReadSlice(0, 5); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}
