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
	"os"
	"testing"

	"github.com/farmemory/client/ints"
)

// roundTrip asserts that swapping out data for id and swapping it back in
// returns exactly the original bytes, and that a second swap-in fails with
// ErrNotFound (SwapIn is destructive).
func roundTrip(t *testing.T, b Backend, id ID, data []byte) {
	t.Helper()
	if err := b.SwapOut(id, data, false); err != nil {
		t.Fatalf("swap out: %v", err)
	}
	got, err := b.SwapIn(id)
	if err != nil {
		t.Fatalf("swap in: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %q want %q", got, data)
	}
	if _, err := b.SwapIn(id); err != ErrNotFound {
		t.Fatalf("second swap-in: got %v, want ErrNotFound", err)
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	roundTrip(t, NewInMemory(), 1, []byte("hello world"))
}

func TestInMemoryPrepend(t *testing.T) {
	m := NewInMemory()
	if err := m.SwapOut(1, []byte("world"), false); err != nil {
		t.Fatal(err)
	}
	if err := m.SwapOut(1, []byte("hello "), true); err != nil {
		t.Fatal(err)
	}
	got, err := m.SwapIn(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestDiskRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "farmemory-disk-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	d, err := NewDisk(dir)
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, d, 42, bytes.Repeat([]byte("x"), 4096))
}

func TestReplicatedSurvivesMemberLoss(t *testing.T) {
	a, b, c := NewInMemory(), NewInMemory(), NewInMemory()
	r := NewReplicated(a, b, c)
	data := []byte("replicated payload")
	if err := r.SwapOut(7, data, false); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 || b.Len() != 1 || c.Len() != 1 {
		t.Fatalf("expected all three replicas to hold the span")
	}
	// simulate losing two of three replicas by swapping them in directly
	if _, err := b.SwapIn(7); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SwapIn(7); err != nil {
		t.Fatal(err)
	}
	got, err := r.SwapIn(7)
	if err != nil {
		t.Fatalf("swap in after losing two replicas: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q want %q", got, data)
	}
}

func TestErasureCodedSurvivesParityLossOfShards(t *testing.T) {
	members := make([]Backend, 5)
	for i := range members {
		members[i] = NewInMemory()
	}
	e, err := NewErasureCoded(3, 2, members...)
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte("erasure-coded-span-data"), 50)
	if err := e.SwapOut(1, data, false); err != nil {
		t.Fatal(err)
	}
	// destroy two shards directly on their member backends (simulating
	// the loss of two of the five storage nodes)
	if _, err := members[0].(*InMemory).SwapIn(1); err != nil {
		t.Fatal(err)
	}
	if _, err := members[4].(*InMemory).SwapIn(1); err != nil {
		t.Fatal(err)
	}
	got, err := e.SwapIn(1)
	if err != nil {
		t.Fatalf("swap in after losing 2 of 5 shards: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reconstructed data mismatch: got %d bytes want %d", len(got), len(data))
	}
}

func TestShardedPlacementIsConsistent(t *testing.T) {
	members := make([]Backend, 4)
	for i := range members {
		members[i] = NewInMemory()
	}
	s := NewSharded(1, 2, members...)
	first := s.shardFor(99)
	for i := 0; i < 10; i++ {
		if s.shardFor(99) != first {
			t.Fatalf("placement for the same id was not stable")
		}
	}
	if err := s.SwapOut(99, []byte("sharded"), false); err != nil {
		t.Fatal(err)
	}
	got, err := s.SwapIn(99)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "sharded" {
		t.Fatalf("got %q", got)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	for _, algo := range []string{"zstd", "s2"} {
		inner := NewInMemory()
		c := NewCompressed(inner, algo)
		data := bytes.Repeat([]byte("compressible payload "), 200)
		if err := c.SwapOut(5, data, false); err != nil {
			t.Fatalf("%s: swap out: %v", algo, err)
		}
		if inner.Len() != 1 {
			t.Fatalf("%s: expected inner backend to hold one compressed span", algo)
		}
		got, err := c.SwapIn(5)
		if err != nil {
			t.Fatalf("%s: swap in: %v", algo, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("%s: round trip mismatch", algo)
		}
	}
}

func TestCompressedPrependRecompresses(t *testing.T) {
	inner := NewInMemory()
	c := NewCompressed(inner, "s2")
	if err := c.SwapOut(1, []byte("world"), false); err != nil {
		t.Fatal(err)
	}
	if err := c.SwapOut(1, []byte("hello "), true); err != nil {
		t.Fatal(err)
	}
	got, err := c.SwapIn(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	inner := NewInMemory()
	secret := make([]byte, 32)
	if err := ints.RandomFillSlice(secret); err != nil {
		t.Fatal(err)
	}
	e, err := NewEncrypted(inner, secret)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("sensitive span contents")
	if err := e.SwapOut(3, data, false); err != nil {
		t.Fatal(err)
	}
	stored, err := inner.SwapIn(3)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(stored, data) {
		t.Fatalf("inner backend should never see plaintext")
	}
	// put it back so Encrypted.SwapIn can find it
	if err := inner.SwapOut(3, stored, false); err != nil {
		t.Fatal(err)
	}
	got, err := e.SwapIn(3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEncryptedDifferentSecretsDontInteroperate(t *testing.T) {
	inner := NewInMemory()
	e1, _ := NewEncrypted(inner, []byte("secret one"))
	if err := e1.SwapOut(9, []byte("payload"), false); err != nil {
		t.Fatal(err)
	}
	stored, _ := inner.SwapIn(9)
	inner.SwapOut(9, stored, false)

	e2, _ := NewEncrypted(inner, []byte("secret two"))
	if _, err := e2.SwapIn(9); err == nil {
		t.Fatalf("expected decryption under a different key to fail")
	}
}
