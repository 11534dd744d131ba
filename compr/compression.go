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

// Package compr picks a compression codec by name for backend.Compressed,
// which is the only caller: a span's swapped-out suffix goes in through
// Codec.Compress and comes back out through Codec.Decompress, using
// whichever one of the two codecs below backend.Compressed was
// constructed with.
package compr

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses span bytes under one algorithm
// name. A Codec returned by ByName(name) always reports Name() == name,
// so backend.Compressed can record just the algorithm string alongside
// a span and look the same Codec up again for SwapIn.
type Codec interface {
	Name() string
	// Compress appends the compressed form of src to dst and returns
	// the result.
	Compress(src, dst []byte) []byte
	// Decompress decompresses src into dst, which must already be
	// sized to the known decompressed length; backend.Compressed
	// tracks that length per span since the compressed form alone
	// doesn't carry it portably across codecs.
	Decompress(src, dst []byte) error
}

// ByName returns the Codec for name ("zstd" or "s2"), or nil if name is
// not recognized.
func ByName(name string) Codec {
	switch name {
	case "zstd":
		return zstdCodec{}
	case "s2":
		return s2Codec{}
	default:
		return nil
	}
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(src, dst []byte) []byte {
	return zstdEncoder.EncodeAll(src, dst)
}

func (zstdCodec) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := zstdDecoder.DecodeAll(src, into)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("compr: zstd: expected %d bytes decompressed, got %d", len(dst), len(ret))
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("compr: zstd: output buffer was reallocated")
	}
	return nil
}

// zstdEncoder/zstdDecoder are shared across every span compressed or
// decompressed with "zstd": zstd's reader and writer are both safe for
// concurrent use once constructed and expensive enough to build that
// backend.Compressed should not pay that cost per span.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdEncoder = enc

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = dec
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	if overlaps(src, tail) {
		// s2 requires non-overlapping src and dst
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Codec) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := s2.Decode(into, src)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("compr: s2: expected %d bytes decompressed, got %d", len(dst), len(ret))
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("compr: s2: output buffer was reallocated")
	}
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
