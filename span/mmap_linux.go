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

//go:build linux

package span

import "golang.org/x/sys/unix"

// largeSpanThreshold is the size above which spans are backed by an
// anonymous mmap rather than the Go heap, so that large local prefixes
// don't pressure the garbage collector's scan work.
const largeSpanThreshold = 1 << 20

func allocLarge(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	return buf, nil
}

func freeLarge(buf []byte) {
	_ = unix.Munmap(buf)
}
