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
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Disk is a Backend that stores each span as a file in a directory.
// Writes land in a ".tmp" file and are renamed into place, so a crash
// mid-write never leaves a half-written span visible to a later
// SwapIn.
type Disk struct {
	dir string

	// mu serializes the read-modify-write needed for prepend; without
	// it, two concurrent SwapOut(prepend=true) calls for the same id
	// could race on the rename.
	mu sync.Mutex
}

// NewDisk returns a Disk backend rooted at dir, creating it if
// necessary.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("backend: disk: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) path(id ID) string {
	return filepath.Join(d.dir, fmt.Sprintf("%016x", uint64(id)))
}

func (d *Disk) SwapOut(id ID, bytes []byte, prepend bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	final := d.path(id)
	out := bytes
	if prepend {
		existing, err := os.ReadFile(final)
		if err == nil {
			out = append(append([]byte(nil), bytes...), existing...)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("backend: disk: reading existing span %d: %w", id, err)
		}
	}
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, out, 0o640); err != nil {
		return fmt.Errorf("backend: disk: writing span %d: %w", id, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("backend: disk: committing span %d: %w", id, err)
	}
	return nil
}

func (d *Disk) SwapIn(id ID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	final := d.path(id)
	b, err := os.ReadFile(final)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("backend: disk: reading span %d: %w", id, err)
	}
	if err := os.Remove(final); err != nil {
		return nil, fmt.Errorf("backend: disk: removing span %d after swap-in: %w", id, err)
	}
	return b, nil
}

func (d *Disk) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(d, outs, inID)
}
