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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Encrypted wraps another Backend, sealing bytes with AES-256-GCM
// before handing them to Inner. The master secret is stretched into a
// per-backend data-encryption key with HKDF rather than used directly
// as an AES key.
//
// Like Compressed, a prepend-mode SwapOut round-trips through SwapIn
// (decrypt, concatenate, re-encrypt) instead of attempting to extend an
// existing ciphertext in place; see Compressed's doc comment.
type Encrypted struct {
	Inner Backend
	key   [32]byte
}

// NewEncrypted derives a data-encryption key from secret via HKDF-SHA256
// and returns an Encrypted backend wrapping inner.
func NewEncrypted(inner Backend, secret []byte) (*Encrypted, error) {
	e := &Encrypted{Inner: inner}
	kdf := hkdf.New(sha256.New, secret, nil, []byte("farmemory-backend-encrypted"))
	if _, err := io.ReadFull(kdf, e.key[:]); err != nil {
		return nil, fmt.Errorf("backend: encrypted: deriving key: %w", err)
	}
	return e, nil
}

func (e *Encrypted) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *Encrypted) SwapOut(id ID, bytes []byte, prepend bool) error {
	if prepend {
		existing, err := e.SwapIn(id)
		if err != nil && err != ErrNotFound {
			return err
		}
		bytes = append(append([]byte(nil), bytes...), existing...)
	}
	gcm, err := e.aead()
	if err != nil {
		return fmt.Errorf("backend: encrypted: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("backend: encrypted: generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, bytes, idAAD(id))
	if err := e.Inner.SwapOut(id, sealed, false); err != nil {
		return fmt.Errorf("backend: encrypted: %w", err)
	}
	return nil
}

func (e *Encrypted) SwapIn(id ID) ([]byte, error) {
	sealed, err := e.Inner.SwapIn(id)
	if err != nil {
		return nil, err
	}
	gcm, err := e.aead()
	if err != nil {
		return nil, fmt.Errorf("backend: encrypted: %w", err)
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("backend: encrypted: span %d ciphertext too short", id)
	}
	nonce, ct := sealed[:n], sealed[n:]
	plain, err := gcm.Open(nil, nonce, ct, idAAD(id))
	if err != nil {
		return nil, fmt.Errorf("backend: encrypted: opening span %d: %w", id, err)
	}
	return plain, nil
}

func (e *Encrypted) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(e, outs, inID)
}

// idAAD binds the span id into the AEAD tag so ciphertext for one span
// cannot be silently replayed under another's id.
func idAAD(id ID) []byte {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(id >> (8 * i))
	}
	return buf[:]
}
