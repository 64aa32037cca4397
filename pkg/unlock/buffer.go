// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-volumekey.
//
// go-volumekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package unlock

// KeyBuffer holds key material with explicit ownership. An owned buffer
// is zeroized on Release; a borrowed buffer aliases caller memory and is
// left untouched. Ownership moves with Take, making single-owner handoff
// across component boundaries structural rather than conventional.
type KeyBuffer struct {
	data  []byte
	owned bool
	spent bool
}

// NewOwnedBuffer wraps key material this package is responsible for
// zeroizing.
func NewOwnedBuffer(data []byte) *KeyBuffer {
	return &KeyBuffer{data: data, owned: true}
}

// NewBorrowedBuffer wraps caller-owned key material that must never be
// zeroized or copied by this package.
func NewBorrowedBuffer(data []byte) *KeyBuffer {
	return &KeyBuffer{data: data}
}

// Bytes returns the underlying key material, or nil after Release/Take.
func (b *KeyBuffer) Bytes() []byte {
	if b == nil || b.spent {
		return nil
	}
	return b.data
}

// Len returns the length of the key material.
func (b *KeyBuffer) Len() int {
	if b == nil || b.spent {
		return 0
	}
	return len(b.data)
}

// Owned reports whether this buffer is responsible for its memory.
func (b *KeyBuffer) Owned() bool {
	return b != nil && b.owned
}

// Take transfers ownership of the key material to the caller and marks
// the buffer spent; a subsequent Release is a no-op. Returns nil if the
// buffer was already spent.
func (b *KeyBuffer) Take() []byte {
	if b == nil || b.spent {
		return nil
	}
	data := b.data
	b.data = nil
	b.spent = true
	return data
}

// Release zeroizes owned key material and marks the buffer spent. Safe
// to call multiple times and on buffers already handed off with Take.
func (b *KeyBuffer) Release() {
	if b == nil || b.spent {
		return
	}
	if b.owned {
		for i := range b.data {
			b.data[i] = 0
		}
	}
	b.data = nil
	b.spent = true
}
