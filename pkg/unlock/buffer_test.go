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

import (
	"bytes"
	"testing"
)

func TestOwnedBufferReleaseZeroizes(t *testing.T) {
	data := []byte("super secret volume key")
	buf := NewOwnedBuffer(data)

	if !buf.Owned() {
		t.Fatal("expected owned buffer")
	}
	if !bytes.Equal(buf.Bytes(), []byte("super secret volume key")) {
		t.Fatal("buffer content mismatch")
	}

	buf.Release()

	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zeroized after release", i)
		}
	}
	if buf.Bytes() != nil {
		t.Fatal("released buffer must not expose data")
	}
	if buf.Len() != 0 {
		t.Fatal("released buffer must report zero length")
	}
}

func TestBorrowedBufferReleaseKeepsData(t *testing.T) {
	data := []byte("caller owned key material")
	buf := NewBorrowedBuffer(data)

	if buf.Owned() {
		t.Fatal("expected borrowed buffer")
	}

	buf.Release()

	if !bytes.Equal(data, []byte("caller owned key material")) {
		t.Fatal("borrowed data must survive release")
	}
}

func TestTakeTransfersOwnership(t *testing.T) {
	buf := NewOwnedBuffer([]byte{1, 2, 3, 4})

	taken := buf.Take()
	if !bytes.Equal(taken, []byte{1, 2, 3, 4}) {
		t.Fatal("taken bytes mismatch")
	}

	// A later release must not zeroize what Take handed out.
	buf.Release()
	if !bytes.Equal(taken, []byte{1, 2, 3, 4}) {
		t.Fatal("release after take must not destroy the key")
	}

	if buf.Bytes() != nil {
		t.Fatal("spent buffer must not expose data")
	}
	if buf.Take() != nil {
		t.Fatal("second take must return nil")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	buf := NewOwnedBuffer([]byte{9, 9, 9})
	buf.Release()
	buf.Release()

	var nilBuf *KeyBuffer
	nilBuf.Release()
	if nilBuf.Bytes() != nil || nilBuf.Len() != 0 {
		t.Fatal("nil buffer must behave as empty")
	}
}
