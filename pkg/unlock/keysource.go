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
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"
)

// maxKeyFileSize bounds how much is read from a key file or socket when
// the caller does not specify a size.
const maxKeyFileSize = 64 << 20

// KeySource produces the wrapped (encrypted) volume key bytes for an
// unlock attempt. Exactly one of LiteralSource or FileSource is used per
// attempt.
type KeySource interface {
	resolve(volumeName string) (*KeyBuffer, error)
}

// LiteralSource supplies the wrapped key from caller-owned memory. The
// bytes are referenced directly, never copied or zeroized; the caller
// retains ownership.
type LiteralSource struct {
	Data []byte
}

func (s LiteralSource) resolve(volumeName string) (*KeyBuffer, error) {
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("%w: literal key source without data", ErrInvalidKeySource)
	}
	return NewBorrowedBuffer(s.Data), nil
}

// FileSource reads the wrapped key from a regular file or an AF_UNIX
// socket. The returned buffer is owned by the unlock attempt and
// zeroized when it completes.
type FileSource struct {
	// Path names a regular file or an AF_UNIX stream socket.
	Path string

	// Offset is the byte offset to start reading at. Zero reads from
	// the start.
	Offset uint64

	// MaxSize caps how many bytes are read. Zero reads to the end of
	// the file, bounded by an internal limit.
	MaxSize uint64
}

func (s FileSource) resolve(volumeName string) (*KeyBuffer, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("%w: file key source without path", ErrInvalidKeySource)
	}

	fi, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
	}

	var r io.ReadCloser
	if fi.Mode()&os.ModeSocket != 0 {
		r, err = s.dialKeySocket(volumeName)
	} else {
		r, err = s.openKeyFile()
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	limit := s.MaxSize
	if limit == 0 || limit > maxKeyFileSize {
		limit = maxKeyFileSize
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrKeyRead, s.Path)
	}
	return NewOwnedBuffer(data), nil
}

// openKeyFile opens the key file and seeks to the configured offset.
func (s FileSource) openKeyFile() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
	}
	if s.Offset > 0 {
		if _, err := f.Seek(int64(s.Offset), io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
		}
	}
	return f, nil
}

// dialKeySocket connects to the key socket from a bound abstract-namespace
// address that names this client and the volume it is unlocking, so the
// serving side can attribute the request. Sockets cannot seek, so the
// offset is consumed by discarding.
func (s FileSource) dialKeySocket(volumeName string) (io.ReadCloser, error) {
	laddr := &net.UnixAddr{
		Name: fmt.Sprintf("@%x/volumekey-pkcs11/%s", uuid.New(), volumeName),
		Net:  "unix",
	}
	raddr := &net.UnixAddr{Name: s.Path, Net: "unix"}

	conn, err := net.DialUnix("unix", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
	}
	if s.Offset > 0 {
		if _, err := io.CopyN(io.Discard, conn, int64(s.Offset)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrKeyRead, err)
		}
	}
	return conn, nil
}
