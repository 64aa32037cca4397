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

//go:build linux

package token

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// randPoolInfo mirrors struct rand_pool_info for the RNDADDENTROPY ioctl.
type randPoolInfo struct {
	entropyCount int32
	bufSize      int32
	buf          [entropyHarvestSize]byte
}

// seedEntropyPool feeds seed into the kernel entropy pool. With
// CAP_SYS_ADMIN the bytes are credited via RNDADDENTROPY; otherwise they
// are written to /dev/urandom, which mixes them in without credit.
func seedEntropyPool(seed []byte) error {
	if len(seed) > entropyHarvestSize {
		seed = seed[:entropyHarvestSize]
	}

	fd, err := unix.Open("/dev/random", unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err == nil {
		info := randPoolInfo{
			entropyCount: int32(len(seed) * 8),
			bufSize:      int32(len(seed)),
		}
		copy(info.buf[:], seed)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
			uintptr(unix.RNDADDENTROPY), uintptr(unsafe.Pointer(&info)))
		unix.Close(fd)
		if errno == 0 {
			return nil
		}
		if !errors.Is(errno, unix.EPERM) && !errors.Is(errno, unix.EACCES) {
			return errno
		}
		// Not privileged enough to credit entropy, fall through to a
		// plain uncredited write.
	}

	fd, err = unix.Open("/dev/urandom", unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	if _, err := unix.Write(fd, seed); err != nil {
		return err
	}
	return nil
}
