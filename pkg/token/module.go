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

// Package token drives PKCS#11 security tokens for volume unlocking.
//
// The package wraps the low-level PKCS#11 interface with the operations
// the unlock protocol needs: enumerating tokens that match an RFC 7512
// PKCS#11 URI, logging in with an interactively or non-interactively
// obtained PIN, harvesting hardware entropy, locating a private key
// object, and decrypting a wrapped volume key with it.
package token

import (
	"fmt"
	"os"

	"github.com/miekg/pkcs11"
)

// API is the subset of the PKCS#11 interface the unlock protocol uses.
// It is satisfied by *pkcs11.Ctx and by test doubles.
type API interface {
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	GenerateRandom(sh pkcs11.SessionHandle, length int) ([]byte, error)
	FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error
	FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error)
	FindObjectsFinal(sh pkcs11.SessionHandle) error
	DecryptInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error
	Decrypt(sh pkcs11.SessionHandle, cipher []byte) ([]byte, error)
}

var _ API = (*pkcs11.Ctx)(nil)

// Module is a loaded and initialized PKCS#11 library.
type Module struct {
	ctx     *pkcs11.Ctx
	library string
}

// Open loads the PKCS#11 library at the given path and initializes it.
// A library that is already initialized in this process is tolerated.
func Open(library string) (*Module, error) {
	if library == "" {
		return nil, fmt.Errorf("%w: empty library path", ErrLibraryNotFound)
	}
	if _, err := os.Stat(library); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, library)
	}

	p := pkcs11.New(library)
	if p == nil {
		return nil, fmt.Errorf("%w: failed to load %s", ErrLibraryNotFound, library)
	}
	if err := p.Initialize(); err != nil {
		if err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
			p.Destroy()
			return nil, fmt.Errorf("token: failed to initialize PKCS#11 library %s: %w", library, err)
		}
	}

	return &Module{ctx: p, library: library}, nil
}

// API returns the PKCS#11 interface backed by this module.
func (m *Module) API() API {
	return m.ctx
}

// Library returns the path the module was loaded from.
func (m *Module) Library() string {
	return m.library
}

// Close finalizes and unloads the library.
func (m *Module) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Finalize()
	m.ctx.Destroy()
	m.ctx = nil
	return err
}
