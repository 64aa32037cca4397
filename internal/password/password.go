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

// Package password provides secure PIN handling for token authentication.
//
// PINs are held in zeroizable buffers and obtained from one of three
// sources, checked in order: the PKCS#11 URI's pin-value attribute, the
// VOLUMEKEY_PIN environment variable, and an interactive terminal prompt.
package password

import (
	"crypto/subtle"
	"errors"
	"os"
)

// EnvPIN is the environment variable consulted before prompting interactively.
const EnvPIN = "VOLUMEKEY_PIN"

var (
	// ErrEmptyPassword is returned when an empty PIN is provided.
	ErrEmptyPassword = errors.New("password: PIN cannot be empty")

	// ErrPasswordZeroed is returned when the PIN has already been zeroed.
	ErrPasswordZeroed = errors.New("password: PIN has been zeroed")
)

// Password holds sensitive credential material that can be securely
// zeroed when no longer needed.
type Password interface {
	String() (string, error)
	Bytes() []byte
	Clear()
}

// ClearPassword stores a PIN in memory as cleartext.
//
// While stored in cleartext, the PIN can be securely zeroed when no
// longer needed.
type ClearPassword struct {
	pin []byte
}

// NewClearPassword creates a new cleartext PIN stored in memory.
//
// The provided byte slice is copied to prevent external modification.
// Returns an error if the PIN is empty.
func NewClearPassword(pin []byte) (Password, error) {
	if len(pin) == 0 {
		return nil, ErrEmptyPassword
	}
	p := make([]byte, len(pin))
	copy(p, pin)
	return &ClearPassword{pin: p}, nil
}

// NewClearPasswordFromString creates a new cleartext PIN from a string.
func NewClearPasswordFromString(pin string) (Password, error) {
	if len(pin) == 0 {
		return nil, ErrEmptyPassword
	}
	return &ClearPassword{pin: []byte(pin)}, nil
}

// FromEnv returns the PIN from the VOLUMEKEY_PIN environment variable,
// or nil if the variable is unset or empty.
func FromEnv() Password {
	v := os.Getenv(EnvPIN)
	if v == "" {
		return nil
	}
	return &ClearPassword{pin: []byte(v)}
}

// String returns the PIN as a string.
func (p *ClearPassword) String() (string, error) {
	if p.pin == nil {
		return "", ErrPasswordZeroed
	}
	return string(p.pin), nil
}

// Bytes returns the PIN as a byte slice.
//
// The returned slice is a copy to prevent external modification of the
// internal PIN data.
func (p *ClearPassword) Bytes() []byte {
	if p.pin == nil {
		return nil
	}
	result := make([]byte, len(p.pin))
	copy(result, p.pin)
	return result
}

// Clear securely clears the PIN from memory.
//
// After calling Clear, the PIN cannot be retrieved and any subsequent
// calls to String() or Bytes() will return an error or nil. This
// operation is irreversible.
func (p *ClearPassword) Clear() {
	if p.pin != nil {
		for i := range p.pin {
			p.pin[i] = 0
		}
		// Use subtle.ConstantTimeCopy to ensure compiler doesn't optimize away
		subtle.ConstantTimeCopy(1, p.pin, make([]byte, len(p.pin)))
		p.pin = nil
	}
}

// Equal compares two PINs in constant time to prevent timing attacks.
func Equal(a, b Password) (bool, error) {
	aBytes := a.Bytes()
	if aBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer func() {
		for i := range aBytes {
			aBytes[i] = 0
		}
	}()

	bBytes := b.Bytes()
	if bBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer func() {
		for i := range bBytes {
			bBytes[i] = 0
		}
	}()

	return subtle.ConstantTimeCompare(aBytes, bBytes) == 1, nil
}

var _ Password = (*ClearPassword)(nil)
