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

package token

import "errors"

var (
	// ErrLibraryNotFound is returned when the PKCS#11 library cannot be loaded.
	ErrLibraryNotFound = errors.New("token: PKCS#11 library not found")

	// ErrInvalidReference is returned when a PKCS#11 URI fails syntactic validation.
	ErrInvalidReference = errors.New("token: invalid PKCS#11 URI")

	// ErrTokenNotFound is returned when no present token matches the reference.
	ErrTokenNotFound = errors.New("token: no matching token found")

	// ErrTokenNotAvailable indicates a matching token exists but cannot be
	// used yet (not present, credential not yet available). Callers treat
	// this as retryable and keep searching.
	ErrTokenNotAvailable = errors.New("token: token not available yet")

	// ErrAuthenticationFailed is returned when login to a token fails hard.
	ErrAuthenticationFailed = errors.New("token: authentication failed")

	// ErrPINIncorrect is returned when the token rejected the supplied PIN.
	ErrPINIncorrect = errors.New("token: PIN incorrect")

	// ErrPINLocked is returned when the token's PIN is locked out.
	ErrPINLocked = errors.New("token: PIN locked")

	// ErrKeyObjectNotFound is returned when no private key on the token
	// matches the reference's selection criteria.
	ErrKeyObjectNotFound = errors.New("token: private key object not found")

	// ErrKeyObjectAmbiguous is returned when more than one private key
	// matches the reference's selection criteria.
	ErrKeyObjectAmbiguous = errors.New("token: multiple private key objects match")

	// ErrDecryptionFailed is returned when the token's decrypt operation fails.
	ErrDecryptionFailed = errors.New("token: decryption failed")

	// ErrTimeout is returned when the unlock deadline expired.
	ErrTimeout = errors.New("token: deadline exceeded")
)
