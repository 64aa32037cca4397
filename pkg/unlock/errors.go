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

import "errors"

var (
	// ErrInvalidKeySource indicates a caller contract violation: no key
	// source, or a key source with conflicting or missing fields.
	ErrInvalidKeySource = errors.New("unlock: invalid key source")

	// ErrKeyRead is returned when reading the wrapped key from a file or
	// socket fails.
	ErrKeyRead = errors.New("unlock: failed to read wrapped key")

	// ErrBufferReleased is returned when a key buffer is used after its
	// contents were released or taken.
	ErrBufferReleased = errors.New("unlock: key buffer already released")
)
