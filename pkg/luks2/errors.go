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

package luks2

import "errors"

var (
	// ErrTokenSlotEmpty signals that a token slot holds no record.
	ErrTokenSlotEmpty = errors.New("luks2: token slot is empty")

	// ErrNoTokenData signals that no usable token record was found on
	// the volume.
	ErrNoTokenData = errors.New("luks2: no PKCS#11 token record found")

	// ErrAmbiguousMetadata signals that more than one usable token
	// record exists and automatic selection is impossible.
	ErrAmbiguousMetadata = errors.New("luks2: multiple PKCS#11 token records found")

	// ErrMalformedMetadata signals a token record that names our type
	// but fails validation.
	ErrMalformedMetadata = errors.New("luks2: malformed PKCS#11 token record")
)
