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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/miekg/pkcs11"
	pkcs11uri "github.com/stefanberger/go-pkcs11uri"
)

// Reference is a parsed RFC 7512 PKCS#11 URI naming a class of acceptable
// tokens and, optionally, the key object to use on them. A reference may
// match many physical tokens; it is a pattern, not a device identity.
// Immutable once parsed.
type Reference struct {
	uri *pkcs11uri.Pkcs11URI
	raw string
}

// ParseReference parses and syntactically validates a PKCS#11 URI.
func ParseReference(s string) (*Reference, error) {
	uri := pkcs11uri.New()
	if err := uri.Parse(s); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReference, s, err)
	}
	return &Reference{uri: uri, raw: s}, nil
}

// ValidReference reports whether s is a syntactically valid PKCS#11 URI.
func ValidReference(s string) bool {
	_, err := ParseReference(s)
	return err == nil
}

// String returns the reference in its original textual form.
func (r *Reference) String() string {
	return r.raw
}

// HasPIN reports whether the URI carries a PIN (pin-value or pin-source).
func (r *Reference) HasPIN() bool {
	return r.uri.HasPIN()
}

// PIN returns the PIN carried by the URI.
func (r *Reference) PIN() (string, error) {
	return r.uri.GetPIN()
}

// ObjectLabel returns the CKA_LABEL selection criterion, if any.
func (r *Reference) ObjectLabel() (string, bool) {
	return r.uri.GetPathAttribute("object", false)
}

// ObjectID returns the CKA_ID selection criterion, if any. The value is
// the percent-decoded binary ID.
func (r *Reference) ObjectID() ([]byte, bool) {
	v, ok := r.uri.GetPathAttribute("id", false)
	if !ok {
		return nil, false
	}
	return []byte(v), true
}

// MatchesToken reports whether the token in the given slot structurally
// matches this reference. Every token-level attribute present in the URI
// (token, manufacturer, model, serial, slot-id) must equal the token's
// corresponding descriptor field; absent attributes match anything.
func (r *Reference) MatchesToken(slotID uint, info pkcs11.TokenInfo) bool {
	if v, ok := r.uri.GetPathAttribute("token", false); ok {
		if v != trimPadding(info.Label) {
			return false
		}
	}
	if v, ok := r.uri.GetPathAttribute("manufacturer", false); ok {
		if v != trimPadding(info.ManufacturerID) {
			return false
		}
	}
	if v, ok := r.uri.GetPathAttribute("model", false); ok {
		if v != trimPadding(info.Model) {
			return false
		}
	}
	if v, ok := r.uri.GetPathAttribute("serial", false); ok {
		if v != trimPadding(info.SerialNumber) {
			return false
		}
	}
	if v, ok := r.uri.GetPathAttribute("slot-id", false); ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || uint(id) != slotID {
			return false
		}
	}
	return true
}

// trimPadding strips the space and NUL padding PKCS#11 fixed-width
// descriptor fields carry.
func trimPadding(s string) string {
	return strings.TrimRight(s, " \x00")
}
