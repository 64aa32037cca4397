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

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jeremyhahn/go-volumekey/pkg/metrics"
	"github.com/jeremyhahn/go-volumekey/pkg/token"
)

// AutoTokenData is the result of automatic token discovery: everything
// needed to unlock the volume without operator-supplied configuration.
type AutoTokenData struct {
	// URI locates the token and key object.
	URI *token.Reference

	// EncryptedKey is the wrapped volume key stored in the record.
	EncryptedKey []byte

	// Keyslot is the LUKS2 keyslot the decrypted key opens.
	Keyslot int
}

// tokenRecord is the on-disk shape of one of our token records.
type tokenRecord struct {
	Type     string   `json:"type"`
	Keyslots []string `json:"keyslots"`
	URI      string   `json:"pkcs11-uri"`
	Key      string   `json:"pkcs11-key"`
}

// ResolveAutoTokenData scans the store's token slots for exactly one
// usable record of our type. Empty slots, foreign token types, and
// records too mangled to identify are skipped; a second usable record
// is a hard failure since automatic selection would be a guess.
func ResolveAutoTokenData(store TokenStore) (data *AutoTokenData, err error) {
	defer func() { metrics.RecordMetadataResolution(err) }()

	var found *AutoTokenData
	for index := 0; index < store.MaxTokens(); index++ {
		raw, err := store.Token(index)
		if err != nil {
			if errors.Is(err, ErrTokenSlotEmpty) {
				continue
			}
			return nil, fmt.Errorf("luks2: reading token slot %d: %w", index, err)
		}

		var record tokenRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if record.Type != TokenType {
			continue
		}

		parsed, err := parseRecord(index, &record)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return nil, fmt.Errorf("%w: slots %d and %d both usable",
				ErrAmbiguousMetadata, found.Keyslot, parsed.Keyslot)
		}
		found = parsed
	}
	if found == nil {
		return nil, ErrNoTokenData
	}
	return found, nil
}

// parseRecord validates one record of our type. The URI is checked
// before the key so a bad reference is reported even when the key blob
// is also damaged.
func parseRecord(index int, record *tokenRecord) (*AutoTokenData, error) {
	if record.URI == "" {
		return nil, fmt.Errorf("%w: token slot %d has no pkcs11-uri", ErrMalformedMetadata, index)
	}
	uri, err := token.ParseReference(record.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: token slot %d: %v", ErrMalformedMetadata, index, err)
	}

	if record.Key == "" {
		return nil, fmt.Errorf("%w: token slot %d has no pkcs11-key", ErrMalformedMetadata, index)
	}
	key, err := base64.StdEncoding.DecodeString(record.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: token slot %d: decoding pkcs11-key: %v", ErrMalformedMetadata, index, err)
	}

	if len(record.Keyslots) != 1 {
		return nil, fmt.Errorf("%w: token slot %d references %d keyslots, expected exactly one",
			ErrMalformedMetadata, index, len(record.Keyslots))
	}
	keyslot, err := strconv.Atoi(record.Keyslots[0])
	if err != nil || keyslot < 0 {
		return nil, fmt.Errorf("%w: token slot %d has invalid keyslot %q",
			ErrMalformedMetadata, index, record.Keyslots[0])
	}

	return &AutoTokenData{URI: uri, EncryptedKey: key, Keyslot: keyslot}, nil
}
