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

// Package luks2 reads PKCS#11 token records out of LUKS2 volume
// metadata so an unlock can run without the operator naming the token
// or the wrapped key.
package luks2

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	// TokenType is the LUKS2 token type owned by this project.
	TokenType = "volumekey-pkcs11"

	// MaxTokenSlots is the number of token slots scanned during
	// automatic discovery.
	MaxTokenSlots = 32
)

// TokenStore provides indexed access to raw LUKS2 token records.
// Implementations back it with a metadata dump, a header file, or a
// test fixture.
type TokenStore interface {
	// Token returns the raw JSON record in the given slot, or
	// ErrTokenSlotEmpty when the slot holds none.
	Token(index int) (json.RawMessage, error)

	// MaxTokens returns the number of slots to scan.
	MaxTokens() int
}

// Metadata is a TokenStore over an exported LUKS2 JSON metadata area,
// the shape produced by `cryptsetup luksDump --dump-json-metadata`.
type Metadata struct {
	Tokens map[string]json.RawMessage `json:"tokens"`
}

// Load parses an exported LUKS2 JSON metadata area.
func Load(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("luks2: parsing metadata: %w", err)
	}
	return &m, nil
}

// LoadFile reads and parses an exported LUKS2 JSON metadata file.
func LoadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("luks2: reading metadata: %w", err)
	}
	return Load(data)
}

func (m *Metadata) Token(index int) (json.RawMessage, error) {
	raw, ok := m.Tokens[fmt.Sprintf("%d", index)]
	if !ok || len(raw) == 0 {
		return nil, ErrTokenSlotEmpty
	}
	return raw, nil
}

func (m *Metadata) MaxTokens() int {
	return MaxTokenSlots
}
