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
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{
			name: "token and object",
			uri:  "pkcs11:token=vault;object=volume-key",
		},
		{
			name: "full attribute set",
			uri:  "pkcs11:token=vault;manufacturer=ACME;model=HSM2;serial=123456;object=volume-key;id=%01%02",
		},
		{
			name: "bare scheme",
			uri:  "pkcs11:",
		},
		{
			name:    "wrong scheme",
			uri:     "https://example.com",
			wantErr: true,
		},
		{
			name:    "not a URI",
			uri:     "just some text",
			wantErr: true,
		},
		{
			name:    "empty",
			uri:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseReference(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidReference)
				assert.False(t, ValidReference(tt.uri))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.uri, ref.String())
			assert.True(t, ValidReference(tt.uri))
		})
	}
}

func TestReference_ObjectSelection(t *testing.T) {
	ref, err := ParseReference("pkcs11:token=vault;object=volume-key;id=%01%02%03")
	require.NoError(t, err)

	label, ok := ref.ObjectLabel()
	require.True(t, ok)
	assert.Equal(t, "volume-key", label)

	id, ok := ref.ObjectID()
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, id)

	bare, err := ParseReference("pkcs11:token=vault")
	require.NoError(t, err)
	_, ok = bare.ObjectLabel()
	assert.False(t, ok)
	_, ok = bare.ObjectID()
	assert.False(t, ok)
}

func TestReference_PIN(t *testing.T) {
	ref, err := ParseReference("pkcs11:token=vault?pin-value=123456")
	require.NoError(t, err)
	require.True(t, ref.HasPIN())

	pin, err := ref.PIN()
	require.NoError(t, err)
	assert.Equal(t, "123456", pin)

	bare, err := ParseReference("pkcs11:token=vault")
	require.NoError(t, err)
	assert.False(t, bare.HasPIN())
}

func TestReference_MatchesToken(t *testing.T) {
	info := pkcs11.TokenInfo{
		// PKCS#11 descriptor fields are space padded.
		Label:          "vault           ",
		ManufacturerID: "ACME",
		Model:          "HSM2",
		SerialNumber:   "123456",
	}

	tests := []struct {
		name  string
		uri   string
		match bool
	}{
		{"label match", "pkcs11:token=vault", true},
		{"label mismatch", "pkcs11:token=other", false},
		{"all attributes match", "pkcs11:token=vault;manufacturer=ACME;model=HSM2;serial=123456", true},
		{"serial mismatch", "pkcs11:token=vault;serial=999999", false},
		{"match-anything reference", "pkcs11:", true},
		{"slot-id match", "pkcs11:slot-id=7", true},
		{"slot-id mismatch", "pkcs11:slot-id=8", false},
		{"object attrs do not affect token match", "pkcs11:token=vault;object=foo;id=%aa", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseReference(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.match, ref.MatchesToken(7, info))
		})
	}
}
