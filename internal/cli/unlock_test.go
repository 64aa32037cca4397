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

package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-volumekey/pkg/unlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetUnlockFlags() {
	unlockFlags.volume = "cryptvol"
	unlockFlags.name = ""
	unlockFlags.metadata = ""
	unlockFlags.uri = ""
	unlockFlags.keyFile = ""
	unlockFlags.keyOffset = 0
	unlockFlags.keySize = 0
	unlockFlags.headless = true
}

func TestResolveUnlockInputsExplicit(t *testing.T) {
	resetUnlockFlags()
	unlockFlags.uri = "pkcs11:token=boot;object=luks-key"
	unlockFlags.keyFile = "/etc/cryptvol.wrapped"
	unlockFlags.keyOffset = 16

	ref, source, err := resolveUnlockInputs()
	require.NoError(t, err)
	assert.Equal(t, "pkcs11:token=boot;object=luks-key", ref.String())

	fileSource, ok := source.(unlock.FileSource)
	require.True(t, ok)
	assert.Equal(t, "/etc/cryptvol.wrapped", fileSource.Path)
	assert.Equal(t, uint64(16), fileSource.Offset)
}

func TestResolveUnlockInputsMetadata(t *testing.T) {
	resetUnlockFlags()

	wrapped := base64.StdEncoding.EncodeToString([]byte("wrapped"))
	blob := fmt.Sprintf(`{"tokens":{"0":{"type":"volumekey-pkcs11","keyslots":["0"],"pkcs11-uri":"pkcs11:token=boot;object=luks-key","pkcs11-key":%q}}}`, wrapped)
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))

	unlockFlags.metadata = path
	ref, source, err := resolveUnlockInputs()
	require.NoError(t, err)
	assert.Equal(t, "pkcs11:token=boot;object=luks-key", ref.String())

	literal, ok := source.(unlock.LiteralSource)
	require.True(t, ok)
	assert.Equal(t, []byte("wrapped"), literal.Data)
}

func TestResolveUnlockInputsConflicts(t *testing.T) {
	resetUnlockFlags()
	unlockFlags.metadata = "/run/metadata.json"
	unlockFlags.uri = "pkcs11:token=boot"
	_, _, err := resolveUnlockInputs()
	assert.Error(t, err)

	resetUnlockFlags()
	_, _, err = resolveUnlockInputs()
	assert.Error(t, err, "neither metadata nor uri given")

	resetUnlockFlags()
	unlockFlags.uri = "pkcs11:token=boot"
	_, _, err = resolveUnlockInputs()
	assert.Error(t, err, "uri without key file")
}
