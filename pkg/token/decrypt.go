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

	"github.com/miekg/pkcs11"
)

// Decrypt submits ciphertext to the private key object's decrypt
// operation and returns the plaintext. Volume keys are wrapped with
// RSAES-PKCS#1 v1.5, the mechanism every PKCS#11 token with RSA
// decryption capability supports.
func Decrypt(api API, session pkcs11.SessionHandle, object pkcs11.ObjectHandle, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecryptionFailed)
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := api.DecryptInit(session, mech, object); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize decryption: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := api.Decrypt(session, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: token returned empty plaintext", ErrDecryptionFailed)
	}
	return plaintext, nil
}
