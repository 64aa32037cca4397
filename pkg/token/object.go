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

// FindPrivateKey locates the private key object on the token matching
// the reference's object selection criteria (CKA_LABEL from the URI's
// object attribute, CKA_ID from its id attribute). Exactly one object
// must match: absence and ambiguity are both hard errors, since
// decrypting with the wrong key would yield garbage instead of failing.
func FindPrivateKey(api API, session pkcs11.SessionHandle, ref *Reference) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
	}
	if label, ok := ref.ObjectLabel(); ok {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, label))
	}
	if id, ok := ref.ObjectID(); ok {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_ID, id))
	}

	if err := api.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("token: failed to initialize key search: %w", err)
	}

	objects, _, err := api.FindObjects(session, 2)
	if ferr := api.FindObjectsFinal(session); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, fmt.Errorf("token: failed to search for private key: %w", err)
	}

	switch len(objects) {
	case 0:
		return 0, ErrKeyObjectNotFound
	case 1:
		return objects[0], nil
	default:
		return 0, fmt.Errorf("%w: narrow the URI with object= or id=", ErrKeyObjectAmbiguous)
	}
}
