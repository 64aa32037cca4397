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

// entropyHarvestSize is how many bytes are pulled from the token's RNG
// per unlock attempt. Kept small since some devices limit C_GenerateRandom.
const entropyHarvestSize = 64

// HarvestEntropy pulls random bytes from the token's RNG and mixes them
// into the host entropy pool. Unlocking typically happens during early
// boot where entropy is scarce, and the token is already being talked to
// anyway. Tokens without an RNG return an error, which callers ignore:
// this is an optimization, never a correctness requirement.
func HarvestEntropy(api API, session pkcs11.SessionHandle) error {
	seed, err := api.GenerateRandom(session, entropyHarvestSize)
	if err != nil {
		return fmt.Errorf("token: failed to generate random bytes on token: %w", err)
	}
	if len(seed) == 0 {
		return fmt.Errorf("token: token returned no random bytes")
	}
	if err := seedEntropyPool(seed); err != nil {
		return fmt.Errorf("token: failed to seed entropy pool: %w", err)
	}
	return nil
}
