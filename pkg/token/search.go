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
	"errors"
	"fmt"
	"time"

	"github.com/miekg/pkcs11"
)

// CandidateHandler is invoked once per present token that structurally
// matches the reference driving a search. Returning nil stops the search
// with success. Returning ErrTokenNotAvailable (possibly wrapped) lets
// the search continue with the next candidate. Any other error aborts
// the search immediately.
type CandidateHandler interface {
	HandleToken(api API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error
}

// CandidateFunc adapts a function to the CandidateHandler interface.
type CandidateFunc func(api API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error

// HandleToken calls f.
func (f CandidateFunc) HandleToken(api API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
	return f(api, session, slotID, info)
}

// Search enumerates the present tokens of all slots, filters them by
// structural match against ref, and invokes handler once per match with
// an open read-only session. The session is closed after the handler
// returns.
//
// The search stops at the first handler success or hard failure. Soft
// failures (ErrTokenNotAvailable) are remembered and the next candidate
// is tried; if every candidate failed softly the last soft error is
// returned so callers can apply their own retry policy. If no present
// token matches at all, ErrTokenNotFound is returned.
func Search(api API, ref *Reference, handler CandidateHandler) error {
	slots, err := api.GetSlotList(true)
	if err != nil {
		return fmt.Errorf("token: failed to get slot list: %w", err)
	}

	var soft error
	for _, slotID := range slots {
		info, err := api.GetTokenInfo(slotID)
		if err != nil {
			// Token yanked between enumeration and inspection.
			continue
		}
		if !ref.MatchesToken(slotID, info) {
			continue
		}
		session, err := api.OpenSession(slotID, pkcs11.CKF_SERIAL_SESSION)
		if err != nil {
			soft = fmt.Errorf("%w: failed to open session on slot %d: %v",
				ErrTokenNotAvailable, slotID, err)
			continue
		}

		err = handler.HandleToken(api, session, slotID, info)
		api.CloseSession(session)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTokenNotAvailable) {
			soft = err
			continue
		}
		return err
	}

	if soft != nil {
		return soft
	}
	return ErrTokenNotFound
}

// SearchUntil repeatedly runs Search until it returns something other
// than ErrTokenNotFound or ErrTokenNotAvailable, or the deadline passes.
// It polls at the given interval, waiting for a matching token to be
// plugged in or become ready. A zero deadline means a single pass.
func SearchUntil(api API, ref *Reference, handler CandidateHandler, deadline time.Time, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		err := Search(api, ref, handler)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTokenNotFound) && !errors.Is(err, ErrTokenNotAvailable) {
			return err
		}
		if deadline.IsZero() || !time.Now().Add(interval).Before(deadline) {
			if !deadline.IsZero() && time.Now().After(deadline) {
				return fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return err
		}
		time.Sleep(interval)
	}
}
