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

	"github.com/jeremyhahn/go-volumekey/internal/password"
	"github.com/miekg/pkcs11"
)

const (
	// IconDiskUnlock categorizes PIN prompts issued while unlocking a volume.
	IconDiskUnlock = "drive-harddisk"

	// KeyNamePIN tags PKCS#11 PIN credentials for caching agents.
	KeyNamePIN = "pkcs11-pin"

	// defaultMaxPINAttempts bounds interactive PIN retries per token.
	defaultMaxPINAttempts = 3
)

// LoginOptions controls authentication against a candidate token.
type LoginOptions struct {
	// FriendlyName identifies the volume being unlocked in PIN prompts.
	FriendlyName string

	// Deadline is the absolute time after which interactive prompting
	// must not occur. The zero value means no deadline.
	Deadline time.Time

	// Prompter obtains the PIN interactively. When nil and no cached
	// credential is available, login fails softly so the caller can
	// retry once a credential source exists.
	Prompter password.Prompter

	// MaxAttempts bounds interactive PIN retries. Zero means 3.
	MaxAttempts int
}

// Login authenticates the open session against the token in the given
// slot. The PIN is taken from the first available source: the
// reference's pin-value attribute, the VOLUMEKEY_PIN environment
// variable, then interactive prompting. Tokens with a protected
// authentication path (pinpad) authenticate without a host-supplied PIN;
// tokens that do not require login are a no-op.
//
// A wrong PIN from a non-interactive source is a hard
// ErrPINIncorrect. A missing credential source is a soft
// ErrTokenNotAvailable. Deadline expiry surfaces as ErrTimeout.
func Login(api API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo, ref *Reference, opts LoginOptions) error {
	if info.Flags&pkcs11.CKF_LOGIN_REQUIRED == 0 {
		return nil
	}

	if info.Flags&pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH != 0 {
		// PIN is entered on the device itself.
		return classifyLoginError(api.Login(session, pkcs11.CKU_USER, ""))
	}

	if ref.HasPIN() {
		pin, err := ref.PIN()
		if err != nil {
			return fmt.Errorf("%w: failed to read PIN from URI: %v", ErrAuthenticationFailed, err)
		}
		return classifyLoginError(api.Login(session, pkcs11.CKU_USER, pin))
	}

	if p := password.FromEnv(); p != nil {
		defer p.Clear()
		pin, err := p.String()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return classifyLoginError(api.Login(session, pkcs11.CKU_USER, pin))
	}

	if opts.Prompter == nil {
		return fmt.Errorf("%w: PIN required but no credential source available", ErrTokenNotAvailable)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxPINAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !opts.Deadline.IsZero() && time.Now().After(opts.Deadline) {
			return fmt.Errorf("%w: while waiting for PIN", ErrTimeout)
		}

		p, err := opts.Prompter.PromptPIN(&password.PromptRequest{
			FriendlyName: opts.FriendlyName,
			TokenLabel:   trimPadding(info.Label),
			Icon:         IconDiskUnlock,
			KeyName:      KeyNamePIN,
			Deadline:     opts.Deadline,
			Retry:        attempt > 0,
		})
		if err != nil {
			if errors.Is(err, password.ErrPromptTimeout) {
				return fmt.Errorf("%w: while waiting for PIN", ErrTimeout)
			}
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}

		pin, err := p.String()
		if err != nil {
			p.Clear()
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		err = classifyLoginError(api.Login(session, pkcs11.CKU_USER, pin))
		p.Clear()
		if errors.Is(err, ErrPINIncorrect) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: after %d attempts", ErrPINIncorrect, maxAttempts)
}

// classifyLoginError maps PKCS#11 login return codes onto the package's
// error kinds so callers can tell retryable conditions from hard
// failures.
func classifyLoginError(err error) error {
	if err == nil {
		return nil
	}
	var rv pkcs11.Error
	if !errors.As(err, &rv) {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	switch rv {
	case pkcs11.CKR_OK, pkcs11.CKR_USER_ALREADY_LOGGED_IN:
		return nil
	case pkcs11.CKR_PIN_INCORRECT, pkcs11.CKR_PIN_INVALID, pkcs11.CKR_PIN_LEN_RANGE:
		return fmt.Errorf("%w: %v", ErrPINIncorrect, err)
	case pkcs11.CKR_PIN_LOCKED:
		return fmt.Errorf("%w: %v", ErrPINLocked, err)
	case pkcs11.CKR_TOKEN_NOT_PRESENT, pkcs11.CKR_TOKEN_NOT_RECOGNIZED, pkcs11.CKR_DEVICE_REMOVED:
		return fmt.Errorf("%w: %v", ErrTokenNotAvailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
}
