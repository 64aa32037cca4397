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

// Package unlock recovers a volume's symmetric key from a PKCS#11
// security token.
//
// The unlock protocol runs in two stages. A per-candidate session (the
// candidate handler passed to the token search) authenticates to one
// matching token, opportunistically harvests entropy from it, locates
// the private key object named by the reference, and decrypts the
// wrapped volume key with it. The orchestrator, DecryptKey, obtains the
// wrapped key from a KeySource, drives the search across all matching
// tokens, and hands the decrypted key to the caller.
package unlock

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-volumekey/internal/password"
	"github.com/jeremyhahn/go-volumekey/pkg/logging"
	"github.com/jeremyhahn/go-volumekey/pkg/metrics"
	"github.com/jeremyhahn/go-volumekey/pkg/token"
	"github.com/miekg/pkcs11"
)

// Options configures one unlock attempt.
type Options struct {
	// VolumeName is the volume's canonical name, used to attribute
	// socket key reads.
	VolumeName string

	// FriendlyName identifies the volume in PIN prompts ("data on /dev/sda3").
	FriendlyName string

	// Deadline bounds interactive prompting and token waiting. The zero
	// value means no deadline and a single search pass.
	Deadline time.Time

	// PollInterval is how often the token search rescans while waiting
	// for a token to appear. Zero uses a default.
	PollInterval time.Duration

	// Prompter obtains the PIN interactively. Nil means non-interactive
	// operation; unlocking then relies on pin-value URIs or VOLUMEKEY_PIN.
	Prompter password.Prompter

	// Logger receives unlock progress. Nil uses the default logger.
	Logger *logging.Logger
}

// unlockContext is the transient per-attempt aggregate shared between
// the orchestrator and the candidate session. The encrypted buffer is
// read by every candidate; the decrypted buffer is written by the one
// that succeeds.
type unlockContext struct {
	friendlyName string
	deadline     time.Time
	encrypted    *KeyBuffer
	decrypted    *KeyBuffer
}

// release drops both buffers. Called on every exit path; a decrypted
// buffer already handed off with Take is unaffected.
func (c *unlockContext) release() {
	c.encrypted.Release()
	c.decrypted.Release()
}

// tokenSession is the per-candidate-token callback state. HandleToken is
// invoked by the search once per matching token.
type tokenSession struct {
	ref      *Reference
	ctx      *unlockContext
	prompter password.Prompter
	log      *logging.Logger
}

// Reference is re-exported for callers that only import this package.
type Reference = token.Reference

// ParseReference parses and validates a PKCS#11 URI.
func ParseReference(s string) (*Reference, error) {
	return token.ParseReference(s)
}

// HandleToken runs the login, entropy, locate, decrypt sequence against
// one candidate token. On success the decrypted key is stored in the
// unlock context and the search stops.
func (s *tokenSession) HandleToken(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
	err := token.Login(api, session, slotID, info, s.ref, token.LoginOptions{
		FriendlyName: s.ctx.friendlyName,
		Deadline:     s.ctx.deadline,
		Prompter:     s.prompter,
	})
	if err != nil {
		return err
	}

	// Unlocking typically runs during early boot where entropy is
	// scarce; the token may have some to spare. Never fatal.
	if err := token.HarvestEntropy(api, session); err != nil {
		s.log.Debug("entropy harvest from token failed, ignoring", "error", err)
	}

	object, err := token.FindPrivateKey(api, session, s.ref)
	if err != nil {
		return err
	}

	plaintext, err := token.Decrypt(api, session, object, s.ctx.encrypted.Bytes())
	if err != nil {
		return err
	}

	s.ctx.decrypted = NewOwnedBuffer(plaintext)
	return nil
}

// DecryptKey recovers the volume key wrapped by source using a private
// key held on a token matching ref. It searches all present matching
// tokens, authenticating to each candidate in turn, until one decrypts
// the wrapped key or the search fails definitively. On success the
// returned key is owned by the caller; on failure all key material
// handled by the attempt has been zeroized.
func DecryptKey(api token.API, ref *Reference, source KeySource, opts Options) ([]byte, error) {
	start := time.Now()
	key, err := decryptKey(api, ref, source, opts)
	metrics.RecordUnlock(errorKind(err), time.Since(start))
	return key, err
}

func decryptKey(api token.API, ref *Reference, source KeySource, opts Options) ([]byte, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: nil token reference", ErrInvalidKeySource)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no key source given", ErrInvalidKeySource)
	}
	log := opts.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	encrypted, err := source.resolve(opts.VolumeName)
	if err != nil {
		return nil, err
	}

	uctx := &unlockContext{
		friendlyName: opts.FriendlyName,
		deadline:     opts.Deadline,
		encrypted:    encrypted,
	}
	defer uctx.release()

	handler := &tokenSession{
		ref:      ref,
		ctx:      uctx,
		prompter: opts.Prompter,
		log:      log,
	}

	log.Debug("searching for token", "uri", ref.String(), "volume", opts.VolumeName)
	if err := token.SearchUntil(api, ref, handler, opts.Deadline, opts.PollInterval); err != nil {
		return nil, err
	}
	if uctx.decrypted == nil {
		return nil, fmt.Errorf("%w: search finished without a decrypted key", token.ErrTokenNotFound)
	}

	log.Info("volume key decrypted by security token",
		"volume", opts.VolumeName, "uri", ref.String())
	return uctx.decrypted.Take(), nil
}

// errorKind maps an unlock failure onto a stable metrics label. Empty
// for success.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidKeySource):
		return "invalid_key_source"
	case errors.Is(err, ErrKeyRead):
		return "key_read"
	case errors.Is(err, token.ErrTimeout):
		return "timeout"
	case errors.Is(err, token.ErrPINLocked):
		return "pin_locked"
	case errors.Is(err, token.ErrPINIncorrect):
		return "pin_incorrect"
	case errors.Is(err, token.ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, token.ErrKeyObjectAmbiguous):
		return "key_object_ambiguous"
	case errors.Is(err, token.ErrKeyObjectNotFound):
		return "key_object_not_found"
	case errors.Is(err, token.ErrDecryptionFailed):
		return "decryption_failed"
	case errors.Is(err, token.ErrTokenNotAvailable):
		return "token_not_available"
	case errors.Is(err, token.ErrTokenNotFound):
		return "token_not_found"
	default:
		return "other"
	}
}
