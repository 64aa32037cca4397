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

package password

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
)

var (
	// ErrPromptTimeout is returned when the deadline expires before the
	// user entered a PIN.
	ErrPromptTimeout = errors.New("password: PIN prompt timed out")

	// ErrNoTerminal is returned when interactive prompting is requested
	// but no controlling terminal is available.
	ErrNoTerminal = errors.New("password: no controlling terminal for PIN prompt")
)

// PromptRequest describes a single PIN request to a Prompter.
type PromptRequest struct {
	// FriendlyName identifies the volume being unlocked, for display.
	FriendlyName string

	// TokenLabel is the label of the token asking for the PIN.
	TokenLabel string

	// Icon categorizes the request for credential agents ("drive-harddisk").
	Icon string

	// KeyName tags the credential kind for caching agents ("pkcs11-pin").
	KeyName string

	// Deadline is the absolute time after which prompting must give up.
	// The zero value means no deadline.
	Deadline time.Time

	// Retry is set when a previous attempt was rejected by the token.
	Retry bool
}

// Prompter obtains a PIN interactively. Implementations must not block
// past the request deadline.
type Prompter interface {
	PromptPIN(req *PromptRequest) (Password, error)
}

// TerminalPrompter reads a PIN from the controlling terminal with echo
// disabled.
type TerminalPrompter struct{}

// NewTerminalPrompter returns a Prompter backed by /dev/tty.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// PromptPIN asks for the PIN on the controlling terminal. The read runs
// in a separate goroutine so the deadline is honored even while the
// terminal read blocks.
func (t *TerminalPrompter) PromptPIN(req *PromptRequest) (Password, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTerminal, err)
	}
	defer tty.Close()

	msg := fmt.Sprintf("Please enter PIN for security token '%s' to unlock %s: ",
		req.TokenLabel, req.FriendlyName)
	if req.Retry {
		msg = fmt.Sprintf("Invalid PIN, please try again for security token '%s': ",
			req.TokenLabel)
	}
	if _, err := tty.WriteString(msg); err != nil {
		return nil, fmt.Errorf("password: failed to write PIN prompt: %w", err)
	}

	type result struct {
		pin []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pin, err := term.ReadPassword(int(tty.Fd()))
		ch <- result{pin: pin, err: err}
	}()

	var timeout <-chan time.Time
	if !req.Deadline.IsZero() {
		timer := time.NewTimer(time.Until(req.Deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		tty.WriteString("\n")
		if r.err != nil {
			return nil, fmt.Errorf("password: failed to read PIN: %w", r.err)
		}
		return NewClearPassword(r.pin)
	case <-timeout:
		tty.WriteString("\n")
		return nil, ErrPromptTimeout
	}
}

var _ Prompter = (*TerminalPrompter)(nil)

// StaticPrompter returns a fixed PIN on every request. It backs
// non-interactive callers that already hold the credential.
type StaticPrompter struct {
	PIN string
}

// PromptPIN returns the configured PIN without any terminal interaction.
func (s *StaticPrompter) PromptPIN(req *PromptRequest) (Password, error) {
	if !req.Deadline.IsZero() && time.Now().After(req.Deadline) {
		return nil, ErrPromptTimeout
	}
	return NewClearPasswordFromString(s.PIN)
}

var _ Prompter = (*StaticPrompter)(nil)
