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

package token_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jeremyhahn/go-volumekey/pkg/token"
	"github.com/jeremyhahn/go-volumekey/pkg/token/tokentest"
	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRef(t *testing.T, uri string) *token.Reference {
	t.Helper()
	ref, err := token.ParseReference(uri)
	require.NoError(t, err)
	return ref
}

func TestSearch_InvokesHandlerPerMatch(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("other", "0000"))
	fake.AddSlot(1, tokentest.NewToken("vault", "123456"))
	fake.AddSlot(2, nil) // empty slot

	var visited []uint
	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		visited = append(visited, slotID)
		return nil
	})

	err := token.Search(fake, mustRef(t, "pkcs11:token=vault"), handler)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, visited, "only the matching token should be visited")
}

func TestSearch_NoMatchingToken(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("other", "0000"))

	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		t.Fatal("handler must not run for non-matching tokens")
		return nil
	})

	err := token.Search(fake, mustRef(t, "pkcs11:token=vault"), handler)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}

func TestSearch_ContinuesPastSoftFailure(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("vault", "123456"))
	fake.AddSlot(1, tokentest.NewToken("vault", "123456"))

	var calls int
	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: still warming up", token.ErrTokenNotAvailable)
		}
		return nil
	})

	err := token.Search(fake, mustRef(t, "pkcs11:token=vault"), handler)
	require.NoError(t, err, "soft failure on the first candidate must not abort the search")
	assert.Equal(t, 2, calls)
}

func TestSearch_AllCandidatesSoft(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("vault", "123456"))
	fake.AddSlot(1, tokentest.NewToken("vault", "123456"))

	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		return token.ErrTokenNotAvailable
	})

	err := token.Search(fake, mustRef(t, "pkcs11:token=vault"), handler)
	assert.ErrorIs(t, err, token.ErrTokenNotAvailable)
}

func TestSearch_HardFailureAborts(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("vault", "123456"))
	fake.AddSlot(1, tokentest.NewToken("vault", "123456"))

	hard := errors.New("decrypt blew up")
	var calls int
	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		calls++
		return hard
	})

	err := token.Search(fake, mustRef(t, "pkcs11:token=vault"), handler)
	assert.ErrorIs(t, err, hard)
	assert.Equal(t, 1, calls, "hard failure must abort before the second candidate")
}

func TestSearchUntil_DeadlineExpiry(t *testing.T) {
	fake := tokentest.NewFake() // no tokens at all

	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		return nil
	})

	deadline := time.Now().Add(30 * time.Millisecond)
	err := token.SearchUntil(fake, mustRef(t, "pkcs11:token=vault"), handler, deadline, 10*time.Millisecond)
	require.Error(t, err)
	if !errors.Is(err, token.ErrTimeout) && !errors.Is(err, token.ErrTokenNotFound) {
		t.Fatalf("SearchUntil() error = %v, want timeout or not-found", err)
	}
}

func TestSearchUntil_SinglePassOnZeroDeadline(t *testing.T) {
	fake := tokentest.NewFake()
	fake.AddSlot(0, tokentest.NewToken("vault", "123456"))

	var calls int
	handler := token.CandidateFunc(func(api token.API, session pkcs11.SessionHandle, slotID uint, info pkcs11.TokenInfo) error {
		calls++
		return token.ErrTokenNotAvailable
	})

	err := token.SearchUntil(fake, mustRef(t, "pkcs11:token=vault"), handler, time.Time{}, time.Millisecond)
	assert.ErrorIs(t, err, token.ErrTokenNotAvailable)
	assert.Equal(t, 1, calls)
}
