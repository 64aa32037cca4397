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

// Package tokentest provides an in-memory PKCS#11 token simulator for
// tests. The simulator implements the token.API interface with real RSA
// decryption so round-trip tests exercise the same code paths as
// hardware tokens.
package tokentest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"sync"

	"github.com/miekg/pkcs11"
)

// Key is a private key object stored on a simulated token.
type Key struct {
	Label   string
	ID      []byte
	Private *rsa.PrivateKey
}

// Token is one simulated token occupying a slot.
type Token struct {
	Info pkcs11.TokenInfo
	PIN  string
	Keys []*Key

	// LoginErr overrides login behavior when non-nil.
	LoginErr error

	// RNG is returned by GenerateRandom. When nil, GenerateRandom fails
	// with CKR_RANDOM_NO_RNG, simulating tokens without an RNG.
	RNG []byte

	// LoginAttempts counts Login calls against this token.
	LoginAttempts int
}

// NewToken returns a simulated token with a label, a PIN and login required.
func NewToken(label, pin string) *Token {
	return &Token{
		Info: pkcs11.TokenInfo{
			Label:          label,
			ManufacturerID: "go-volumekey",
			Model:          "fake",
			SerialNumber:   "0000000000000001",
			Flags:          pkcs11.CKF_LOGIN_REQUIRED | pkcs11.CKF_TOKEN_INITIALIZED,
			MaxPinLen:      64,
			MinPinLen:      4,
		},
		PIN: pin,
	}
}

// AddKey generates an RSA private key object on the token and returns it.
func (t *Token) AddKey(label string, id []byte, bits int) (*Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	k := &Key{Label: label, ID: id, Private: priv}
	t.Keys = append(t.Keys, k)
	return k, nil
}

// Wrap encrypts plaintext under the key's public half with
// RSAES-PKCS#1 v1.5, producing the ciphertext a token enrollment would
// store.
func (k *Key) Wrap(plaintext []byte) ([]byte, error) {
	return rsa.EncryptPKCS1v15(rand.Reader, &k.Private.PublicKey, plaintext)
}

type sessionState struct {
	slotID     uint
	loggedIn   bool
	findQueue  []pkcs11.ObjectHandle
	finding    bool
	decryptKey *rsa.PrivateKey
}

// Fake is an in-memory implementation of the token.API interface.
type Fake struct {
	mu       sync.Mutex
	tokens   map[uint]*Token
	slots    []uint
	sessions map[pkcs11.SessionHandle]*sessionState
	next     pkcs11.SessionHandle
}

// NewFake returns an empty simulator. Add tokens with AddSlot.
func NewFake() *Fake {
	return &Fake{
		tokens:   make(map[uint]*Token),
		sessions: make(map[pkcs11.SessionHandle]*sessionState),
	}
}

// AddSlot places a token in the given slot. A nil token models an empty
// slot that is enumerated but has no token present.
func (f *Fake) AddSlot(slotID uint, t *Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slotID)
	if t != nil {
		f.tokens[slotID] = t
	}
}

// GetSlotList returns the configured slots. With tokenPresent set, empty
// slots are omitted.
func (f *Fake) GetSlotList(tokenPresent bool) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !tokenPresent {
		return append([]uint(nil), f.slots...), nil
	}
	var present []uint
	for _, id := range f.slots {
		if _, ok := f.tokens[id]; ok {
			present = append(present, id)
		}
	}
	return present, nil
}

// GetTokenInfo returns the descriptor of the token in the slot.
func (f *Fake) GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[slotID]
	if !ok {
		return pkcs11.TokenInfo{}, pkcs11.Error(pkcs11.CKR_TOKEN_NOT_PRESENT)
	}
	return t.Info, nil
}

// OpenSession opens a session against the token in the slot.
func (f *Fake) OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[slotID]; !ok {
		return 0, pkcs11.Error(pkcs11.CKR_TOKEN_NOT_PRESENT)
	}
	f.next++
	sh := f.next
	f.sessions[sh] = &sessionState{slotID: slotID}
	return sh, nil
}

// CloseSession discards the session state.
func (f *Fake) CloseSession(sh pkcs11.SessionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sh]; !ok {
		return pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	delete(f.sessions, sh)
	return nil
}

// Login authenticates the session with the token's PIN.
func (f *Fake) Login(sh pkcs11.SessionHandle, userType uint, pin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	t := f.tokens[s.slotID]
	t.LoginAttempts++
	if t.LoginErr != nil {
		return t.LoginErr
	}
	if s.loggedIn {
		return pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN)
	}
	if pin != t.PIN {
		return pkcs11.Error(pkcs11.CKR_PIN_INCORRECT)
	}
	s.loggedIn = true
	return nil
}

// GenerateRandom returns the token's configured RNG bytes.
func (f *Fake) GenerateRandom(sh pkcs11.SessionHandle, length int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return nil, pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	t := f.tokens[s.slotID]
	if t.RNG == nil {
		return nil, pkcs11.Error(pkcs11.CKR_RANDOM_NO_RNG)
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = t.RNG[i%len(t.RNG)]
	}
	return out, nil
}

// FindObjectsInit matches the token's key objects against the template.
func (f *Fake) FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	if s.finding {
		return pkcs11.Error(pkcs11.CKR_OPERATION_ACTIVE)
	}
	t := f.tokens[s.slotID]

	var wantLabel []byte
	var wantID []byte
	for _, a := range temp {
		switch a.Type {
		case pkcs11.CKA_LABEL:
			wantLabel = a.Value
		case pkcs11.CKA_ID:
			wantID = a.Value
		}
	}

	s.findQueue = nil
	for i, k := range t.Keys {
		if wantLabel != nil && k.Label != string(wantLabel) {
			continue
		}
		if wantID != nil && !bytes.Equal(k.ID, wantID) {
			continue
		}
		s.findQueue = append(s.findQueue, objectHandle(s.slotID, i))
	}
	s.finding = true
	return nil
}

// FindObjects drains up to max handles from the pending match queue.
func (f *Fake) FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return nil, false, pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	if !s.finding {
		return nil, false, pkcs11.Error(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	n := max
	if n > len(s.findQueue) {
		n = len(s.findQueue)
	}
	out := s.findQueue[:n]
	s.findQueue = s.findQueue[n:]
	return out, len(s.findQueue) > 0, nil
}

// FindObjectsFinal ends the object search.
func (f *Fake) FindObjectsFinal(sh pkcs11.SessionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	s.finding = false
	s.findQueue = nil
	return nil
}

// DecryptInit prepares decryption with the referenced key object.
func (f *Fake) DecryptInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	t := f.tokens[s.slotID]
	if t.Info.Flags&pkcs11.CKF_LOGIN_REQUIRED != 0 && !s.loggedIn {
		return pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	if len(m) != 1 || m[0].Mechanism != pkcs11.CKM_RSA_PKCS {
		return pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID)
	}
	slotID, idx := splitHandle(o)
	if slotID != s.slotID || idx >= len(t.Keys) {
		return pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	s.decryptKey = t.Keys[idx].Private
	return nil
}

// Decrypt performs RSAES-PKCS#1 v1.5 decryption with the prepared key.
func (f *Fake) Decrypt(sh pkcs11.SessionHandle, cipher []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sh]
	if !ok {
		return nil, pkcs11.Error(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	if s.decryptKey == nil {
		return nil, pkcs11.Error(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	key := s.decryptKey
	s.decryptKey = nil
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, cipher)
	if err != nil {
		return nil, pkcs11.Error(pkcs11.CKR_ENCRYPTED_DATA_INVALID)
	}
	return plaintext, nil
}

// objectHandle packs a slot and key index into a stable handle.
func objectHandle(slotID uint, idx int) pkcs11.ObjectHandle {
	return pkcs11.ObjectHandle(slotID*1000 + uint(idx) + 1)
}

func splitHandle(o pkcs11.ObjectHandle) (uint, int) {
	v := uint(o) - 1
	return v / 1000, int(v % 1000)
}
