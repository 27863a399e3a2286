/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"

	"github.com/dbn-network/didcomm-core/pkg/doc/did"
)

// MockClient is an in-memory Client double, in the style of the teacher's
// mock/kms packages: it fabricates peer DIDs and DID Documents in-process
// and "encrypts" by wrapping the plaintext in a JSON envelope tagged with
// the recipient and sender DIDs, rather than performing real cryptography (delegated to the real KMS in
// production, out of this core's scope per spec §1).
type MockClient struct {
	mu        sync.Mutex
	docs      map[string]*did.Doc
	revoked   map[string]bool
	CreateErr error
	ResolveErr error
	EncryptErr error
	DecryptErr error
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		docs:    map[string]*did.Doc{},
		revoked: map[string]bool{},
	}
}

// SeedDID registers a pre-existing DID Document as if it had been resolved
// from the wider DID network, for tests that act as "the peer".
func (m *MockClient) SeedDID(doc *did.Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[doc.ID] = doc
}

// CreateDID implements Client.
func (m *MockClient) CreateDID(_ context.Context, method string, opts CreateDIDOptions) (*CreateDIDResult, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	methodID := base58.Encode(uuid.New().NodeID())
	didValue := fmt.Sprintf("did:%s:%s", method, methodID)

	doc := &did.Doc{ID: didValue, Service: opts.Services}
	m.docs[didValue] = doc

	return &CreateDIDResult{
		ID:       uuid.New().String(),
		DID:      didValue,
		Method:   method,
		MethodID: methodID,
		Status:   "finished",
	}, nil
}

// GetDIDDocument implements Client.
func (m *MockClient) GetDIDDocument(_ context.Context, didID string) (*did.Doc, error) {
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[didID]
	if !ok {
		return nil, fmt.Errorf("did document not found for %s", didID)
	}

	return doc, nil
}

// RevokeDID implements Client.
func (m *MockClient) RevokeDID(_ context.Context, didID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revoked[didID] = true

	return nil
}

// Revoked reports whether didID was revoked.
func (m *MockClient) Revoked(didID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.revoked[didID]
}

type mockEnvelope struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Plaintext []byte `json:"plaintext"`
}

// Encrypt implements Client with a reversible stand-in envelope.
func (m *MockClient) Encrypt(_ context.Context, req EncryptRequest) (*EncryptResult, error) {
	if m.EncryptErr != nil {
		return nil, m.EncryptErr
	}

	env := mockEnvelope{To: req.To, From: req.From, Plaintext: req.Plaintext}

	jwe, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	return &EncryptResult{JWE: jwe, KID: req.To + "#1", From: req.From}, nil
}

// Decrypt implements Client, the inverse of Encrypt.
func (m *MockClient) Decrypt(_ context.Context, req DecryptRequest) (*DecryptResult, error) {
	if m.DecryptErr != nil {
		return nil, m.DecryptErr
	}

	var env mockEnvelope

	if err := json.Unmarshal(req.JWE, &env); err != nil {
		return nil, fmt.Errorf("decrypt: malformed envelope: %w", err)
	}

	if env.To != req.DID {
		return nil, fmt.Errorf("decrypt: envelope addressed to %s, not %s", env.To, req.DID)
	}

	return &DecryptResult{
		Plaintext: env.Plaintext,
		KID:       env.From + "#1",
		Header:    map[string]interface{}{"from": env.From, "to": env.To},
	}, nil
}
