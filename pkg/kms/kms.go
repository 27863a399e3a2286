/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms adapts the core to the external cryptographic DID
// resolution/encryption service named "KMS" by the spec (§1, §4.6). The
// core never performs DID resolution, key management, or encryption
// itself — every cryptographic primitive is delegated to a Client
// implementation this package wraps with retry and timeout behavior.
package kms

import (
	"context"
	"time"

	"github.com/dbn-network/didcomm-core/pkg/doc/did"
)

// CreateDIDResult is the result of creating a DID via the KMS (spec §4.6).
type CreateDIDResult struct {
	ID       string
	DID      string
	Method   string
	MethodID string
	Status   string
	Metadata map[string]interface{}
}

// EncryptRequest is the input to Client.Encrypt.
type EncryptRequest struct {
	To        string
	From      string
	Plaintext []byte
}

// EncryptResult is the output of Client.Encrypt: a JWE envelope.
type EncryptResult struct {
	JWE  []byte
	KID  string
	From string
}

// DecryptRequest is the input to Client.Decrypt.
type DecryptRequest struct {
	DID string
	JWE []byte
}

// DecryptResult is the output of Client.Decrypt.
type DecryptResult struct {
	Plaintext []byte
	Header    map[string]interface{}
	KID       string
}

// CreateDIDOptions configures peer-DID creation (spec §4.1 step 2: a
// "peer" DID with a DIDCommMessaging service at the local endpoint).
type CreateDIDOptions struct {
	Services []did.Service
}

// Client is the boundary contract the core consumes from the external KMS
// collaborator (spec §4.6): createDID, getDIDDocument, revokeDID, encrypt,
// decrypt. Every operation is I/O-bound and may fail transiently or
// permanently; the core treats both alike except where Adapter's retry
// policy says otherwise.
type Client interface {
	CreateDID(ctx context.Context, method string, opts CreateDIDOptions) (*CreateDIDResult, error)
	GetDIDDocument(ctx context.Context, did string) (*did.Doc, error)
	RevokeDID(ctx context.Context, did string) error
	Encrypt(ctx context.Context, req EncryptRequest) (*EncryptResult, error)
	Decrypt(ctx context.Context, req DecryptRequest) (*DecryptResult, error)
}

// DefaultTimeout is the hard per-call deadline the spec imposes on every KMS
// operation (§5): 30 seconds, unless overridden by config.
const DefaultTimeout = 30 * time.Second
