/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/doc/did"
)

var logger = log.New("kms")

// TransientError marks a KMS failure as retryable. Wrap an underlying
// Client's error in this when it is known to be transient (a timeout, a
// 5xx from the resolver) so Adapter retries it; anything else is treated
// as permanent and returned immediately, per spec §4.6 ("the core treats
// both alike except where noted").
type TransientError struct {
	cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient KMS error: %v", e.cause) }
func (e *TransientError) Unwrap() error { return e.cause }

// Transient wraps err as a TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{cause: err}
}

// Adapter wraps a Client with the retry-with-constant-backoff policy the
// teacher's dispatcher/inbound handler applies to DID lookups
// (backoff.Retry over backoff.NewConstantBackOff), plus a hard per-call
// timeout (spec §5).
type Adapter struct {
	client Client
	cfg    *config.Config
}

// NewAdapter builds an Adapter around the given Client.
func NewAdapter(client Client, cfg *config.Config) *Adapter {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Adapter{client: client, cfg: cfg}
}

func (a *Adapter) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.cfg.KMSTimeout)
}

func (a *Adapter) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.cfg.KMSRetryBackoff), a.cfg.KMSMaxRetries), ctx)

	var lastPermanent error

	err := backoff.Retry(func() error {
		callCtx, cancel := a.withTimeout(ctx)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}

		var transient *TransientError
		if errors.As(err, &transient) {
			logger.Warnf("%s: transient failure, retrying: %v", op, transient.Unwrap())
			return transient.Unwrap()
		}

		lastPermanent = err

		return backoff.Permanent(err)
	}, policy)

	if lastPermanent != nil {
		return lastPermanent
	}

	return err
}

// CreateDID creates a peer DID via the underlying Client.
func (a *Adapter) CreateDID(ctx context.Context, method string, opts CreateDIDOptions) (*CreateDIDResult, error) {
	var result *CreateDIDResult

	err := a.retry(ctx, "CreateDID", func(callCtx context.Context) error {
		res, err := a.client.CreateDID(callCtx, method, opts)
		if err != nil {
			return err
		}

		result = res

		return nil
	})

	return result, err
}

// GetDIDDocument resolves a peer's DID Document via the underlying Client.
func (a *Adapter) GetDIDDocument(ctx context.Context, didID string) (*did.Doc, error) {
	var result *did.Doc

	err := a.retry(ctx, "GetDIDDocument", func(callCtx context.Context) error {
		res, err := a.client.GetDIDDocument(callCtx, didID)
		if err != nil {
			return err
		}

		result = res

		return nil
	})

	return result, err
}

// RevokeDID revokes a DID via the underlying Client. Callers that need the
// best-effort, non-fatal semantics of ConnectionManager.deleteConnection
// (spec §4.1) should log rather than propagate this error.
func (a *Adapter) RevokeDID(ctx context.Context, didID string) error {
	return a.retry(ctx, "RevokeDID", func(callCtx context.Context) error {
		return a.client.RevokeDID(callCtx, didID)
	})
}

// Encrypt produces a JWE via the underlying Client.
func (a *Adapter) Encrypt(ctx context.Context, req EncryptRequest) (*EncryptResult, error) {
	var result *EncryptResult

	err := a.retry(ctx, "Encrypt", func(callCtx context.Context) error {
		res, err := a.client.Encrypt(callCtx, req)
		if err != nil {
			return err
		}

		result = res

		return nil
	})

	return result, err
}

// Decrypt opens a JWE via the underlying Client.
func (a *Adapter) Decrypt(ctx context.Context, req DecryptRequest) (*DecryptResult, error) {
	var result *DecryptResult

	err := a.retry(ctx, "Decrypt", func(callCtx context.Context) error {
		res, err := a.client.Decrypt(callCtx, req)
		if err != nil {
			return err
		}

		result = res

		return nil
	})

	return result, err
}
