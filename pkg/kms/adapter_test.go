/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/config"
)

type flakyClient struct {
	*MockClient
	failures int
	calls    int
}

func (f *flakyClient) CreateDID(ctx context.Context, method string, opts CreateDIDOptions) (*CreateDIDResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, Transient(errors.New("upstream unavailable"))
	}

	return f.MockClient.CreateDID(ctx, method, opts)
}

func TestAdapterRetriesTransientFailures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.KMSRetryBackoff = time.Millisecond
	cfg.KMSMaxRetries = 5

	client := &flakyClient{MockClient: NewMockClient(), failures: 2}
	adapter := NewAdapter(client, cfg)

	result, err := adapter.CreateDID(context.Background(), "peer", CreateDIDOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 3, client.calls)
}

func TestAdapterDoesNotRetryPermanentFailures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.KMSRetryBackoff = time.Millisecond

	client := &flakyClient{MockClient: NewMockClient()}
	client.MockClient.CreateErr = errors.New("malformed request")
	adapter := NewAdapter(client, cfg)

	_, err := adapter.CreateDID(context.Background(), "peer", CreateDIDOptions{})
	require.Error(t, err)
	require.Equal(t, 1, client.calls)
}

func TestAdapterGivesUpAfterMaxRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.KMSRetryBackoff = time.Millisecond
	cfg.KMSMaxRetries = 2

	client := &flakyClient{MockClient: NewMockClient(), failures: 100}
	adapter := NewAdapter(client, cfg)

	_, err := adapter.CreateDID(context.Background(), "peer", CreateDIDOptions{})
	require.Error(t, err)
	require.Equal(t, 3, client.calls) // initial + 2 retries
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	adapter := NewAdapter(NewMockClient(), config.DefaultConfig())

	enc, err := adapter.Encrypt(context.Background(), EncryptRequest{
		To: "did:peer:bob", From: "did:peer:alice", Plaintext: []byte(`{"hello":"world"}`),
	})
	require.NoError(t, err)

	dec, err := adapter.Decrypt(context.Background(), DecryptRequest{DID: "did:peer:bob", JWE: enc.JWE})
	require.NoError(t, err)
	require.Equal(t, `{"hello":"world"}`, string(dec.Plaintext))
}
