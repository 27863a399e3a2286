/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

func TestMessageRepositoryUpsertIsIdempotent(t *testing.T) {
	repo := NewInMemoryMessageRepository()
	ctx := context.Background()

	m := &service.MessageRecord{MessageID: "msg-1", Type: "https://didcomm.org/basicmessage/2.0/message", Direction: service.DirectionInbound}

	first, inserted, err := repo.Upsert(ctx, m)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := &service.MessageRecord{MessageID: "msg-1", Type: "different", Direction: service.DirectionInbound}
	second, inserted, err := repo.Upsert(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, m.Type, second.Type)
}

func TestMessageRepositorySearchMatchesTypeAndBody(t *testing.T) {
	repo := NewInMemoryMessageRepository()
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, &service.MessageRecord{
		MessageID: "msg-1",
		Type:      "https://didcomm.org/basicmessage/2.0/message",
		Body:      map[string]interface{}{"content": "hello world"},
	})
	require.NoError(t, err)

	_, _, err = repo.Upsert(ctx, &service.MessageRecord{MessageID: "msg-2", Type: "https://didcomm.org/trust-ping/2.0/ping"})
	require.NoError(t, err)

	results, err := repo.Search(ctx, "hello", Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, results.Total)
	require.Equal(t, "msg-1", results.Items[0].MessageID)

	results, err = repo.Search(ctx, "trust-ping", Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, results.Total)
	require.Equal(t, "msg-2", results.Items[0].MessageID)
}

func TestMessageRepositoryIncrementRetryResetsToPending(t *testing.T) {
	repo := NewInMemoryMessageRepository()
	ctx := context.Background()

	m, _, err := repo.Upsert(ctx, &service.MessageRecord{MessageID: "msg-1", Direction: service.DirectionOutbound})
	require.NoError(t, err)

	_, err = repo.UpdateState(ctx, m.ID, service.MessageStateFailed, "delivery timeout")
	require.NoError(t, err)

	retried, err := repo.IncrementRetry(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 1, retried.RetryCount)
	require.Equal(t, service.MessageStatePending, retried.State)
	require.Empty(t, retried.ErrorMessage)
}
