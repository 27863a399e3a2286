/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package trustping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

func TestHandlePingQueuesPingResponseAndMarksComplete(t *testing.T) {
	conns := repository.NewInMemoryConnectionRepository()
	messages := repository.NewInMemoryMessageRepository()
	ctx := context.Background()

	conn := &service.ConnectionRecord{MyDID: "did:peer:bob", TheirDID: "did:peer:alice", State: service.StateResponded}
	require.NoError(t, conns.Insert(ctx, conn))

	h := NewHandler(conns, messages)

	ping, err := service.NewDIDCommMsg("ping-1", typePing, "did:peer:alice", []string{"did:peer:bob"}, "",
		map[string]interface{}{"response_requested": true})
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, ping, dispatcher.MessageContext{ConnectionID: conn.ID}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateComplete, updated.State)

	list, err := messages.List(ctx, repository.MessageFilter{Direction: service.DirectionOutbound}, repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Equal(t, typePingResponse, list.Items[0].Type)
	require.Equal(t, "ping-1", list.Items[0].ThreadID)
}

func TestHandlePingWithoutResponseRequestedDoesNotQueueReply(t *testing.T) {
	conns := repository.NewInMemoryConnectionRepository()
	messages := repository.NewInMemoryMessageRepository()
	h := NewHandler(conns, messages)
	ctx := context.Background()

	ping, err := service.NewDIDCommMsg("ping-1", typePing, "did:peer:alice", nil, "",
		map[string]interface{}{"response_requested": false})
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, ping, dispatcher.MessageContext{}))

	list, err := messages.List(ctx, repository.MessageFilter{Direction: service.DirectionOutbound}, repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 0, list.Total)
}

func TestHandlePingResponseMarksConnectionComplete(t *testing.T) {
	conns := repository.NewInMemoryConnectionRepository()
	messages := repository.NewInMemoryMessageRepository()
	ctx := context.Background()

	conn := &service.ConnectionRecord{MyDID: "did:peer:alice", TheirDID: "did:peer:bob", State: service.StateResponded}
	require.NoError(t, conns.Insert(ctx, conn))

	h := NewHandler(conns, messages)

	resp, err := service.NewDIDCommMsg("pr-1", typePingResponse, "did:peer:bob", []string{"did:peer:alice"}, "ping-1", nil)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, resp, dispatcher.MessageContext{ConnectionID: conn.ID}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateComplete, updated.State)
}
