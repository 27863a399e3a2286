/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/capability"
	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/manager"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

type stubSender struct{}

func (stubSender) RouteOutbound(_ context.Context, msg *service.DIDCommMsg, _ string, _ dispatcher.RouteOutboundOptions) (*service.MessageRecord, error) {
	return &service.MessageRecord{MessageID: msg.ID(), State: service.MessageStateSent}, nil
}

func TestClientCreateInvitationAndQuery(t *testing.T) {
	conns := repository.NewInMemoryConnectionRepository()
	messages := repository.NewInMemoryMessageRepository()
	client := kms.NewMockClient()
	disc := capability.NewDiscoverer(client)
	mgr := manager.New(conns, messages, client, disc, stubSender{}, config.DefaultConfig())

	c := New(mgr)
	ctx := context.Background()

	res, err := c.CreateInvitation(ctx, manager.CreateInvitationParams{MyDID: "did:peer:alice", Label: "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, res.InvitationURL)

	list, err := c.QueryConnections(ctx, QueryParams{State: string(service.StateInvited)})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)

	fetched, err := c.GetConnection(ctx, res.Connection.ID)
	require.NoError(t, err)
	require.Equal(t, res.Connection.ID, fetched.ID)
}
