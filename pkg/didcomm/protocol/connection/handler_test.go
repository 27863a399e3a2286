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
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

type fakeSender struct {
	sent []*service.DIDCommMsg
	fail bool
}

func (f *fakeSender) RouteOutbound(_ context.Context, msg *service.DIDCommMsg, _ string, _ dispatcher.RouteOutboundOptions) (*service.MessageRecord, error) {
	if f.fail {
		return nil, service.NewError(service.CodeDeliveryFailed, "simulated failure")
	}

	f.sent = append(f.sent, msg)

	return &service.MessageRecord{MessageID: msg.ID(), State: service.MessageStateSent}, nil
}

func newTestHandler(sender Sender) (*Handler, repository.ConnectionRepository, repository.MessageRepository) {
	conns := repository.NewInMemoryConnectionRepository()
	messages := repository.NewInMemoryMessageRepository()
	disc := capability.NewDiscoverer(kms.NewMockClient())

	return NewHandler(conns, messages, disc, sender, "Alice"), conns, messages
}

func TestHandleRequestOnTargetedInvitationAdvancesToResponded(t *testing.T) {
	sender := &fakeSender{}
	handler, conns, _ := newTestHandler(sender)
	ctx := context.Background()

	conn := &service.ConnectionRecord{
		MyDID: "did:web:e.com:alice", TheirDID: "did:web:e.com:bob", Role: service.RoleInviter,
		State: service.StateInvited, TheirEndpoint: "https://bob.example/inbox",
	}
	require.NoError(t, conns.Insert(ctx, conn))

	req, err := service.NewDIDCommMsg("req-1", typeRequest, "did:web:e.com:bob", []string{"did:web:e.com:alice"}, "", map[string]interface{}{"label": "Bob"})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, req, dispatcher.MessageContext{ConnectionID: conn.ID}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateResponded, updated.State)
	require.Len(t, sender.sent, 1)
	require.Equal(t, typeResponse, sender.sent[0].Type())
}

func TestHandleRequestCreatesConnectionWhenAbsent(t *testing.T) {
	handler, conns, _ := newTestHandler(&fakeSender{})
	ctx := context.Background()

	req, err := service.NewDIDCommMsg("req-1", typeRequest, "did:web:e.com:bob", []string{"did:web:e.com:alice"}, "", nil)
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, req, dispatcher.MessageContext{}))

	list, err := conns.List(ctx, repository.ConnectionFilter{}, repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Equal(t, service.RoleInviter, list.Items[0].Role)
}

func TestHandleResponseAdvancesToCompleteOnInvitee(t *testing.T) {
	sender := &fakeSender{}
	handler, conns, _ := newTestHandler(sender)
	ctx := context.Background()

	conn := &service.ConnectionRecord{
		MyDID: "did:web:e.com:bob", TheirDID: "did:web:e.com:alice", Role: service.RoleInvitee,
		State: service.StateRequested, TheirEndpoint: "https://alice.example/inbox",
	}
	require.NoError(t, conns.Insert(ctx, conn))

	resp, err := service.NewDIDCommMsg("resp-1", typeResponse, "did:web:e.com:alice", []string{"did:web:e.com:bob"}, "req-1", map[string]interface{}{"label": "Alice"})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, resp, dispatcher.MessageContext{ConnectionID: conn.ID}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateComplete, updated.State)
	require.Len(t, sender.sent, 1)
	require.Equal(t, typeAck, sender.sent[0].Type())
}

func TestHandleAckCompletesInviterSide(t *testing.T) {
	handler, conns, _ := newTestHandler(&fakeSender{})
	ctx := context.Background()

	conn := &service.ConnectionRecord{MyDID: "did:web:e.com:alice", TheirDID: "did:web:e.com:bob", Role: service.RoleInviter, State: service.StateResponded}
	require.NoError(t, conns.Insert(ctx, conn))

	ack, err := service.NewDIDCommMsg("ack-1", typeAck, "did:web:e.com:bob", []string{"did:web:e.com:alice"}, "resp-1", map[string]interface{}{"status": "OK"})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, ack, dispatcher.MessageContext{ConnectionID: conn.ID}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateComplete, updated.State)
}

func TestHandleRequestSendFailureLeavesConnectionRequested(t *testing.T) {
	sender := &fakeSender{fail: true}
	handler, conns, _ := newTestHandler(sender)
	ctx := context.Background()

	conn := &service.ConnectionRecord{
		MyDID: "did:web:e.com:alice", TheirDID: "did:web:e.com:bob", Role: service.RoleInviter,
		State: service.StateInvited, TheirEndpoint: "https://bob.example/inbox",
	}
	require.NoError(t, conns.Insert(ctx, conn))

	req, err := service.NewDIDCommMsg("req-1", typeRequest, "did:web:e.com:bob", []string{"did:web:e.com:alice"}, "", nil)
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, req, dispatcher.MessageContext{}))

	updated, err := conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, service.StateRequested, updated.State)
}
