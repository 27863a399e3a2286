/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"context"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/manager"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

// Client wraps a *manager.Manager, translating the query-parameter shape an
// outer layer (REST handler, CLI command) naturally works with into the
// repository filter types the manager expects.
type Client struct {
	mgr *manager.Manager
}

// New builds a Client around an already-wired Connection Manager.
func New(mgr *manager.Manager) *Client {
	return &Client{mgr: mgr}
}

// CreateInvitation delegates to the manager's createInvitation.
func (c *Client) CreateInvitation(ctx context.Context, p manager.CreateInvitationParams) (*manager.CreateInvitationResult, error) {
	return c.mgr.CreateInvitation(ctx, p)
}

// AcceptInvitation delegates to the manager's acceptInvitation.
func (c *Client) AcceptInvitation(ctx context.Context, p manager.AcceptInvitationParams) (*service.ConnectionRecord, error) {
	return c.mgr.AcceptInvitation(ctx, p)
}

// GetConnection delegates to the manager's getConnection.
func (c *Client) GetConnection(ctx context.Context, id string) (*service.ConnectionRecord, error) {
	return c.mgr.GetConnection(ctx, id)
}

// QueryConnections lists connections matching the given query parameters.
func (c *Client) QueryConnections(ctx context.Context, q QueryParams) (*repository.ConnectionList, error) {
	state, role := q.toFilter()

	return c.mgr.ListConnections(ctx, repository.ConnectionFilter{
		State: state, Role: role, TheirDID: q.TheirDID, Tag: q.Tag, CorrelationID: q.InvitationID,
	}, repository.Page{Limit: q.Limit, Offset: q.Offset})
}

// QueryMessages lists messages matching the given query parameters.
func (c *Client) QueryMessages(ctx context.Context, q MessageQueryParams) (*repository.MessageList, error) {
	return c.mgr.ListMessages(ctx, repository.MessageFilter{
		ConnectionID: q.ConnectionID,
		Direction:    service.MessageDirection(q.Direction),
		State:        service.MessageState(q.State),
		Type:         q.Type,
	}, repository.Page{Limit: q.Limit, Offset: q.Offset})
}

// Ping delegates to the manager's ping.
func (c *Client) Ping(ctx context.Context, connectionID string) (*manager.PingResult, error) {
	return c.mgr.Ping(ctx, connectionID)
}

// DeleteConnection delegates to the manager's deleteConnection.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	return c.mgr.DeleteConnection(ctx, id)
}
