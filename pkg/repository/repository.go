/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package repository describes the persistent storage abstraction for
// Connection and Message entities (spec §4.6): CRUD with filtered listing,
// atomic row-level state transitions, and lookup by the composite keys the
// handshake and router depend on. It ships an in-memory reference
// implementation; a production deployment swaps it for a SQL-backed one
// without the core noticing, since every consumer depends only on these
// interfaces.
package repository

import (
	"context"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

// ConnectionFilter narrows a connection listing (SPEC_FULL.md's expansion
// of spec §4.1 listConnections).
type ConnectionFilter struct {
	State         service.ConnectionState
	Role          service.ConnectionRole
	TheirDID      string
	Tag           string
	CorrelationID string
}

// Page bounds a filtered listing.
type Page struct {
	Limit  int
	Offset int
}

// ConnectionList is a page of connections plus the total matching count.
type ConnectionList struct {
	Items []*service.ConnectionRecord
	Total int
}

// ConnectionRepository is the storage contract for Connection entities
// (spec §3, §4.6). All mutation methods return the updated record so
// callers avoid a second round trip.
type ConnectionRepository interface {
	Insert(ctx context.Context, c *service.ConnectionRecord) error
	GetByID(ctx context.Context, id string) (*service.ConnectionRecord, error)
	GetByDIDs(ctx context.Context, myDID, theirDID string) (*service.ConnectionRecord, error)
	GetByTheirDID(ctx context.Context, theirDID string) (*service.ConnectionRecord, error)
	GetByInvitationCorrelation(ctx context.Context, myDID, correlationID string) (*service.ConnectionRecord, error)
	List(ctx context.Context, filter ConnectionFilter, page Page) (*ConnectionList, error)

	// UpdateState performs the atomic `UPDATE ... WHERE state=$prev` the
	// spec requires (§5); it validates the transition only advisorily
	// (logs, does not reject) per §4.1's two-layer validation design —
	// the strict check lives in the Connection Manager.
	UpdateState(ctx context.Context, id string, prevState, newState service.ConnectionState) (*service.ConnectionRecord, error)

	// UpdateCapabilities overwrites the discovered-capability fields
	// atomically (spec §4.1 refreshCapabilities).
	UpdateCapabilities(ctx context.Context, id string, endpoint string, protocols []string, services []service.Service) (*service.ConnectionRecord, error)

	// UpdatePeerInfo is the single operation permitted to change a
	// non-empty TheirDID (spec invariant 7), used when an inviter
	// correlates an inbound request to its invitation.
	UpdatePeerInfo(ctx context.Context, id string, theirDID, theirLabel string) (*service.ConnectionRecord, error)

	UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (*service.ConnectionRecord, error)

	Delete(ctx context.Context, id string) error
}

// MessageFilter narrows a message listing.
type MessageFilter struct {
	ConnectionID string
	Direction    service.MessageDirection
	State        service.MessageState
	Type         string
}

// MessageList is a page of messages plus the total matching count.
type MessageList struct {
	Items []*service.MessageRecord
	Total int
}

// MessageRepository is the storage contract for Message entities (spec §3,
// §4.6).
type MessageRepository interface {
	// Upsert inserts a new row keyed by MessageID, or returns the
	// existing row unchanged if one already exists — this is the
	// mechanism behind invariant 5 (idempotent inbound) and the
	// at-most-once outbound row per messageId (spec §5).
	Upsert(ctx context.Context, m *service.MessageRecord) (row *service.MessageRecord, inserted bool, err error)

	GetByID(ctx context.Context, id string) (*service.MessageRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*service.MessageRecord, error)
	List(ctx context.Context, filter MessageFilter, page Page) (*MessageList, error)
	Search(ctx context.Context, query string, page Page) (*MessageList, error)

	UpdateState(ctx context.Context, id string, state service.MessageState, errMsg string) (*service.MessageRecord, error)
	IncrementRetry(ctx context.Context, id string) (*service.MessageRecord, error)

	Delete(ctx context.Context, id string) error
}
