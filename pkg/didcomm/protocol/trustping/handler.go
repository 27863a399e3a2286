/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package trustping implements the Trust Ping (2.0) protocol handler (spec
// §4.5): a liveness check with a ping/ping-response pair.
package trustping

import (
	"context"

	"github.com/google/uuid"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

var logger = log.New("protocol/trustping")

// ProtocolURI is the trust-ping/2.0 protocol family URI.
const ProtocolURI = "https://didcomm.org/trust-ping/2.0"

const (
	typePing         = ProtocolURI + "/ping"
	typePingResponse = ProtocolURI + "/ping-response"
)

// Handler is the Trust Ping protocol handler (spec §4.5).
type Handler struct {
	conns    repository.ConnectionRepository
	messages repository.MessageRepository
}

// NewHandler builds a trust-ping Handler.
func NewHandler(conns repository.ConnectionRepository, messages repository.MessageRepository) *Handler {
	return &Handler{conns: conns, messages: messages}
}

// Type implements dispatcher.ProtocolHandler.
func (h *Handler) Type() string { return ProtocolURI }

// Name implements dispatcher.ProtocolHandler.
func (h *Handler) Name() string { return "trust-ping" }

// Version implements dispatcher.ProtocolHandler.
func (h *Handler) Version() string { return "2.0" }

// Accept implements dispatcher.ProtocolHandler.
func (h *Handler) Accept(messageType string) bool {
	return dispatcher.HasProtocolPrefix(messageType, ProtocolURI)
}

// Handle implements dispatcher.ProtocolHandler (spec §4.5).
func (h *Handler) Handle(ctx context.Context, msg *service.DIDCommMsg, mctx dispatcher.MessageContext) error {
	record := &service.MessageRecord{
		MessageID:    msg.ID(),
		ThreadID:     msg.ThreadID(),
		ConnectionID: mctx.ConnectionID,
		Type:         msg.Type(),
		Direction:    service.DirectionInbound,
		FromDID:      msg.From(),
		ToDIDs:       msg.To(),
		State:        service.MessageStateProcessed,
	}

	if _, _, err := h.messages.Upsert(ctx, record); err != nil {
		return err
	}

	if mctx.ConnectionID != "" {
		if conn, err := h.conns.GetByID(ctx, mctx.ConnectionID); err == nil {
			if service.NormalizeState(conn.State) != service.StateComplete {
				if _, err := h.conns.UpdateState(ctx, conn.ID, conn.State, service.StateComplete); err != nil {
					logger.Warnf("trust-ping: mark connection %s active failed: %v", conn.ID, err)
				}
			}
		}
	}

	if msg.Type() != typePing {
		return nil
	}

	responseRequested := true
	if r := msg.Body("response_requested"); r.Exists() {
		responseRequested = r.Bool()
	}

	if !responseRequested {
		return nil
	}

	return h.queuePingResponse(ctx, msg, mctx)
}

// queuePingResponse creates a pending outbound /ping-response row. Trust
// Ping does not reach back into the router itself, and nothing in this
// module sends pending rows later: the reply row stays in state `pending`.
func (h *Handler) queuePingResponse(ctx context.Context, msg *service.DIDCommMsg, mctx dispatcher.MessageContext) error {
	reply, err := service.NewDIDCommMsg(uuid.New().String(), typePingResponse, "", nil, msg.ID(),
		map[string]interface{}{"comment": "Pong"})
	if err != nil {
		return err
	}

	record := &service.MessageRecord{
		MessageID:    reply.ID(),
		ThreadID:     msg.ID(),
		ConnectionID: mctx.ConnectionID,
		Type:         typePingResponse,
		Direction:    service.DirectionOutbound,
		Body:         map[string]interface{}{"comment": "Pong"},
		State:        service.MessageStatePending,
	}

	_, _, err = h.messages.Upsert(ctx, record)

	return err
}
