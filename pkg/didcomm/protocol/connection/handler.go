/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dbn-network/didcomm-core/pkg/capability"
	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/doc/did"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

var logger = log.New("protocol/connection")

// ProtocolURI is the connections/1.0 protocol family URI (spec §4.5).
const ProtocolURI = "https://didcomm.org/connections/1.0"

const (
	typeRequest  = ProtocolURI + "/request"
	typeResponse = ProtocolURI + "/response"
	typeAck      = ProtocolURI + "/ack"
)

// Sender submits an outbound DIDComm message through the Message Router,
// the one collaborator Handler needs beyond storage (spec §9's "handlers
// should receive the router as a collaborator by interface").
type Sender interface {
	RouteOutbound(ctx context.Context, msg *service.DIDCommMsg, connectionID string, opts dispatcher.RouteOutboundOptions) (*service.MessageRecord, error)
}

// Handler is the Connection (1.0) protocol handler (spec §4.5), the most
// intricate of the three built-ins: it advances the handshake state
// machine in response to inbound /request, /response, and /ack messages.
type Handler struct {
	conns       repository.ConnectionRepository
	messages    repository.MessageRepository
	discoverer  *capability.Discoverer
	sender      Sender
	localLabel  string
}

// NewHandler builds a Connection protocol Handler.
func NewHandler(conns repository.ConnectionRepository, messages repository.MessageRepository, discoverer *capability.Discoverer, sender Sender, localLabel string) *Handler {
	return &Handler{conns: conns, messages: messages, discoverer: discoverer, sender: sender, localLabel: localLabel}
}

// Type implements dispatcher.ProtocolHandler.
func (h *Handler) Type() string { return ProtocolURI }

// Name implements dispatcher.ProtocolHandler.
func (h *Handler) Name() string { return "connections" }

// Version implements dispatcher.ProtocolHandler.
func (h *Handler) Version() string { return "1.0" }

// Accept implements dispatcher.ProtocolHandler.
func (h *Handler) Accept(messageType string) bool {
	return dispatcher.HasProtocolPrefix(messageType, ProtocolURI)
}

// Handle implements dispatcher.ProtocolHandler, dispatching to the
// sub-type-specific handshake step (spec §4.5).
func (h *Handler) Handle(ctx context.Context, msg *service.DIDCommMsg, mctx dispatcher.MessageContext) error {
	if _, _, err := h.persistInbound(ctx, msg, mctx); err != nil {
		return err
	}

	switch msg.Type() {
	case typeRequest:
		return h.handleRequest(ctx, msg)
	case typeResponse:
		return h.handleResponse(ctx, msg)
	case typeAck:
		return h.handleAck(ctx, msg)
	default:
		return service.NewError(service.CodeHandlerNotFound, "connection handler: unsupported sub-type "+msg.Type())
	}
}

func (h *Handler) persistInbound(ctx context.Context, msg *service.DIDCommMsg, mctx dispatcher.MessageContext) (*service.MessageRecord, bool, error) {
	var body map[string]interface{}
	_ = msg.Decode(&struct {
		Body *map[string]interface{} `json:"body"`
	}{Body: &body})

	record := &service.MessageRecord{
		MessageID:    msg.ID(),
		ThreadID:     msg.ThreadID(),
		ParentID:     msg.ParentThreadID(),
		ConnectionID: mctx.ConnectionID,
		Type:         msg.Type(),
		Direction:    service.DirectionInbound,
		FromDID:      msg.From(),
		ToDIDs:       msg.To(),
		Body:         body,
		State:        service.MessageStateProcessed,
	}

	return h.messages.Upsert(ctx, record)
}

// handleRequest implements the inviter-side /request step (spec §4.5).
func (h *Handler) handleRequest(ctx context.Context, msg *service.DIDCommMsg) error {
	theirDID := msg.From()
	myDID := firstOrEmpty(msg.To())

	conn, err := h.conns.GetByDIDs(ctx, myDID, theirDID)
	if err != nil {
		conn, err = h.correlateByInvitation(ctx, msg, myDID, theirDID)
		if err != nil {
			return err
		}
	}

	if conn == nil {
		conn = &service.ConnectionRecord{MyDID: myDID, TheirDID: theirDID, Role: service.RoleInviter, State: service.StateRequested}
		if err := h.conns.Insert(ctx, conn); err != nil {
			return err
		}
	} else if service.NormalizeState(conn.State) == service.StateInvited {
		// targeted invitation: the inviter already holds an `invited` row
		// keyed directly by (myDid, theirDid) from createInvitation.
		conn, err = h.conns.UpdateState(ctx, conn.ID, service.StateInvited, service.StateRequested)
		if err != nil {
			return err
		}
	}

	h.absorbCapabilities(ctx, conn, msg)

	if conn.TheirEndpoint == "" {
		logger.Warnf("connection %s: no endpoint known after /request, cannot auto-respond", conn.ID)
		return nil
	}

	respMsg, err := service.NewDIDCommMsg(uuidMessageID(), typeResponse, conn.MyDID, []string{conn.TheirDID}, msg.ID(),
		map[string]interface{}{"label": h.localLabel})
	if err != nil {
		return err
	}

	if _, err := h.sender.RouteOutbound(ctx, respMsg, conn.ID, dispatcher.RouteOutboundOptions{AllowHandshakeStates: true}); err != nil {
		logger.Warnf("connection %s: auto-response send failed, remaining requested: %v", conn.ID, err)
		return nil
	}

	_, err = h.conns.UpdateState(ctx, conn.ID, service.StateRequested, service.StateResponded)

	return err
}

// correlateByInvitation implements the invitation_id correlation fallback
// (spec §4.5 handleRequest step 2).
func (h *Handler) correlateByInvitation(ctx context.Context, msg *service.DIDCommMsg, myDID, theirDID string) (*service.ConnectionRecord, error) {
	invitationID := msg.Body("invitation_id").String()
	if invitationID == "" {
		return nil, nil
	}

	conn, err := h.conns.GetByInvitationCorrelation(ctx, myDID, invitationID)
	if err != nil {
		return nil, nil
	}

	if conn.State != service.StateInvited {
		return conn, nil
	}

	theirLabel := msg.Body("label").String()

	updated, err := h.conns.UpdatePeerInfo(ctx, conn.ID, theirDID, theirLabel)
	if err != nil {
		return nil, err
	}

	return h.conns.UpdateState(ctx, updated.ID, service.StateInvited, service.StateRequested)
}

// handleResponse implements the invitee-side /response step (spec §4.5).
func (h *Handler) handleResponse(ctx context.Context, msg *service.DIDCommMsg) error {
	theirDID := msg.From()
	myDID := firstOrEmpty(msg.To())

	conn, err := h.conns.GetByDIDs(ctx, myDID, theirDID)
	if err != nil {
		logger.Warnf("connection response from unknown peer %s: %v", theirDID, err)
		return nil
	}

	conn, err = h.conns.UpdateState(ctx, conn.ID, service.StateRequested, service.StateResponded)
	if err != nil {
		return err
	}

	h.absorbCapabilities(ctx, conn, msg)

	conn, err = h.conns.GetByID(ctx, conn.ID)
	if err != nil {
		return err
	}

	if conn.TheirEndpoint == "" {
		return nil
	}

	ackMsg, err := service.NewDIDCommMsg(uuidMessageID(), typeAck, conn.MyDID, []string{conn.TheirDID}, msg.ID(),
		map[string]interface{}{"status": "OK"})
	if err != nil {
		return err
	}

	if _, err := h.sender.RouteOutbound(ctx, ackMsg, conn.ID, dispatcher.RouteOutboundOptions{AllowHandshakeStates: true}); err != nil {
		logger.Warnf("connection %s: ack send failed, remaining responded: %v", conn.ID, err)
		return nil
	}

	_, err = h.conns.UpdateState(ctx, conn.ID, service.StateResponded, service.StateComplete)

	return err
}

// handleAck implements the inviter-side /ack step (spec §4.5).
func (h *Handler) handleAck(ctx context.Context, msg *service.DIDCommMsg) error {
	theirDID := msg.From()
	myDID := firstOrEmpty(msg.To())

	conn, err := h.conns.GetByDIDs(ctx, myDID, theirDID)
	if err != nil {
		logger.Warnf("connection ack from unknown peer %s: %v", theirDID, err)
		return nil
	}

	if service.NormalizeState(conn.State) == service.StateComplete {
		return nil
	}

	_, err = h.conns.UpdateState(ctx, conn.ID, conn.State, service.StateComplete)

	return err
}

// absorbCapabilities implements the fast-path / discovery-path capability
// absorption of spec §4.5 step 4-6: first an inline did_doc, then a
// recursive endpoint scan, then KMS-backed discovery refining the result.
func (h *Handler) absorbCapabilities(ctx context.Context, conn *service.ConnectionRecord, msg *service.DIDCommMsg) {
	endpoint, protocols, services := h.fastPathCapabilities(msg)

	if endpoint == "" {
		if scanned := recursiveEndpointScan(inlineDIDDocRaw(msg)); scanned != "" {
			endpoint = scanned
		}
	}

	if conn.TheirDID != "" {
		if caps, err := h.discoverer.Discover(ctx, conn.TheirDID); err == nil {
			if caps.Endpoint != "" {
				endpoint = caps.Endpoint
			}

			if len(caps.Protocols) > 0 {
				protocols = caps.Protocols
			}

			if len(caps.Services) > 0 {
				services = caps.Services
			}
		} else {
			logger.Warnf("connection %s: capability discovery failed, using fast-path only: %v", conn.ID, err)
		}
	}

	if endpoint == "" && len(protocols) == 0 && len(services) == 0 {
		return
	}

	updated, err := h.conns.UpdateCapabilities(ctx, conn.ID, endpoint, protocols, services)
	if err != nil {
		logger.Warnf("connection %s: failed to persist capabilities: %v", conn.ID, err)
		return
	}

	conn.TheirEndpoint = updated.TheirEndpoint
	conn.TheirProtocols = updated.TheirProtocols
	conn.TheirServices = updated.TheirServices
}

func (h *Handler) fastPathCapabilities(msg *service.DIDCommMsg) (string, []string, []service.Service) {
	if doc := inlineDIDDoc(msg); doc != nil && len(doc.Service) > 0 {
		caps := capability.FromDocument(doc)
		return caps.Endpoint, caps.Protocols, caps.Services
	}

	if svc := inlineServiceBlock(msg); svc != nil {
		endpoint := did.NormalizeEndpoint(svc.ServiceEndpoint)

		return endpoint, svc.Protocols, []service.Service{{
			ID: svc.ID, Type: svc.Type, ServiceEndpoint: endpoint, Protocols: svc.Protocols,
		}}
	}

	return "", nil, nil
}

// inlineServiceBlock handles an inline attachment that carries a bare
// service descriptor (or a one-element array of one) rather than a full
// DID Document — some OOB attachments advertise a service directly without
// wrapping it in a document. Decoded the same loosely-typed way a resolved
// DID Document's service block is, via did.DecodeService, mirroring the
// teacher's didexchange getServiceBlock handling of both shapes.
func inlineServiceBlock(msg *service.DIDCommMsg) *did.Service {
	raw := inlineDIDDocRaw(msg)
	if !raw.Exists() {
		return nil
	}

	var generic interface{}
	if err := json.Unmarshal([]byte(raw.Raw), &generic); err != nil {
		return nil
	}

	if arr, ok := generic.([]interface{}); ok {
		if len(arr) == 0 {
			return nil
		}

		generic = arr[0]
	}

	svc, err := did.DecodeService(generic)
	if err != nil || svc.ServiceEndpoint == nil {
		return nil
	}

	return svc
}

func inlineDIDDocRaw(msg *service.DIDCommMsg) gjson.Result {
	for _, path := range []string{"connection.did_doc", "connection.didDoc", "did_doc", "didDoc"} {
		r := msg.Body(path)
		if r.Exists() {
			return r
		}
	}

	for _, att := range msg.Attachments() {
		if data, ok := att["data"].(map[string]interface{}); ok {
			if j, ok := data["json"]; ok {
				if raw, err := json.Marshal(j); err == nil {
					return gjson.ParseBytes(raw)
				}
			}

			if b64, ok := data["base64"].(string); ok {
				if raw, err := base64.StdEncoding.DecodeString(b64); err == nil && gjson.ValidBytes(raw) {
					return gjson.ParseBytes(raw)
				}
			}
		}
	}

	return gjson.Result{}
}

func inlineDIDDoc(msg *service.DIDCommMsg) *did.Doc {
	raw := inlineDIDDocRaw(msg)
	if !raw.Exists() {
		return nil
	}

	doc, err := did.ParseDocument([]byte(raw.Raw))
	if err != nil {
		return nil
	}

	return doc
}

// recursiveEndpointScan implements spec §4.5 step 5: scan an inline DID
// Document for any {serviceEndpoint|endpoint|uri|url} string value, when the
// fast path could not identify a DIDComm service directly. It decodes the
// node into generic Go values and walks it with jsonpath's recursive
// descent rather than hand-rolling the tree walk.
func recursiveEndpointScan(node gjson.Result) string {
	if !node.Exists() {
		return ""
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(node.Raw), &doc); err != nil {
		return ""
	}

	for _, path := range []string{"$..serviceEndpoint", "$..endpoint", "$..uri", "$..url"} {
		result, err := jsonpath.Get(path, doc)
		if err != nil {
			continue
		}

		if found := firstHTTPURL(result); found != "" {
			return found
		}
	}

	return ""
}

func firstHTTPURL(v interface{}) string {
	switch t := v.(type) {
	case string:
		if isHTTPURL(t) {
			return t
		}
	case []interface{}:
		for _, e := range t {
			if found := firstHTTPURL(e); found != "" {
				return found
			}
		}
	}

	return ""
}

func isHTTPURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}

	return values[0]
}

func uuidMessageID() string {
	return uuid.New().String()
}
