/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package manager implements the Connection Manager (spec §4.1), the
// hardest component: invitation issuance/acceptance and the operator-facing
// operations that sit above the Connection Protocol handler's automatic
// handshake steps.
package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dbn-network/didcomm-core/pkg/capability"
	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	connectionproto "github.com/dbn-network/didcomm-core/pkg/didcomm/protocol/connection"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/protocol/trustping"
	"github.com/dbn-network/didcomm-core/pkg/doc/did"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

var logger = log.New("manager/connection")

// CreateInvitationParams configures createInvitation (spec §4.1).
type CreateInvitationParams struct {
	MyDID     string
	Label     string
	Goal      string
	GoalCode  string
	TargetDID string
}

// CreateInvitationResult is returned by createInvitation.
type CreateInvitationResult struct {
	Connection    *service.ConnectionRecord
	InvitationURL string
	Invitation    *connectionproto.Invitation
}

// AcceptInvitationParams configures acceptInvitation (spec §4.1).
type AcceptInvitationParams struct {
	// Invitation is either the encoded OOB URL or a raw invitation JSON
	// object, per spec §4.1 step 1.
	Invitation string
	MyDID      string
	Label      string
}

// PingResult is returned by ping(id) (spec §4.1).
type PingResult struct {
	Success      bool
	ResponseTime time.Duration
}

// Sender is the Message Router surface the manager needs for the
// acceptance fast-path request send and for ping (spec §9: handlers/
// managers depend on the router by interface, not the concrete type).
type Sender interface {
	RouteOutbound(ctx context.Context, msg *service.DIDCommMsg, connectionID string, opts dispatcher.RouteOutboundOptions) (*service.MessageRecord, error)
}

// Manager implements the Connection Manager's operator-facing surface
// (spec §4.1): createInvitation, acceptInvitation, getConnection,
// listConnections, updateMetadata, refreshCapabilities, deleteConnection,
// ping, plus the supplemented retryConnection/listMessages/searchMessages
// operations.
type Manager struct {
	conns      repository.ConnectionRepository
	messages   repository.MessageRepository
	kmsClient  kms.Client
	discoverer *capability.Discoverer
	sender     Sender
	cfg        *config.Config
}

// New builds a Connection Manager.
func New(conns repository.ConnectionRepository, messages repository.MessageRepository, kmsClient kms.Client, discoverer *capability.Discoverer, sender Sender, cfg *config.Config) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Manager{conns: conns, messages: messages, kmsClient: kmsClient, discoverer: discoverer, sender: sender, cfg: cfg}
}

// CreateInvitation implements createInvitation (spec §4.1).
func (m *Manager) CreateInvitation(ctx context.Context, p CreateInvitationParams) (*CreateInvitationResult, error) {
	correlationID := uuid.New().String()

	created, err := m.kmsClient.CreateDID(ctx, "peer", kms.CreateDIDOptions{
		Services: []did.Service{{
			ID: "#didcomm", Type: "DIDCommMessaging", ServiceEndpoint: p.MyDID, Protocols: m.cfg.AdvertisedProtocols,
		}},
	})
	if err != nil {
		return nil, service.WrapError(service.CodePeerDIDCreationFailed, "create peer DID for invitation", err)
	}

	inv := connectionproto.BuildInvitation(connectionproto.BuildInvitationParams{
		Label:         p.Label,
		Goal:          p.Goal,
		GoalCode:      p.GoalCode,
		TargetDID:     p.TargetDID,
		CorrelationID: correlationID,
		Protocols:     m.cfg.AdvertisedProtocols,
		Service: service.Service{
			ID: created.DID + "#didcomm", Type: "DIDCommMessaging", ServiceEndpoint: p.MyDID,
		},
	})

	url, err := connectionproto.EncodeInvitationURL(inv)
	if err != nil {
		return nil, err
	}

	invitationMap, err := toMap(inv)
	if err != nil {
		return nil, err
	}

	conn := &service.ConnectionRecord{
		MyDID:         p.MyDID,
		TheirDID:      p.TargetDID,
		Role:          service.RoleInviter,
		State:         service.StateInvited,
		Invitation:    invitationMap,
		InvitationURL: url,
	}

	conn.SetMeta("correlationId", correlationID)

	invKind := service.InvitationTargeted
	if p.TargetDID == "" {
		invKind = service.InvitationOpen
	}

	conn.SetMeta("invitationType", string(invKind))

	if err := m.conns.Insert(ctx, conn); err != nil {
		return nil, err
	}

	return &CreateInvitationResult{Connection: conn, InvitationURL: url, Invitation: inv}, nil
}

// AcceptInvitation implements acceptInvitation (spec §4.1).
func (m *Manager) AcceptInvitation(ctx context.Context, p AcceptInvitationParams) (*service.ConnectionRecord, error) {
	inv, err := connectionproto.DecodeInvitation(p.Invitation)
	if err != nil {
		return nil, err
	}

	if inv.Target != "" && inv.Target != p.MyDID {
		return nil, service.NewError(service.CodeInvitationNotForYou,
			"invitation targets "+inv.Target+", not "+p.MyDID)
	}

	if len(inv.Services) == 0 {
		return nil, service.NewError(service.CodeInvalidInvitation, "invitation carries no services")
	}

	theirDID, endpoint, protocols, services, err := m.resolveInvitationService(ctx, inv.Services[0])
	if err != nil {
		return nil, err
	}

	if _, err := m.conns.GetByDIDs(ctx, p.MyDID, theirDID); err == nil {
		return nil, service.NewError(service.CodeConnectionAlreadyExists,
			"a connection already exists between "+p.MyDID+" and "+theirDID)
	}

	if _, err := m.kmsClient.CreateDID(ctx, "peer", kms.CreateDIDOptions{
		Services: []did.Service{{ID: "#didcomm", Type: "DIDCommMessaging", ServiceEndpoint: p.MyDID, Protocols: m.cfg.AdvertisedProtocols}},
	}); err != nil {
		return nil, service.WrapError(service.CodePeerDIDCreationFailed, "create peer DID for acceptance", err)
	}

	conn := &service.ConnectionRecord{
		MyDID:          p.MyDID,
		TheirDID:       theirDID,
		Role:           service.RoleInvitee,
		State:          service.StateRequested,
		TheirEndpoint:  endpoint,
		TheirProtocols: protocols,
		TheirServices:  services,
	}

	correlationID := inv.CID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	conn.SetMeta("correlationId", correlationID)
	conn.SetMeta("invitationType", string(service.InvitationTargeted))

	if err := m.conns.Insert(ctx, conn); err != nil {
		return nil, err
	}

	if endpoint != "" {
		reqMsg, err := service.NewDIDCommMsg(uuid.New().String(), connectionproto.ProtocolURI+"/request",
			p.MyDID, []string{theirDID}, "", map[string]interface{}{
				"label":         p.Label,
				"invitation_id": inv.ID,
			})
		if err != nil {
			return nil, err
		}

		if _, err := m.sender.RouteOutbound(ctx, reqMsg, conn.ID, dispatcher.RouteOutboundOptions{AllowHandshakeStates: true}); err != nil {
			logger.Warnf("acceptInvitation: outbound request failed for connection %s, staying requested: %v", conn.ID, err)

			updated, uerr := m.conns.UpdateMetadata(ctx, conn.ID, map[string]interface{}{"outboundRequestFailed": true})
			if uerr != nil {
				return nil, uerr
			}

			return updated, nil
		}
	}

	return conn, nil
}

// resolveInvitationService implements spec §4.1 acceptInvitation steps
// 3-6: it resolves the DID before the `#` of the service id via capability
// discovery and takes the endpoint and protocols from the resolved
// document, using the service block's inline serviceEndpoint/protocols
// where resolution fails or a resolved field is empty.
func (m *Manager) resolveInvitationService(ctx context.Context, svc service.Service) (theirDID, endpoint string, protocols []string, services []service.Service, err error) {
	if svc.ID == "" && svc.ServiceEndpoint == "" {
		return "", "", nil, nil, service.NewError(service.CodeInvalidInvitation, "invitation service block is empty")
	}

	theirDID = didBeforeFragment(svc.ID)

	caps, derr := m.discoverer.Discover(ctx, theirDID)
	if derr != nil {
		// Peer DIDs are self-generated and anchored nowhere (Glossary), so
		// resolution failing is the normal case for an inline-service OOB
		// invitation (spec §4.1 step 4, scenario §8.1): two agents each hold
		// their own KMS and neither can resolve the other's peer DID. Fall
		// back to the invitation's own inline serviceEndpoint/protocols
		// rather than failing acceptance outright; only a bare DID-reference
		// service with nothing inline to fall back on is fatal here.
		if svc.ServiceEndpoint == "" {
			return "", "", nil, nil, service.WrapError(service.CodeDIDResolutionFailed, "resolve invitation service DID "+theirDID, derr)
		}

		logger.Warnf("acceptInvitation: DID resolution failed for %s, falling back to inline service block: %v", theirDID, derr)

		return theirDID, svc.ServiceEndpoint, svc.Protocols, nil, nil
	}

	endpoint = caps.Endpoint
	if endpoint == "" {
		endpoint = svc.ServiceEndpoint
	}

	protocols = caps.Protocols
	if len(protocols) == 0 {
		protocols = svc.Protocols
	}

	services = caps.Services

	return theirDID, endpoint, protocols, services, nil
}

func didBeforeFragment(id string) string {
	for i, r := range id {
		if r == '#' {
			return id[:i]
		}
	}

	return id
}

// RefreshCapabilities implements refreshCapabilities(id) (spec §4.1).
func (m *Manager) RefreshCapabilities(ctx context.Context, id string) (*service.ConnectionRecord, error) {
	conn, err := m.conns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if conn.TheirDID == "" {
		return nil, service.NewError(service.CodeInvalidConnectionState, "connection "+id+" has no theirDid to discover")
	}

	caps, err := m.discoverer.Discover(ctx, conn.TheirDID)
	if err != nil {
		return nil, err
	}

	return m.conns.UpdateCapabilities(ctx, id, caps.Endpoint, caps.Protocols, caps.Services)
}

// DeleteConnection implements deleteConnection(id) (spec §4.1): revocation
// of our peer DID is best-effort and never blocks the delete.
func (m *Manager) DeleteConnection(ctx context.Context, id string) error {
	conn, err := m.conns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := m.kmsClient.RevokeDID(ctx, conn.MyDID); err != nil {
		logger.Warnf("deleteConnection: best-effort revoke of %s failed: %v", conn.MyDID, err)
	}

	return m.conns.Delete(ctx, id)
}

// GetConnection implements getConnection(id).
func (m *Manager) GetConnection(ctx context.Context, id string) (*service.ConnectionRecord, error) {
	return m.conns.GetByID(ctx, id)
}

// ListConnections implements listConnections(filters) (spec §4.1,
// SPEC_FULL.md supplement).
func (m *Manager) ListConnections(ctx context.Context, filter repository.ConnectionFilter, page repository.Page) (*repository.ConnectionList, error) {
	return m.conns.List(ctx, filter, page)
}

// UpdateMetadata implements updateMetadata(id, metadata).
func (m *Manager) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (*service.ConnectionRecord, error) {
	return m.conns.UpdateMetadata(ctx, id, metadata)
}

// RetryConnection implements the supplemented retry-from-error operation
// (SPEC_FULL.md; spec §4.1 state machine's `error -> invited|requested`
// operator-initiated edge). The manager performs the strict transition
// check here, as spec §4.1 designates this layer for strict enforcement.
func (m *Manager) RetryConnection(ctx context.Context, id string, target service.ConnectionState) (*service.ConnectionRecord, error) {
	conn, err := m.conns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := service.ValidateTransition(conn.State, target); err != nil {
		return nil, err
	}

	return m.conns.UpdateState(ctx, id, conn.State, target)
}

// Ping implements ping(id) (spec §4.1).
func (m *Manager) Ping(ctx context.Context, id string) (*PingResult, error) {
	conn, err := m.conns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !conn.Usable() {
		return nil, service.NewError(service.CodeConnectionNotActive, "connection "+id+" is not usable for ping")
	}

	msg, err := service.NewDIDCommMsg(uuid.New().String(), trustping.ProtocolURI+"/ping",
		conn.MyDID, []string{conn.TheirDID}, "", map[string]interface{}{"response_requested": true})
	if err != nil {
		return nil, err
	}

	start := time.Now()

	_, err = m.sender.RouteOutbound(ctx, msg, conn.ID, dispatcher.RouteOutboundOptions{})
	elapsed := time.Since(start)

	if err != nil {
		return &PingResult{Success: false, ResponseTime: elapsed}, nil
	}

	return &PingResult{Success: true, ResponseTime: elapsed}, nil
}

// RetryMessage implements the supplemented retryMessage(id) operation
// (SPEC_FULL.md, spec §8 scenario 5): only a message in state `failed` may
// be retried; success resends through the router and increments
// retryCount.
func (m *Manager) RetryMessage(ctx context.Context, id string) (*service.MessageRecord, error) {
	msg, err := m.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.State != service.MessageStateFailed {
		return nil, service.NewError(service.CodeInvalidMessageState,
			"message "+id+" is not in a retryable state")
	}

	if _, err := m.messages.IncrementRetry(ctx, id); err != nil {
		return nil, err
	}

	outbound, err := service.NewDIDCommMsg(msg.MessageID, msg.Type, msg.FromDID, msg.ToDIDs, msg.ThreadID, msg.Body)
	if err != nil {
		return nil, err
	}

	return m.sender.RouteOutbound(ctx, outbound, msg.ConnectionID, dispatcher.RouteOutboundOptions{})
}

// ListMessages implements the supplemented listMessages(filters) operation.
func (m *Manager) ListMessages(ctx context.Context, filter repository.MessageFilter, page repository.Page) (*repository.MessageList, error) {
	return m.messages.List(ctx, filter, page)
}

// SearchMessages implements the supplemented SearchMessages(query, limit,
// offset) operation (SPEC_FULL.md; spec §6 "full-text search vector...for
// the search endpoint").
func (m *Manager) SearchMessages(ctx context.Context, query string, page repository.Page) (*repository.MessageList, error) {
	return m.messages.Search(ctx, query, page)
}

// toMap round-trips v through JSON into a plain map, used to store the
// built invitation object on ConnectionRecord.Invitation without coupling
// the record's storage shape to the connection protocol's Invitation type.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
