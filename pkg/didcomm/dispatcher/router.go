/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/sjson"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/metrics"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

var routerLogger = log.New("dispatcher/router")

// DIDCommContentType is the Content-Type a JWE envelope is transmitted with
// on the wire (spec §6).
const DIDCommContentType = "application/didcomm-encrypted+json"

// ConnectionLookup is the slice of ConnectionRepository the router needs:
// load by id for outbound, correlate by DID pair for inbound.
type ConnectionLookup interface {
	GetByID(ctx context.Context, id string) (*service.ConnectionRecord, error)
	GetByDIDs(ctx context.Context, myDID, theirDID string) (*service.ConnectionRecord, error)
}

// Router is the Message Router (spec §4.2): it owns the outbound pipeline
// (store-pending → encrypt → deliver → mark-sent/failed) and the inbound
// pipeline (decrypt → parse → correlate → dispatch via registry).
type Router struct {
	conns    ConnectionLookup
	messages repository.MessageRepository
	kmsClient kms.Client
	registry *ProtocolRegistry
	http     *http.Client
	metrics  *metrics.Recorder
}

// SetMetrics attaches a metrics.Recorder the router reports routed/failed
// counts into. Optional — a nil recorder (the default) means metrics are
// skipped.
func (r *Router) SetMetrics(rec *metrics.Recorder) {
	r.metrics = rec
}

// NewRouter builds a Router. cfg may be nil to use config.DefaultConfig();
// the HTTP client's timeout is cfg.DeliveryTimeout (30 seconds by default).
func NewRouter(conns ConnectionLookup, messages repository.MessageRepository, kmsClient kms.Client, registry *ProtocolRegistry, cfg *config.Config) *Router {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Router{
		conns:     conns,
		messages:  messages,
		kmsClient: kmsClient,
		registry:  registry,
		http:      &http.Client{Timeout: cfg.DeliveryTimeout},
	}
}

// RouteOutboundOptions modifies a single RouteOutbound call.
type RouteOutboundOptions struct {
	// AllowHandshakeStates permits delivery on a connection that is not yet
	// `complete`, for the Connection Protocol's auto-response path (spec §9
	// open question, resolved as option (a): "relax the router for
	// handshake-type messages" rather than mutate state for side effects).
	AllowHandshakeStates bool
}

// RouteOutbound implements the outbound pipeline (spec §4.2).
func (r *Router) RouteOutbound(ctx context.Context, msg *service.DIDCommMsg, connectionID string, opts RouteOutboundOptions) (*service.MessageRecord, error) {
	conn, err := r.conns.GetByID(ctx, connectionID)
	if err != nil {
		return nil, service.WrapError(service.CodeConnectionNotFound, "load connection "+connectionID, err)
	}

	if !conn.Usable() && !opts.AllowHandshakeStates {
		return nil, service.NewError(service.CodeConnectionNotActive,
			"connection "+connectionID+" is not in a state permitting outbound messages")
	}

	if conn.TheirEndpoint == "" {
		return nil, service.NewError(service.CodeNoEndpoint, "connection "+connectionID+" has no known endpoint")
	}

	record := &service.MessageRecord{
		MessageID:    msg.ID(),
		ThreadID:     msg.ThreadID(),
		ParentID:     msg.ParentThreadID(),
		ConnectionID: connectionID,
		Type:         msg.Type(),
		Direction:    service.DirectionOutbound,
		FromDID:      conn.MyDID,
		ToDIDs:       []string{conn.TheirDID},
		State:        service.MessageStatePending,
	}

	var bodyHolder struct {
		Body map[string]interface{} `json:"body"`
	}

	if err := msg.Decode(&bodyHolder); err != nil {
		routerLogger.Warnf("routeOutbound: could not capture body for %s: %v", msg.ID(), err)
	} else {
		record.Body = bodyHolder.Body
	}

	row, _, err := r.messages.Upsert(ctx, record)
	if err != nil {
		return nil, err
	}

	enc, err := r.kmsClient.Encrypt(ctx, kms.EncryptRequest{To: conn.TheirDID, From: conn.MyDID, Plaintext: msg.Raw()})
	if err != nil {
		r.metrics.RecordFailed("encryption")

		failed, uerr := r.messages.UpdateState(ctx, row.ID, service.MessageStateFailed, err.Error())
		if uerr != nil {
			return nil, uerr
		}

		return failed, service.WrapError(service.CodeEncryptionFailed, "encrypt outbound message", err)
	}

	if err := r.deliver(ctx, conn.TheirEndpoint, enc.JWE); err != nil {
		r.metrics.RecordFailed("delivery")

		failed, uerr := r.messages.UpdateState(ctx, row.ID, service.MessageStateFailed, err.Error())
		if uerr != nil {
			return nil, uerr
		}

		return failed, err
	}

	r.metrics.RecordRouted(record.Type)

	return r.messages.UpdateState(ctx, row.ID, service.MessageStateSent, "")
}

// stampReceivedAt annotates the decrypted message with its receipt time
// under `~received_time`, using sjson to set a nested field on the raw JSON
// rather than round-tripping the whole message through a struct. Parse
// failure leaves msg untouched — the stamp is an annotation, not a
// correctness requirement.
func stampReceivedAt(msg *service.DIDCommMsg) *service.DIDCommMsg {
	stamped, err := sjson.SetBytes(msg.Raw(), "~received_time", time.Now().Unix())
	if err != nil {
		routerLogger.Warnf("routeInbound: could not stamp receipt time on %s: %v", msg.ID(), err)
		return msg
	}

	reparsed, err := service.ParseDIDCommMsg(stamped)
	if err != nil {
		return msg
	}

	return reparsed
}

func (r *Router) deliver(ctx context.Context, endpoint string, jwe []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jwe))
	if err != nil {
		return service.WrapError(service.CodeDeliveryFailed, "build outbound request", err)
	}

	req.Header.Set("Content-Type", DIDCommContentType)

	resp, err := r.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return service.WrapError(service.CodeDeliveryTimeout, "outbound delivery to "+endpoint+" timed out", err)
		}

		return service.WrapError(service.CodeDeliveryFailed, "outbound delivery to "+endpoint+" failed", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return service.NewError(service.CodeDeliveryFailed,
			fmt.Sprintf("outbound delivery to %s returned status %d", endpoint, resp.StatusCode))
	}

	return nil
}

// RouteInbound implements the inbound pipeline (spec §4.2). It does not
// persist the message itself — handlers own persistence, per spec §4.2
// step 5.
func (r *Router) RouteInbound(ctx context.Context, jwe []byte, recipientDID string) error {
	dec, err := r.kmsClient.Decrypt(ctx, kms.DecryptRequest{DID: recipientDID, JWE: jwe})
	if err != nil {
		return service.WrapError(service.CodeRoutingFailed, "decrypt inbound envelope for "+recipientDID, err)
	}

	msg, err := service.ParseDIDCommMsg(dec.Plaintext)
	if err != nil {
		return err
	}

	msg = stampReceivedAt(msg)

	var connectionID string

	if conn, cerr := r.conns.GetByDIDs(ctx, recipientDID, msg.From()); cerr == nil {
		connectionID = conn.ID
	}

	mctx := MessageContext{
		ConnectionID: connectionID,
		Direction:    service.DirectionInbound,
		Transport:    "http",
		Encrypted:    true,
		ReceivedAt:   time.Now().Unix(),
	}

	if err := r.registry.Route(ctx, msg, mctx); err != nil {
		routerLogger.Errorf("routeInbound: %s: %v", msg.Type(), err)
		return err
	}

	return nil
}
