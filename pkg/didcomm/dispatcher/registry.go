/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher implements the Protocol Registry and Message Router
// (spec §4.2, §4.3): a startup-time, read-only-after-init mapping from
// protocol URI to ProtocolHandler, and the outbound/inbound pipelines that
// drive encryption, delivery, and dispatch through it.
package dispatcher

import (
	"context"
	"strings"
	"sync"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

var registryLogger = log.New("dispatcher/registry")

// MessageContext carries the routing context a handler needs alongside the
// raw message (spec §4.2 step 4).
type MessageContext struct {
	ConnectionID string
	Direction    service.MessageDirection
	Transport    string
	Encrypted    bool
	ReceivedAt   int64
}

// ProtocolHandler is the capability set every built-in and future protocol
// implements (spec §4.3, §9 "protocol handler polymorphism"): a type/name/
// version identity, an Accept predicate, and the Handle entrypoint.
type ProtocolHandler interface {
	Type() string
	Name() string
	Version() string
	Accept(messageType string) bool
	Handle(ctx context.Context, msg *service.DIDCommMsg, mctx MessageContext) error
}

// ProtocolRegistry is a process-wide, startup-populated mapping from
// protocol URI to ProtocolHandler (spec §4.3). Safe for concurrent Route
// calls after Register calls have stopped (spec §5: "written at startup and
// read-only thereafter"); the mutex guards against registration races
// during tests that register handlers concurrently.
type ProtocolRegistry struct {
	mu       sync.RWMutex
	exact    map[string]ProtocolHandler
	prefixed []ProtocolHandler
}

// NewProtocolRegistry returns an empty registry.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{exact: map[string]ProtocolHandler{}}
}

// Register adds or replaces the handler for h.Type(). Re-registration
// overwrites with a warning, per spec §4.3.
func (r *ProtocolRegistry) Register(h ProtocolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exact[h.Type()]; exists {
		registryLogger.Warnf("protocol handler for %s re-registered, overwriting", h.Type())
	}

	r.exact[h.Type()] = h

	for i, existing := range r.prefixed {
		if existing.Type() == h.Type() {
			r.prefixed[i] = h
			return
		}
	}

	r.prefixed = append(r.prefixed, h)
}

// Route dispatches msg to exactly one handler: an exact match on the
// message type first, else the first registered handler whose Accept
// returns true (spec §4.3). No match is HANDLER_NOT_FOUND.
func (r *ProtocolRegistry) Route(ctx context.Context, msg *service.DIDCommMsg, mctx MessageContext) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgType := msg.Type()

	if h, ok := r.exact[msgType]; ok {
		return h.Handle(ctx, msg, mctx)
	}

	for _, h := range r.prefixed {
		if h.Accept(msgType) {
			return h.Handle(ctx, msg, mctx)
		}
	}

	return service.NewError(service.CodeHandlerNotFound, "no handler registered for message type "+msgType)
}

// HasProtocolPrefix is a helper built-in handlers use for Accept: true when
// messageType equals protocolURI or is namespaced under it.
func HasProtocolPrefix(messageType, protocolURI string) bool {
	return messageType == protocolURI || strings.HasPrefix(messageType, protocolURI)
}
