/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package framework is the composition root: it wires the KMS adapter,
// repositories, capability discovery, protocol registry (with the three
// built-in handlers registered), message router, and connection manager
// into one running instance, the way the teacher's own aries-framework-go
// root package wires its services behind functional options.
package framework

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dbn-network/didcomm-core/pkg/capability"
	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/protocol/basicmessage"
	connectionproto "github.com/dbn-network/didcomm-core/pkg/didcomm/protocol/connection"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/protocol/trustping"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/manager"
	"github.com/dbn-network/didcomm-core/pkg/metrics"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

// errNoKMSClient is returned by New when WithKMSClient was never supplied;
// the KMS collaborator is a hard dependency (spec §4.6), not defaultable.
var errNoKMSClient = errors.New("framework: WithKMSClient is required")

// Option configures a Framework at construction time, in the style of the
// teacher's functional-options root package.
type Option func(*options)

type options struct {
	kmsClient  kms.Client
	conns      repository.ConnectionRepository
	messages   repository.MessageRepository
	cfg        *config.Config
	registerer prometheus.Registerer
	localLabel string
	notifier   basicmessage.Notifier
}

// WithKMSClient supplies the external KMS collaborator (spec §4.6). Required.
func WithKMSClient(c kms.Client) Option {
	return func(o *options) { o.kmsClient = c }
}

// WithConnectionRepository overrides the default in-memory connection store.
func WithConnectionRepository(r repository.ConnectionRepository) Option {
	return func(o *options) { o.conns = r }
}

// WithMessageRepository overrides the default in-memory message store.
func WithMessageRepository(r repository.MessageRepository) Option {
	return func(o *options) { o.messages = r }
}

// WithConfig overrides config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithMetricsRegisterer enables Prometheus metrics, registered against reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithLocalLabel sets the label this agent presents during the connection
// handshake (spec §4.5, the connection request/response `label` field).
func WithLocalLabel(label string) Option {
	return func(o *options) { o.localLabel = label }
}

// WithBasicMessageNotifier wires the event-bus port an embedding
// application uses to learn about inbound basic messages (spec §9).
func WithBasicMessageNotifier(n basicmessage.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Framework is a fully wired instance: a Connection Manager and Message
// Router sharing one KMS adapter, repository pair, and protocol registry.
type Framework struct {
	Manager  *manager.Manager
	Router   *dispatcher.Router
	Registry *dispatcher.ProtocolRegistry
	Conns    repository.ConnectionRepository
	Messages repository.MessageRepository
}

// New builds a Framework from the given options, defaulting unset
// repositories and config to in-memory/standard-config implementations.
// WithKMSClient is the one required option: without it New returns
// errNoKMSClient.
func New(opts ...Option) (*Framework, error) {
	o := &options{
		conns:      repository.NewInMemoryConnectionRepository(),
		messages:   repository.NewInMemoryMessageRepository(),
		cfg:        config.DefaultConfig(),
		localLabel: "didcomm-core",
	}

	for _, apply := range opts {
		apply(o)
	}

	if o.kmsClient == nil {
		return nil, errNoKMSClient
	}

	adapter := kms.NewAdapter(o.kmsClient, o.cfg)
	discoverer := capability.NewDiscoverer(adapter)

	var rec *metrics.Recorder
	if o.registerer != nil {
		rec = metrics.New(o.registerer)
		discoverer.SetMetrics(rec)

		if settable, ok := o.conns.(interface{ SetMetrics(*metrics.Recorder) }); ok {
			settable.SetMetrics(rec)
		}
	}

	registry := dispatcher.NewProtocolRegistry()
	router := dispatcher.NewRouter(o.conns, o.messages, adapter, registry, o.cfg)

	if rec != nil {
		router.SetMetrics(rec)
	}

	connHandler := connectionproto.NewHandler(o.conns, o.messages, discoverer, router, o.localLabel)
	registry.Register(connHandler)
	registry.Register(trustping.NewHandler(o.conns, o.messages))
	registry.Register(basicmessage.NewHandler(o.messages, o.notifier))

	mgr := manager.New(o.conns, o.messages, adapter, discoverer, router, o.cfg)

	return &Framework{Manager: mgr, Router: router, Registry: registry, Conns: o.conns, Messages: o.messages}, nil
}
