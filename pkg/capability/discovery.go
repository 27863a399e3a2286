/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package capability implements Capability Discovery (spec §4.4): resolving
// a peer DID via the KMS, parsing its DID Document, and extracting the
// endpoint, supported protocols, and service list the Connection Manager
// folds into a connection record.
package capability

import (
	"context"
	"sort"
	"time"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/doc/did"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/metrics"
)

var logger = log.New("capability")

// Capabilities is the result of discoverCapabilities: the endpoint to
// deliver to, the union of advertised protocols, and the raw service list.
type Capabilities struct {
	Endpoint  string
	Protocols []string
	Services  []service.Service
}

// Discoverer resolves and extracts peer capabilities, wrapping a kms.Client
// (usually a *kms.Adapter, already wrapped with retry/timeout behavior).
type Discoverer struct {
	kms     kms.Client
	metrics *metrics.Recorder
}

// NewDiscoverer builds a Discoverer around the given KMS client.
func NewDiscoverer(client kms.Client) *Discoverer {
	return &Discoverer{kms: client}
}

// SetMetrics attaches a metrics.Recorder discovery latency is reported
// into. Optional — a nil recorder (the default) skips metrics.
func (d *Discoverer) SetMetrics(rec *metrics.Recorder) {
	d.metrics = rec
}

// Discover resolves didID's DID Document and extracts its DIDComm
// capabilities (spec §4.4).
func (d *Discoverer) Discover(ctx context.Context, didID string) (*Capabilities, error) {
	start := time.Now()
	defer d.metrics.ObserveDiscovery(start)

	doc, err := d.kms.GetDIDDocument(ctx, didID)
	if err != nil {
		return nil, service.WrapError(service.CodeDIDResolutionFailed, "resolve DID document for "+didID, err)
	}

	return FromDocument(doc), nil
}

// FromDocument extracts capabilities from an already-resolved DID Document,
// without touching the KMS — used by the Connection Protocol handler's
// fast path over an inline `did_doc` attachment (spec §4.5 step 4).
func FromDocument(doc *did.Doc) *Capabilities {
	caps := &Capabilities{}

	protocolSet := map[string]bool{}

	for _, svc := range doc.Service {
		caps.Services = append(caps.Services, service.Service{
			ID:              svc.ID,
			Type:            svc.Type,
			ServiceEndpoint: did.NormalizeEndpoint(svc.ServiceEndpoint),
			Protocols:       svc.Protocols,
		})

		for _, p := range svc.Protocols {
			protocolSet[p] = true
		}

		if caps.Endpoint == "" && did.IsDIDCommService(svc) {
			caps.Endpoint = did.NormalizeEndpoint(svc.ServiceEndpoint)
		}
	}

	caps.Protocols = sortedKeys(protocolSet)

	return caps
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// SupportsProtocol discovers didID's capabilities and reports whether
// protocol is among them; any error (including resolution failure) is
// treated as unsupported rather than propagated, per spec §4.4.
func (d *Discoverer) SupportsProtocol(ctx context.Context, didID, protocol string) bool {
	caps, err := d.Discover(ctx, didID)
	if err != nil {
		logger.Warnf("supportsProtocol(%s): discovery failed: %v", didID, err)
		return false
	}

	for _, p := range caps.Protocols {
		if p == protocol {
			return true
		}
	}

	return false
}
