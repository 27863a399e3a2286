/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes the operational counters/gauges this core emits:
// connections by state, messages routed/failed, and capability discovery
// latency, using prometheus/client_golang in the style of the pack's
// go-mcast metrics wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics surface the router, the in-memory connection
// repository, and the capability discoverer report into. It is safe for concurrent use (the underlying
// prometheus collectors are).
type Recorder struct {
	ConnectionsByState *prometheus.GaugeVec
	MessagesRouted     *prometheus.CounterVec
	MessagesFailed     *prometheus.CounterVec
	DiscoveryLatency   prometheus.Histogram
}

// New builds a Recorder and registers its collectors with reg. Pass
// prometheus.NewRegistry() for test isolation, or prometheus.DefaultRegisterer
// in a process composition root.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ConnectionsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "didcomm_core",
			Name:      "connections_by_state",
			Help:      "Current number of connection records in each state.",
		}, []string{"state"}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didcomm_core",
			Name:      "messages_routed_total",
			Help:      "Outbound messages successfully delivered, by protocol type.",
		}, []string{"type"}),
		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didcomm_core",
			Name:      "messages_failed_total",
			Help:      "Outbound messages that failed encryption or delivery, by reason.",
		}, []string{"reason"}),
		DiscoveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "didcomm_core",
			Name:      "discovery_latency_seconds",
			Help:      "Time spent resolving a peer DID Document during capability discovery.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.ConnectionsByState, r.MessagesRouted, r.MessagesFailed, r.DiscoveryLatency)

	return r
}

// ObserveDiscovery records how long a capability discovery call took.
func (r *Recorder) ObserveDiscovery(start time.Time) {
	if r == nil {
		return
	}

	r.DiscoveryLatency.Observe(time.Since(start).Seconds())
}

// RecordRouted increments the routed counter for a message type.
func (r *Recorder) RecordRouted(msgType string) {
	if r == nil {
		return
	}

	r.MessagesRouted.WithLabelValues(msgType).Inc()
}

// RecordFailed increments the failed counter for a failure reason.
func (r *Recorder) RecordFailed(reason string) {
	if r == nil {
		return
	}

	r.MessagesFailed.WithLabelValues(reason).Inc()
}

// SetConnectionState adjusts the connections-by-state gauge: decrements
// `from` (if non-empty) and increments `to`, mirroring a connection row's
// observed transition.
func (r *Recorder) SetConnectionState(from, to string) {
	if r == nil {
		return
	}

	if from != "" {
		r.ConnectionsByState.WithLabelValues(from).Dec()
	}

	if to != "" {
		r.ConnectionsByState.WithLabelValues(to).Inc()
	}
}
