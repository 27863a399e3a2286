/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config holds the process-wide tunables consumed by the DIDComm
// core. The HTTP/REST surface that would normally source these from a file
// or environment is out of scope here, so this is a plain struct with
// sane defaults rather than a config-file loader.
package config

import "time"

// Config holds the tunables for the KMS adapter, the outbound delivery
// pipeline, and invitation construction.
type Config struct {
	// KMSTimeout bounds every individual KMS call (encrypt, decrypt,
	// resolve, create, revoke).
	KMSTimeout time.Duration

	// KMSRetryBackoff is the constant backoff interval used between KMS
	// retry attempts for transient failures.
	KMSRetryBackoff time.Duration

	// KMSMaxRetries caps the number of retry attempts after the first for
	// a single KMS call; each attempt gets its own KMSTimeout.
	KMSMaxRetries uint64

	// DeliveryTimeout bounds the outbound HTTP POST to a peer endpoint.
	DeliveryTimeout time.Duration

	// AdvertisedProtocols is the set of protocol URIs advertised in
	// out-of-band invitations and DID Document service blocks created by
	// this agent.
	AdvertisedProtocols []string
}

// DefaultConfig returns the configuration used when the caller has no
// overrides: 30s hard timeouts on KMS and delivery per spec §5, matching
// the three built-in protocols this core ships.
func DefaultConfig() *Config {
	return &Config{
		KMSTimeout:      30 * time.Second,
		KMSRetryBackoff: 200 * time.Millisecond,
		KMSMaxRetries:   3,
		DeliveryTimeout: 30 * time.Second,
		AdvertisedProtocols: []string{
			"https://didcomm.org/connections/1.0",
			"https://didcomm.org/basicmessage/2.0",
			"https://didcomm.org/trust-ping/2.0",
		},
	}
}
