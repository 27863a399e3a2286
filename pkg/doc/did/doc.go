/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

// Package did provides a DID Document model trimmed to what capability
// discovery needs: identity, and a service list whose serviceEndpoint may
// take any of the shapes the wire allows. Verification methods, proofs, and
// the several historical @context schemas that the full DID Core model
// carries are out of scope — the core never verifies or builds a DID
// Document itself, it only reads the service block a KMS resolution
// returns.
package did

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Doc is a DID Document (https://www.w3.org/TR/did-core/), trimmed to the
// fields capability discovery consumes.
type Doc struct {
	Context []string  `json:"@context,omitempty"`
	ID      string    `json:"id"`
	Service []Service `json:"service,omitempty"`
}

// Service is one entry of a DID Document's service block. ServiceEndpoint
// is left as interface{} because the wire allows a bare string, a
// one-element string array, or an object carrying uri/url/serviceEndpoint
// — see NormalizeEndpoint.
type Service struct {
	ID              string      `json:"id,omitempty"`
	Type            string      `json:"type,omitempty"`
	ServiceEndpoint interface{} `json:"serviceEndpoint,omitempty"`
	Protocols       []string    `json:"protocols,omitempty"`
}

// ParseDocument parses a DID Document from JSON bytes.
func ParseDocument(data []byte) (*Doc, error) {
	doc := &Doc{}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse DID document: %w", err)
	}

	if doc.ID == "" {
		return nil, fmt.Errorf("parse DID document: missing id")
	}

	return doc, nil
}

// DIDCommServiceTypes are the service `type` values that identify a
// DIDComm-capable endpoint (spec §4.4).
var DIDCommServiceTypes = []string{"DIDCommMessaging", "DIDComm", "MessagingService"}

// IsDIDCommService reports whether svc advertises a DIDComm-style type:
// exactly DIDCommMessaging/MessagingService, or containing "DIDComm".
func IsDIDCommService(svc Service) bool {
	for _, t := range DIDCommServiceTypes {
		if svc.Type == t {
			return true
		}
	}

	return strings.Contains(svc.Type, "DIDComm")
}

// NormalizeEndpoint extracts a single URL from the several shapes a
// serviceEndpoint may take on the wire (spec §4.4, §8 boundary behaviors):
// a bare string, a one-element (or larger) string array (first element
// wins), or an object carrying uri/url/serviceEndpoint.
func NormalizeEndpoint(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok {
				return s
			}
		}
	case map[string]interface{}:
		var m struct {
			URI             string `mapstructure:"uri"`
			URL             string `mapstructure:"url"`
			ServiceEndpoint string `mapstructure:"serviceEndpoint"`
			Endpoint        string `mapstructure:"endpoint"`
		}

		if err := mapstructure.Decode(v, &m); err == nil {
			for _, candidate := range []string{m.URI, m.URL, m.ServiceEndpoint, m.Endpoint} {
				if candidate != "" {
					return candidate
				}
			}
		}
	}

	return ""
}

// DecodeService decodes a loosely-typed service block (e.g. extracted from
// an inline DID Document attachment) into a Service, mirroring the
// teacher's use of mapstructure in didexchange's getServiceBlock.
func DecodeService(raw interface{}) (*Service, error) {
	var svc Service

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &svc})
	if err != nil {
		return nil, fmt.Errorf("init service decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode service block: %w", err)
	}

	return &svc, nil
}
