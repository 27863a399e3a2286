/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection implements the Connection (1.0) protocol handler and
// out-of-band invitation handling (spec §4.1, §4.5, §6), grounded on the
// teacher's didexchange state machine and out-of-band service.
package connection

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

// invitationSchema enforces the minimal out-of-band invitation shape (spec
// §6) before the typed decode runs.
var invitationSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["@type", "@id"],
	"properties": {
		"@type": {"type": "string"},
		"@id": {"type": "string"},
		"services": {"type": "array"}
	}
}`)

// InvitationType is the out-of-band invitation's @type, fixed by spec §6.
const InvitationType = "https://didcomm.org/out-of-band/2.0/invitation"

// InvitationURLBase is the scheme/host/path the OOB invitation is wrapped
// in (spec §6): `https://didcomm.org/oob?_oob=<base64url(JSON)>`.
const InvitationURLBase = "https://didcomm.org/oob"

// Invitation is the out-of-band invitation object (spec §6).
type Invitation struct {
	Type     string                 `json:"@type"`
	ID       string                 `json:"@id"`
	Label    string                 `json:"label,omitempty"`
	Goal     string                 `json:"goal,omitempty"`
	GoalCode string                 `json:"goal_code,omitempty"`
	Accept   []string               `json:"accept"`
	Services []service.Service      `json:"services"`
	CID      string                 `json:"dbn:cid,omitempty"`
	Target   string                 `json:"dbn:target,omitempty"`
}

// BuildInvitationParams configures BuildInvitation.
type BuildInvitationParams struct {
	Label        string
	Goal         string
	GoalCode     string
	TargetDID    string
	CorrelationID string
	Protocols    []string
	Service      service.Service
}

// BuildInvitation constructs an out-of-band invitation object (spec §4.1
// createInvitation step 3).
func BuildInvitation(p BuildInvitationParams) *Invitation {
	svc := p.Service
	svc.Protocols = p.Protocols

	return &Invitation{
		Type:     InvitationType,
		ID:       uuid.New().String(),
		Label:    p.Label,
		Goal:     p.Goal,
		GoalCode: p.GoalCode,
		Accept:   []string{"didcomm/v2"},
		Services: []service.Service{svc},
		CID:      p.CorrelationID,
		Target:   p.TargetDID,
	}
}

// EncodeInvitationURL base64url-encodes inv and wraps it as the OOB
// invitation URL (spec §4.1 step 4, §6).
func EncodeInvitationURL(inv *Invitation) (string, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("marshal invitation: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)

	return InvitationURLBase + "?_oob=" + encoded, nil
}

// DecodeInvitation reverses EncodeInvitationURL, accepting either the full
// URL or the raw JSON object (spec §4.1 step 1 "invitation (URL or
// object)").
func DecodeInvitation(input string) (*Invitation, error) {
	trimmed := strings.TrimSpace(input)

	var raw []byte

	switch {
	case strings.HasPrefix(trimmed, "{"):
		raw = []byte(trimmed)
	default:
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, service.WrapError(service.CodeInvalidInvitation, "parse invitation URL", err)
		}

		encoded := u.Query().Get("_oob")
		if encoded == "" {
			return nil, service.NewError(service.CodeInvalidInvitation, "invitation URL missing _oob parameter")
		}

		decoded, err := decodeBase64URL(encoded)
		if err != nil {
			return nil, service.WrapError(service.CodeInvalidInvitation, "base64url-decode invitation", err)
		}

		raw = decoded
	}

	if err := validateInvitationShape(raw); err != nil {
		return nil, err
	}

	inv := &Invitation{}
	if err := json.Unmarshal(raw, inv); err != nil {
		return nil, service.WrapError(service.CodeInvalidInvitation, "parse invitation JSON", err)
	}

	if inv.Type != InvitationType {
		return nil, service.NewError(service.CodeInvalidInvitation, "unexpected invitation @type "+inv.Type)
	}

	return inv, nil
}

func validateInvitationShape(raw []byte) error {
	result, err := gojsonschema.Validate(invitationSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return service.WrapError(service.CodeInvalidInvitation, "validate invitation shape", err)
	}

	if !result.Valid() {
		return service.NewError(service.CodeInvalidInvitation, result.Errors()[0].String())
	}

	return nil
}

func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}

	return base64.URLEncoding.DecodeString(s)
}
