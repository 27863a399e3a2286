/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection is a thin client over the Connection Manager, the
// shape an embedding application (a REST layer, a CLI) links against
// instead of reaching into pkg/manager directly.
package connection

import "github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"

// QueryParams holds parameters for a connection listing, generalized from
// the teacher's narrower connection_id/their_did/my_did filter set to the
// full ConnectionFilter this core's listConnections supports (SPEC_FULL.md).
type QueryParams struct {
	State         string `json:"state,omitempty"`
	Role          string `json:"role,omitempty"`
	TheirDID      string `json:"their_did,omitempty"`
	Tag           string `json:"tag,omitempty"`
	InvitationID  string `json:"invitation_id,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

func (q QueryParams) toFilter() (service.ConnectionState, service.ConnectionRole) {
	return service.ConnectionState(q.State), service.ConnectionRole(q.Role)
}

// MessageQueryParams holds parameters for a message listing, the
// supplemented counterpart of QueryParams for Message entities.
type MessageQueryParams struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Direction    string `json:"direction,omitempty"`
	State        string `json:"state,omitempty"`
	Type         string `json:"type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}
