/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "time"

// ConnectionRole is the side a Connection record represents.
type ConnectionRole string

// The two connection roles, fixed at creation and immutable thereafter.
const (
	RoleInviter ConnectionRole = "inviter"
	RoleInvitee ConnectionRole = "invitee"
)

// InvitationKind distinguishes an invitation addressed at anyone ("open")
// from one addressed at a specific peer DID ("targeted").
type InvitationKind string

// The two invitation kinds (spec §3 metadata.invitationType).
const (
	InvitationOpen     InvitationKind = "open"
	InvitationTargeted InvitationKind = "targeted"
)

// Service is a uniform service-descriptor shape, used both for a peer's
// advertised services (capability discovery) and for services embedded in
// an invitation or DID Document.
type Service struct {
	ID              string   `json:"id,omitempty"`
	Type            string   `json:"type,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint,omitempty"`
	Protocols       []string `json:"protocols,omitempty"`
}

// ConnectionRecord defines one side of a didcomm peer-to-peer relationship
// (spec §3). It supersedes the teacher's narrower didexchange connection
// record: TheirDID/MyDID/role are retained from the original, everything
// else is added to carry the invitation, capability, and metadata surface
// this core's connection manager maintains.
type ConnectionRecord struct {
	ID    string          `json:"id"`
	MyDID string          `json:"myDid"`
	TheirDID string       `json:"theirDid"`
	Role  ConnectionRole  `json:"role"`
	State ConnectionState `json:"state"`

	TheirLabel     string    `json:"theirLabel,omitempty"`
	TheirEndpoint  string    `json:"theirEndpoint,omitempty"`
	TheirProtocols []string  `json:"theirProtocols,omitempty"`
	TheirServices  []Service `json:"theirServices,omitempty"`

	Invitation    map[string]interface{} `json:"invitation,omitempty"`
	InvitationURL string                  `json:"invitationUrl,omitempty"`

	Tags     []string               `json:"tags,omitempty"`
	Notes    string                 `json:"notes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// CorrelationID returns the operator-defined tracing id carried in
// Metadata["correlationId"], or "" if absent.
func (c *ConnectionRecord) CorrelationID() string {
	return c.metaString("correlationId")
}

// InvitationType returns the invitation kind carried in
// Metadata["invitationType"], or "" if absent.
func (c *ConnectionRecord) InvitationType() InvitationKind {
	return InvitationKind(c.metaString("invitationType"))
}

func (c *ConnectionRecord) metaString(key string) string {
	if c.Metadata == nil {
		return ""
	}

	v, ok := c.Metadata[key].(string)
	if !ok {
		return ""
	}

	return v
}

// SetMeta assigns a metadata key, initializing the map lazily.
func (c *ConnectionRecord) SetMeta(key string, value interface{}) {
	if c.Metadata == nil {
		c.Metadata = map[string]interface{}{}
	}

	c.Metadata[key] = value
}

// Usable reports whether the connection is in a state from which ordinary
// (non-handshake) messages can be sent, treating legacy aliases as
// equivalent to StateComplete (spec §9).
func (c *ConnectionRecord) Usable() bool {
	return UsableForOutbound(c.State)
}
