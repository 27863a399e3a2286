/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

func TestInvitationRoundTrip(t *testing.T) {
	inv := BuildInvitation(BuildInvitationParams{
		Label:         "Alice",
		TargetDID:     "did:web:e.com:bob",
		CorrelationID: "corr-1",
		Protocols:     []string{"https://didcomm.org/basicmessage/2.0"},
		Service: service.Service{
			ID: "did:peer:alice#didcomm", Type: "DIDCommMessaging", ServiceEndpoint: "https://alice.example/inbox",
		},
	})

	url, err := EncodeInvitationURL(inv)
	require.NoError(t, err)

	decoded, err := DecodeInvitation(url)
	require.NoError(t, err)
	require.Equal(t, inv.Label, decoded.Label)
	require.Equal(t, inv.CID, decoded.CID)
	require.Equal(t, inv.Target, decoded.Target)
	require.Equal(t, inv.Services[0].ServiceEndpoint, decoded.Services[0].ServiceEndpoint)
}

func TestDecodeInvitationRejectsWrongType(t *testing.T) {
	_, err := DecodeInvitation(`{"@type":"https://didcomm.org/out-of-band/2.0/something-else","@id":"x"}`)
	require.Equal(t, service.CodeInvalidInvitation, service.CodeOf(err))
}

func TestDecodeInvitationAcceptsRawJSON(t *testing.T) {
	inv := BuildInvitation(BuildInvitationParams{Label: "Alice"})
	_, err := EncodeInvitationURL(inv) // sanity: must not error
	require.NoError(t, err)

	decoded, err := DecodeInvitation(`{"@type":"` + InvitationType + `","@id":"x","accept":["didcomm/v2"],"services":[]}`)
	require.NoError(t, err)
	require.Equal(t, "x", decoded.ID)
}

func TestDecodeInvitationRejectsMissingOOBParam(t *testing.T) {
	_, err := DecodeInvitation("https://didcomm.org/oob?nothing=here")
	require.Equal(t, service.CodeInvalidInvitation, service.CodeOf(err))
}
