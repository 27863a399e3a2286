/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbn-network/didcomm-core/pkg/doc/did"
	"github.com/dbn-network/didcomm-core/pkg/kms"
)

func TestDiscoverSelectsFirstDIDCommEndpoint(t *testing.T) {
	client := kms.NewMockClient()
	client.SeedDID(&did.Doc{
		ID: "did:peer:bob",
		Service: []did.Service{
			{ID: "#other", Type: "SomeOtherService", ServiceEndpoint: "https://irrelevant.example"},
			{ID: "#didcomm", Type: "DIDCommMessaging", ServiceEndpoint: []interface{}{"https://bob.example/inbox"}, Protocols: []string{"https://didcomm.org/basicmessage/2.0"}},
		},
	})

	caps, err := NewDiscoverer(client).Discover(context.Background(), "did:peer:bob")
	require.NoError(t, err)
	require.Equal(t, "https://bob.example/inbox", caps.Endpoint)
	require.Equal(t, []string{"https://didcomm.org/basicmessage/2.0"}, caps.Protocols)
	require.Len(t, caps.Services, 2)
}

func TestDiscoverWithZeroDIDCommServicesStillCollectsProtocols(t *testing.T) {
	client := kms.NewMockClient()
	client.SeedDID(&did.Doc{
		ID: "did:peer:bob",
		Service: []did.Service{
			{ID: "#other", Type: "SomeOtherService", ServiceEndpoint: "https://irrelevant.example", Protocols: []string{"custom/1.0"}},
		},
	})

	caps, err := NewDiscoverer(client).Discover(context.Background(), "did:peer:bob")
	require.NoError(t, err)
	require.Empty(t, caps.Endpoint)
	require.Equal(t, []string{"custom/1.0"}, caps.Protocols)
}

func TestSupportsProtocolReturnsFalseOnResolutionFailure(t *testing.T) {
	client := kms.NewMockClient()

	ok := NewDiscoverer(client).SupportsProtocol(context.Background(), "did:peer:unknown", "anything")
	require.False(t, ok)
}

func TestNormalizeEndpointHandlesAllShapes(t *testing.T) {
	require.Equal(t, "https://a", did.NormalizeEndpoint("https://a"))
	require.Equal(t, "https://b", did.NormalizeEndpoint([]string{"https://b"}))
	require.Equal(t, "https://c", did.NormalizeEndpoint(map[string]interface{}{"uri": "https://c"}))
}

func TestFromDocumentDedupesProtocolsAcrossServices(t *testing.T) {
	doc := &did.Doc{
		ID: "did:peer:bob",
		Service: []did.Service{
			{Type: "DIDCommMessaging", ServiceEndpoint: "https://bob.example/1", Protocols: []string{"a", "b"}},
			{Type: "DIDComm", ServiceEndpoint: "https://bob.example/2", Protocols: []string{"b", "c"}},
		},
	}

	caps := FromDocument(doc)
	require.Equal(t, []string{"a", "b", "c"}, caps.Protocols)
	require.Equal(t, "https://bob.example/1", caps.Endpoint)
}
