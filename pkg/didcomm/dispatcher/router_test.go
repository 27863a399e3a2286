/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dbn-network/didcomm-core/pkg/config"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/kms"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

// TestMain verifies the router's outbound/inbound pipelines (HTTP client)
// leave no goroutines running after the test binary exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConnLookup struct {
	byID map[string]*service.ConnectionRecord
}

func (f *fakeConnLookup) GetByID(_ context.Context, id string) (*service.ConnectionRecord, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "not found")
	}

	return c, nil
}

func (f *fakeConnLookup) GetByDIDs(_ context.Context, myDID, theirDID string) (*service.ConnectionRecord, error) {
	for _, c := range f.byID {
		if c.MyDID == myDID && c.TheirDID == theirDID {
			return c, nil
		}
	}

	return nil, service.NewError(service.CodeConnectionNotFound, "not found")
}

func TestRouteOutboundRejectsNonActiveConnection(t *testing.T) {
	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", State: service.StateRequested, TheirEndpoint: "https://peer.example"},
	}}

	r := NewRouter(conns, repository.NewInMemoryMessageRepository(), kms.NewMockClient(), NewProtocolRegistry(), nil)

	msg, err := service.NewDIDCommMsg("m1", "https://didcomm.org/basicmessage/2.0/message", "me", nil, "", nil)
	require.NoError(t, err)

	_, err = r.RouteOutbound(context.Background(), msg, "c1", RouteOutboundOptions{})
	require.Equal(t, service.CodeConnectionNotActive, service.CodeOf(err))
}

func TestRouteOutboundRequiresEndpoint(t *testing.T) {
	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", State: service.StateComplete},
	}}

	r := NewRouter(conns, repository.NewInMemoryMessageRepository(), kms.NewMockClient(), NewProtocolRegistry(), nil)

	msg, err := service.NewDIDCommMsg("m1", "https://didcomm.org/basicmessage/2.0/message", "me", nil, "", nil)
	require.NoError(t, err)

	_, err = r.RouteOutbound(context.Background(), msg, "c1", RouteOutboundOptions{})
	require.Equal(t, service.CodeNoEndpoint, service.CodeOf(err))
}

func TestRouteOutboundDeliversAndMarksSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, DIDCommContentType, req.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", MyDID: "did:peer:me", TheirDID: "did:peer:you", State: service.StateComplete, TheirEndpoint: srv.URL},
	}}

	r := NewRouter(conns, repository.NewInMemoryMessageRepository(), kms.NewMockClient(), NewProtocolRegistry(), config.DefaultConfig())

	msg, err := service.NewDIDCommMsg("m1", "https://didcomm.org/basicmessage/2.0/message", "did:peer:me", []string{"did:peer:you"}, "", map[string]interface{}{"content": "hi"})
	require.NoError(t, err)

	row, err := r.RouteOutbound(context.Background(), msg, "c1", RouteOutboundOptions{})
	require.NoError(t, err)
	require.Equal(t, service.MessageStateSent, row.State)
}

func TestRouteOutboundMarksFailedOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", MyDID: "did:peer:me", TheirDID: "did:peer:you", State: service.StateComplete, TheirEndpoint: srv.URL},
	}}

	repo := repository.NewInMemoryMessageRepository()
	r := NewRouter(conns, repo, kms.NewMockClient(), NewProtocolRegistry(), config.DefaultConfig())

	msg, err := service.NewDIDCommMsg("m1", "https://didcomm.org/basicmessage/2.0/message", "did:peer:me", []string{"did:peer:you"}, "", nil)
	require.NoError(t, err)

	row, err := r.RouteOutbound(context.Background(), msg, "c1", RouteOutboundOptions{})
	require.Error(t, err)
	require.Equal(t, service.MessageStateFailed, row.State)
}

func TestRouteOutboundAllowsHandshakeStateException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer srv.Close()

	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", MyDID: "did:peer:me", TheirDID: "did:peer:you", State: service.StateRequested, TheirEndpoint: srv.URL},
	}}

	r := NewRouter(conns, repository.NewInMemoryMessageRepository(), kms.NewMockClient(), NewProtocolRegistry(), config.DefaultConfig())

	msg, err := service.NewDIDCommMsg("m1", "https://didcomm.org/connections/1.0/response", "did:peer:me", []string{"did:peer:you"}, "", nil)
	require.NoError(t, err)

	_, err = r.RouteOutbound(context.Background(), msg, "c1", RouteOutboundOptions{AllowHandshakeStates: true})
	require.NoError(t, err)
}

func TestRouteInboundDispatchesThroughRegistry(t *testing.T) {
	conns := &fakeConnLookup{byID: map[string]*service.ConnectionRecord{
		"c1": {ID: "c1", MyDID: "did:peer:me", TheirDID: "did:peer:you", State: service.StateComplete},
	}}

	client := kms.NewMockClient()

	reg := NewProtocolRegistry()
	handled := &stubHandler{typ: "https://didcomm.org/basicmessage/2.0"}
	reg.Register(handled)

	r := NewRouter(conns, repository.NewInMemoryMessageRepository(), client, reg, config.DefaultConfig())

	plaintext, err := service.NewDIDCommMsg("m1", "https://didcomm.org/basicmessage/2.0/message", "did:peer:you", []string{"did:peer:me"}, "", map[string]interface{}{"content": "hi"})
	require.NoError(t, err)

	enc, err := client.Encrypt(context.Background(), kms.EncryptRequest{To: "did:peer:me", From: "did:peer:you", Plaintext: plaintext.Raw()})
	require.NoError(t, err)

	err = r.RouteInbound(context.Background(), enc.JWE, "did:peer:me")
	require.NoError(t, err)
	require.Len(t, handled.handled, 1)
}
