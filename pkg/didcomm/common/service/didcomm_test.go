/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDIDCommMsg(t *testing.T) {
	t.Run("valid message parses", func(t *testing.T) {
		msg, err := ParseDIDCommMsg([]byte(`{"id":"m1","type":"https://didcomm.org/basicmessage/2.0/message","from":"did:example:alice","to":["did:example:bob"],"body":{"content":"hi"}}`))
		require.NoError(t, err)
		require.Equal(t, "m1", msg.ID())
		require.Equal(t, "https://didcomm.org/basicmessage/2.0/message", msg.Type())
		require.Equal(t, "did:example:alice", msg.From())
		require.Equal(t, []string{"did:example:bob"}, msg.To())
		require.Equal(t, "hi", msg.Body("content").String())
	})

	t.Run("missing body is rejected", func(t *testing.T) {
		_, err := ParseDIDCommMsg([]byte(`{"id":"m1","type":"x"}`))
		require.Error(t, err)
		require.Equal(t, CodeInvalidMessage, CodeOf(err))
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		_, err := ParseDIDCommMsg([]byte(`{"type":"x","body":{}}`))
		require.Error(t, err)
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		_, err := ParseDIDCommMsg([]byte(`not json`))
		require.Error(t, err)
	})
}

func TestNewDIDCommMsg(t *testing.T) {
	msg, err := NewDIDCommMsg("m1", "https://didcomm.org/trust-ping/2.0/ping", "did:example:alice",
		[]string{"did:example:bob"}, "thread-1", map[string]interface{}{"response_requested": true})
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID())
	require.Equal(t, "thread-1", msg.ThreadID())
	require.True(t, msg.Body("response_requested").Bool())
	require.NotZero(t, msg.CreatedTime())
}
