/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// DIDCommMsg is the plaintext DIDComm message on the wire (spec §6): a JSON
// object with id, type, optional from/to/thid/pthid/created_time, a body,
// and optional attachments. It is kept as raw JSON internally (in the style
// of the teacher's DIDCommMsgMap, which treats a message as a decoded map
// plus typed accessors) so that handlers can use gjson/sjson for nested
// field access without re-marshalling whole structs.
type DIDCommMsg struct {
	raw []byte
}

// ParseDIDCommMsg parses raw JSON bytes into a DIDCommMsg and validates the
// minimal shape the router requires (spec §4.2 routeInbound step 2): id,
// type, and body must be present.
func ParseDIDCommMsg(raw []byte) (*DIDCommMsg, error) {
	if !gjson.ValidBytes(raw) {
		return nil, NewError(CodeInvalidMessage, "message is not valid JSON")
	}

	msg := &DIDCommMsg{raw: raw}

	if msg.ID() == "" {
		return nil, NewError(CodeInvalidMessage, "message missing id")
	}

	if msg.Type() == "" {
		return nil, NewError(CodeInvalidMessage, "message missing type")
	}

	if !gjson.GetBytes(raw, "body").Exists() {
		return nil, NewError(CodeInvalidMessage, "message missing body")
	}

	return msg, nil
}

// NewDIDCommMsg builds a DIDCommMsg from a typed outbound message.
func NewDIDCommMsg(id, msgType string, from string, to []string, threadID string, body map[string]interface{}) (*DIDCommMsg, error) {
	if body == nil {
		body = map[string]interface{}{}
	}

	m := map[string]interface{}{
		"id":   id,
		"type": msgType,
		"body": body,
	}

	if from != "" {
		m["from"] = from
	}

	if len(to) > 0 {
		m["to"] = to
	}

	if threadID != "" {
		m["thid"] = threadID
	}

	m["created_time"] = time.Now().Unix()

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal didcomm message: %w", err)
	}

	return &DIDCommMsg{raw: raw}, nil
}

// Raw returns the underlying JSON bytes.
func (m *DIDCommMsg) Raw() []byte {
	return m.raw
}

// ID returns the message's `id` header.
func (m *DIDCommMsg) ID() string {
	return gjson.GetBytes(m.raw, "id").String()
}

// Type returns the message's `type` header.
func (m *DIDCommMsg) Type() string {
	return gjson.GetBytes(m.raw, "type").String()
}

// From returns the `from` header, if present.
func (m *DIDCommMsg) From() string {
	return gjson.GetBytes(m.raw, "from").String()
}

// To returns the `to` header as a string slice.
func (m *DIDCommMsg) To() []string {
	res := gjson.GetBytes(m.raw, "to").Array()

	out := make([]string, 0, len(res))
	for _, r := range res {
		out = append(out, r.String())
	}

	return out
}

// ThreadID returns the `thid` header, if present.
func (m *DIDCommMsg) ThreadID() string {
	return gjson.GetBytes(m.raw, "thid").String()
}

// ParentThreadID returns the `pthid` header, if present.
func (m *DIDCommMsg) ParentThreadID() string {
	return gjson.GetBytes(m.raw, "pthid").String()
}

// CreatedTime returns the `created_time` header in seconds since epoch, or
// now if absent.
func (m *DIDCommMsg) CreatedTime() int64 {
	r := gjson.GetBytes(m.raw, "created_time")
	if !r.Exists() {
		return time.Now().Unix()
	}

	return r.Int()
}

// Body returns the result of a gjson path query scoped to body.<path>.
func (m *DIDCommMsg) Body(path string) gjson.Result {
	return gjson.GetBytes(m.raw, "body."+path)
}

// Decode unmarshals the full message into v.
func (m *DIDCommMsg) Decode(v interface{}) error {
	return json.Unmarshal(m.raw, v)
}

// Attachments returns the raw `attachments` array, as maps.
func (m *DIDCommMsg) Attachments() []map[string]interface{} {
	res := gjson.GetBytes(m.raw, "attachments")
	if !res.IsArray() {
		return nil
	}

	var out []map[string]interface{}

	for _, a := range res.Array() {
		var v map[string]interface{}
		if err := json.Unmarshal([]byte(a.Raw), &v); err == nil {
			out = append(out, v)
		}
	}

	return out
}
