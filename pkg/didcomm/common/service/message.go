/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "time"

// MessageRecord is one DIDComm message, inbound or outbound (spec §3).
type MessageRecord struct {
	ID           string `json:"id"`
	MessageID    string `json:"messageId"`
	ThreadID     string `json:"threadId,omitempty"`
	ParentID     string `json:"parentId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`

	Type      string           `json:"type"`
	Direction MessageDirection `json:"direction"`
	FromDID   string           `json:"fromDid,omitempty"`
	ToDIDs    []string         `json:"toDids,omitempty"`

	Body        map[string]interface{}   `json:"body,omitempty"`
	Attachments []map[string]interface{} `json:"attachments,omitempty"`

	State        MessageState `json:"state"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	RetryCount   int          `json:"retryCount"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// SetMeta assigns a metadata key, initializing the map lazily.
func (m *MessageRecord) SetMeta(key string, value interface{}) {
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}

	m.Metadata[key] = value
}
