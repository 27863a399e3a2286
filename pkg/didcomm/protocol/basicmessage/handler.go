/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package basicmessage implements the Basic Message (2.0) protocol handler
// (spec §4.5): a plain-text chat message with language and threading
// metadata.
package basicmessage

import (
	"context"
	"time"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/dispatcher"
	"github.com/dbn-network/didcomm-core/pkg/repository"
)

var logger = log.New("protocol/basicmessage")

// ProtocolURI is the basicmessage/2.0 protocol family URI.
const ProtocolURI = "https://didcomm.org/basicmessage/2.0"

const typeMessage = ProtocolURI + "/message"

// ReceivedEvent is the payload of the basicmessage.received notification
// (spec §4.5, §9 "event emission"): the core calls NotifyBasicMessage with
// this and leaves delivery to subscribers outside the core.
type ReceivedEvent struct {
	MessageID        string
	ConnectionID     string
	FromDID          string
	Content          string
	Lang             string
	CreatedTime      int64
	Encrypted        bool
	AttachmentsCount int
}

// Notifier is the outbound notification port described by spec §9: the core
// calls it, subscribers (an SSE stream, a UI event bus) live outside.
type Notifier interface {
	NotifyBasicMessage(event ReceivedEvent)
}

type noopNotifier struct{}

func (noopNotifier) NotifyBasicMessage(ReceivedEvent) {}

// Handler is the Basic Message protocol handler (spec §4.5).
type Handler struct {
	messages repository.MessageRepository
	notifier Notifier
}

// NewHandler builds a basicmessage Handler. A nil notifier is replaced with
// a no-op so the core can run without a UI event bus wired in.
func NewHandler(messages repository.MessageRepository, notifier Notifier) *Handler {
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Handler{messages: messages, notifier: notifier}
}

// Type implements dispatcher.ProtocolHandler.
func (h *Handler) Type() string { return ProtocolURI }

// Name implements dispatcher.ProtocolHandler.
func (h *Handler) Name() string { return "basicmessage" }

// Version implements dispatcher.ProtocolHandler.
func (h *Handler) Version() string { return "2.0" }

// Accept implements dispatcher.ProtocolHandler.
func (h *Handler) Accept(messageType string) bool {
	return dispatcher.HasProtocolPrefix(messageType, ProtocolURI)
}

// Handle implements dispatcher.ProtocolHandler (spec §4.5).
func (h *Handler) Handle(ctx context.Context, msg *service.DIDCommMsg, mctx dispatcher.MessageContext) error {
	content := msg.Body("content").String()
	if content == "" {
		logger.Warnf("basicmessage %s: empty or missing body.content, dropping", msg.ID())
		return nil
	}

	if !mctx.Encrypted {
		logger.Warnf("basicmessage %s: received unencrypted, expected encryption", msg.ID())
	}

	lang := msg.Body("lang").String()
	if lang == "" {
		lang = msg.Body("~l10n.locale").String()
	}

	createdTime := msg.CreatedTime()
	if createdTime == 0 {
		createdTime = time.Now().Unix()
	}

	attachments := msg.Attachments()

	record := &service.MessageRecord{
		MessageID:    msg.ID(),
		ThreadID:     msg.ThreadID(),
		ConnectionID: mctx.ConnectionID,
		Type:         msg.Type(),
		Direction:    mctx.Direction,
		FromDID:      msg.From(),
		ToDIDs:       msg.To(),
		Body:         map[string]interface{}{"content": content},
		State:        service.MessageStateProcessed,
		Metadata: map[string]interface{}{
			"lang":                     lang,
			"transport":                mctx.Transport,
			"encrypted":                mctx.Encrypted,
			"created_time":             createdTime,
			"attachments_out_of_scope": len(attachments) > 0,
		},
	}

	row, inserted, err := h.messages.Upsert(ctx, record)
	if err != nil {
		return err
	}

	if !inserted {
		return nil
	}

	h.notifier.NotifyBasicMessage(ReceivedEvent{
		MessageID:        row.MessageID,
		ConnectionID:     row.ConnectionID,
		FromDID:          row.FromDID,
		Content:          content,
		Lang:             lang,
		CreatedTime:      createdTime,
		Encrypted:        mctx.Encrypted,
		AttachmentsCount: len(attachments),
	})

	return nil
}
