/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
)

// InMemoryMessageRepository is a mutex-guarded, map-backed MessageRepository
// (spec §4.6).
type InMemoryMessageRepository struct {
	mu          sync.RWMutex
	byID        map[string]*service.MessageRecord
	byMessageID map[string]string // messageId -> id, invariant 3
}

// NewInMemoryMessageRepository returns an empty repository.
func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{
		byID:        map[string]*service.MessageRecord{},
		byMessageID: map[string]string{},
	}
}

func cloneMessage(m *service.MessageRecord) *service.MessageRecord {
	clone := &service.MessageRecord{}
	_ = copier.Copy(clone, m)

	return clone
}

// Upsert implements MessageRepository, enforcing invariant 3 (messageId
// uniquely identifies at most one row) and invariant 5 (idempotent duplicate
// inbound handling): a second Upsert for the same MessageID returns the
// existing row with inserted=false rather than erroring.
func (r *InMemoryMessageRepository) Upsert(_ context.Context, m *service.MessageRecord) (*service.MessageRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byMessageID[m.MessageID]; ok {
		return cloneMessage(r.byID[existingID]), false, nil
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	r.byID[m.ID] = cloneMessage(m)
	r.byMessageID[m.MessageID] = m.ID

	return cloneMessage(m), true, nil
}

// GetByID implements MessageRepository.
func (r *InMemoryMessageRepository) GetByID(_ context.Context, id string) (*service.MessageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeMessageNotFound, "message "+id+" not found")
	}

	return cloneMessage(m), nil
}

// GetByMessageID implements MessageRepository.
func (r *InMemoryMessageRepository) GetByMessageID(_ context.Context, messageID string) (*service.MessageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byMessageID[messageID]
	if !ok {
		return nil, service.NewError(service.CodeMessageNotFound, "no message with messageId "+messageID)
	}

	return cloneMessage(r.byID[id]), nil
}

func matchesMessageFilter(m *service.MessageRecord, f MessageFilter) bool {
	if f.ConnectionID != "" && m.ConnectionID != f.ConnectionID {
		return false
	}

	if f.Direction != "" && m.Direction != f.Direction {
		return false
	}

	if f.State != "" && m.State != f.State {
		return false
	}

	if f.Type != "" && m.Type != f.Type {
		return false
	}

	return true
}

// List implements MessageRepository, sorted newest-first.
func (r *InMemoryMessageRepository) List(_ context.Context, filter MessageFilter, page Page) (*MessageList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*service.MessageRecord, 0, len(r.byID))

	for _, m := range r.byID {
		if matchesMessageFilter(m, filter) {
			matched = append(matched, m)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	matched = paginate(matched, page)

	out := make([]*service.MessageRecord, len(matched))
	for i, m := range matched {
		out[i] = cloneMessage(m)
	}

	return &MessageList{Items: out, Total: total}, nil
}

// Search implements MessageRepository with a simple case-insensitive
// substring match over type, sender DID, and string-valued body fields, a
// reference stand-in for the
// full-text search a durable store (e.g. Postgres tsvector) would offer.
func (r *InMemoryMessageRepository) Search(_ context.Context, query string, page Page) (*MessageList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	matched := make([]*service.MessageRecord, 0, len(r.byID))

	for _, m := range r.byID {
		if messageMatchesQuery(m, needle) {
			matched = append(matched, m)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	matched = paginate(matched, page)

	out := make([]*service.MessageRecord, len(matched))
	for i, m := range matched {
		out[i] = cloneMessage(m)
	}

	return &MessageList{Items: out, Total: total}, nil
}

func messageMatchesQuery(m *service.MessageRecord, needle string) bool {
	if strings.Contains(strings.ToLower(m.Type), needle) {
		return true
	}

	if strings.Contains(strings.ToLower(m.FromDID), needle) {
		return true
	}

	for _, v := range m.Body {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}

	return false
}

// UpdateState implements MessageRepository.
func (r *InMemoryMessageRepository) UpdateState(_ context.Context, id string, state service.MessageState, errMsg string) (*service.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeMessageNotFound, "message "+id+" not found")
	}

	m.State = state
	m.ErrorMessage = errMsg

	if state == service.MessageStateSent || state == service.MessageStateDelivered || state == service.MessageStateProcessed {
		now := time.Now()
		m.ProcessedAt = &now
	}

	return cloneMessage(m), nil
}

// IncrementRetry implements MessageRepository, used by the supplemented
// RetryMessage operation before a redelivery attempt.
func (r *InMemoryMessageRepository) IncrementRetry(_ context.Context, id string) (*service.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeMessageNotFound, "message "+id+" not found")
	}

	m.RetryCount++
	m.State = service.MessageStatePending
	m.ErrorMessage = ""

	return cloneMessage(m), nil
}

// Delete implements MessageRepository.
func (r *InMemoryMessageRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return service.NewError(service.CodeMessageNotFound, "message "+id+" not found")
	}

	delete(r.byMessageID, m.MessageID)
	delete(r.byID, id)

	return nil
}
