/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/dbn-network/didcomm-core/pkg/common/log"
	"github.com/dbn-network/didcomm-core/pkg/didcomm/common/service"
	"github.com/dbn-network/didcomm-core/pkg/metrics"
)

var connLogger = log.New("repository/connection")

// InMemoryConnectionRepository is a mutex-guarded, map-backed
// ConnectionRepository, the reference implementation named by spec §4.6. It
// is suitable for tests and single-process deployments; a durable
// implementation (Postgres, CouchDB — see the teacher's storage drivers)
// satisfies the same interface.
type InMemoryConnectionRepository struct {
	mu      sync.RWMutex
	byID    map[string]*service.ConnectionRecord
	metrics *metrics.Recorder
}

// NewInMemoryConnectionRepository returns an empty repository.
func NewInMemoryConnectionRepository() *InMemoryConnectionRepository {
	return &InMemoryConnectionRepository{byID: map[string]*service.ConnectionRecord{}}
}

// SetMetrics attaches a metrics.Recorder; every state transition this
// repository performs from then on adjusts the connections-by-state gauge.
func (r *InMemoryConnectionRepository) SetMetrics(rec *metrics.Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics = rec
}

func cloneConnection(c *service.ConnectionRecord) *service.ConnectionRecord {
	clone := &service.ConnectionRecord{}
	_ = copier.Copy(clone, c)

	return clone
}

// Insert implements ConnectionRepository. Invariant 2 (spec §3): at most one
// connection per (myDid, theirDid) when theirDid is non-empty.
func (r *InMemoryConnectionRepository) Insert(_ context.Context, c *service.ConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	if c.TheirDID != "" {
		for _, existing := range r.byID {
			if existing.MyDID == c.MyDID && existing.TheirDID == c.TheirDID {
				return service.NewError(service.CodeConnectionAlreadyExists,
					"a connection already exists for this (myDid, theirDid) pair")
			}
		}
	}

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	c.UpdatedAt = now
	if c.LastActiveAt.IsZero() {
		c.LastActiveAt = now
	}

	r.byID[c.ID] = cloneConnection(c)
	r.metrics.SetConnectionState("", string(c.State))

	return nil
}

// GetByID implements ConnectionRepository.
func (r *InMemoryConnectionRepository) GetByID(_ context.Context, id string) (*service.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	return cloneConnection(c), nil
}

// GetByDIDs implements ConnectionRepository.
func (r *InMemoryConnectionRepository) GetByDIDs(_ context.Context, myDID, theirDID string) (*service.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.byID {
		if c.MyDID == myDID && c.TheirDID == theirDID {
			return cloneConnection(c), nil
		}
	}

	return nil, service.NewError(service.CodeConnectionNotFound, "no connection for given DID pair")
}

// GetByTheirDID implements ConnectionRepository.
func (r *InMemoryConnectionRepository) GetByTheirDID(_ context.Context, theirDID string) (*service.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.byID {
		if c.TheirDID == theirDID {
			return cloneConnection(c), nil
		}
	}

	return nil, service.NewError(service.CodeConnectionNotFound, "no connection for theirDid "+theirDID)
}

// GetByInvitationCorrelation implements ConnectionRepository, looking up the
// inviter-side connection record created for an invitation by myDID and the
// invitation's `@id`, as stored in the record's Invitation at
// createInvitation time (spec §4.1).
func (r *InMemoryConnectionRepository) GetByInvitationCorrelation(_ context.Context, myDID, invitationID string) (*service.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.byID {
		if storedID, _ := c.Invitation["@id"].(string); c.MyDID == myDID && storedID != "" && storedID == invitationID {
			return cloneConnection(c), nil
		}
	}

	return nil, service.NewError(service.CodeConnectionNotFound, "no connection for invitation "+invitationID)
}

func matchesConnectionFilter(c *service.ConnectionRecord, f ConnectionFilter) bool {
	if f.State != "" && service.NormalizeState(c.State) != service.NormalizeState(f.State) {
		return false
	}

	if f.Role != "" && c.Role != f.Role {
		return false
	}

	if f.TheirDID != "" && c.TheirDID != f.TheirDID {
		return false
	}

	if f.CorrelationID != "" && c.CorrelationID() != f.CorrelationID {
		return false
	}

	if f.Tag != "" {
		found := false

		for _, tag := range c.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

// List implements ConnectionRepository, sorted newest-first for stable
// pagination.
func (r *InMemoryConnectionRepository) List(_ context.Context, filter ConnectionFilter, page Page) (*ConnectionList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*service.ConnectionRecord, 0, len(r.byID))

	for _, c := range r.byID {
		if matchesConnectionFilter(c, filter) {
			matched = append(matched, c)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	matched = paginate(matched, page)

	out := make([]*service.ConnectionRecord, len(matched))
	for i, c := range matched {
		out[i] = cloneConnection(c)
	}

	return &ConnectionList{Items: out, Total: total}, nil
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}

	end := len(items)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}

	return items[page.Offset:end]
}

// UpdateState implements ConnectionRepository's atomic
// `UPDATE ... WHERE state=$prev` contract. The transition is validated only
// advisorily: an invalid edge is logged, not rejected, leaving strict
// enforcement to the Connection Manager (spec §4.1).
func (r *InMemoryConnectionRepository) UpdateState(_ context.Context, id string, prevState, newState service.ConnectionState) (*service.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	if service.NormalizeState(c.State) != service.NormalizeState(prevState) {
		return nil, service.NewError(service.CodeInvalidConnectionState,
			"connection "+id+" is not in the expected prior state")
	}

	if !service.CanTransition(c.State, newState) {
		connLogger.Warnf("connection %s: advisory transition check failed %s -> %s", id, c.State, newState)
	}

	r.metrics.SetConnectionState(string(c.State), string(newState))

	c.State = newState
	now := time.Now()
	c.UpdatedAt = now
	c.LastActiveAt = now

	return cloneConnection(c), nil
}

// UpdateCapabilities implements ConnectionRepository.
func (r *InMemoryConnectionRepository) UpdateCapabilities(_ context.Context, id string, endpoint string, protocols []string, services []service.Service) (*service.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	c.TheirEndpoint = endpoint
	c.TheirProtocols = protocols
	c.TheirServices = services
	c.UpdatedAt = time.Now()

	return cloneConnection(c), nil
}

// UpdatePeerInfo implements ConnectionRepository.
func (r *InMemoryConnectionRepository) UpdatePeerInfo(_ context.Context, id string, theirDID, theirLabel string) (*service.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	if c.TheirDID != "" && c.TheirDID != theirDID {
		return nil, service.NewError(service.CodeInvalidConnectionState,
			"connection "+id+" already bound to a different theirDid")
	}

	c.TheirDID = theirDID
	if theirLabel != "" {
		c.TheirLabel = theirLabel
	}

	c.UpdatedAt = time.Now()

	return cloneConnection(c), nil
}

// UpdateMetadata implements ConnectionRepository, merging keys rather than
// replacing the map wholesale.
func (r *InMemoryConnectionRepository) UpdateMetadata(_ context.Context, id string, metadata map[string]interface{}) (*service.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	for k, v := range metadata {
		c.SetMeta(k, v)
	}

	c.UpdatedAt = time.Now()

	return cloneConnection(c), nil
}

// Delete implements ConnectionRepository.
func (r *InMemoryConnectionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return service.NewError(service.CodeConnectionNotFound, "connection "+id+" not found")
	}

	delete(r.byID, id)
	r.metrics.SetConnectionState(string(c.State), "")

	return nil
}
