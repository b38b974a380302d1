package results

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/server/models"
)

// InMemoryRepository mirrors the Postgres ledger semantics behind a mutex.
// Used in tests and as a reference for the claim/CAS contract.
type InMemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*models.ResultFile
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rows: make(map[string]*models.ResultFile)}
}

func cloneRow(row *models.ResultFile) *models.ResultFile {
	c := *row
	if row.LastAttemptAt != nil {
		t := *row.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if row.LeaseUntil != nil {
		t := *row.LeaseUntil
		c.LeaseUntil = &t
	}
	return &c
}

func (r *InMemoryRepository) Create(ctx context.Context, row *models.ResultFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[row.ID]; ok {
		return fmt.Errorf("duplicate id %s", row.ID)
	}

	now := time.Now()
	c := cloneRow(row)
	c.State = models.StatePending
	c.NextAttemptAt = now
	c.CreatedAt = now
	c.UpdatedAt = now
	r.rows[row.ID] = c
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.ResultFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneRow(row), nil
}

func (r *InMemoryRepository) LeaseNext(ctx context.Context, limit int, leaseTTL time.Duration) ([]*models.ResultFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	var eligible []*models.ResultFile
	for _, row := range r.rows {
		if row.State.Terminal() {
			continue
		}
		if row.LeaseUntil != nil && row.LeaseUntil.After(now) {
			continue
		}
		if row.NextAttemptAt.After(now) {
			continue
		}
		eligible = append(eligible, row)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	var claimed []*models.ResultFile
	for _, row := range eligible {
		expiry := now.Add(leaseTTL)
		row.State = models.StatePending
		row.LeaseUntil = &expiry
		row.UpdatedAt = now
		claimed = append(claimed, cloneRow(row))
	}
	return claimed, nil
}

func (r *InMemoryRepository) Advance(ctx context.Context, id string, from, to models.State, fields AdvanceFields) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("%w: no edge %s -> %s", common.ErrConflict, from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.State != from {
		return common.ErrConflict
	}

	row.State = to
	if fields.HubFileID != "" {
		row.HubFileID = fields.HubFileID
	}
	if to.Terminal() {
		row.LeaseUntil = nil
	}
	row.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) RecordFailure(ctx context.Context, id string, cause string, maxAttempts int, nextDelay time.Duration) (models.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.State.Terminal() {
		return "", common.ErrConflict
	}

	now := time.Now()
	row.AttemptCount++
	row.LastError = cause
	row.LastAttemptAt = &now
	row.NextAttemptAt = now.Add(nextDelay)
	row.LeaseUntil = nil
	row.UpdatedAt = now

	if row.AttemptCount >= maxAttempts {
		row.State = models.StateFailed
	} else {
		row.State = models.StatePending
	}
	return row.State, nil
}

func (r *InMemoryRepository) Fail(ctx context.Context, id string, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.State.Terminal() {
		return common.ErrConflict
	}

	now := time.Now()
	row.State = models.StateFailed
	row.LastError = cause
	row.AttemptCount++
	row.LastAttemptAt = &now
	row.LeaseUntil = nil
	row.UpdatedAt = now
	return nil
}

func (r *InMemoryRepository) CountByState(ctx context.Context) (map[models.State]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.State]int)
	for _, row := range r.rows {
		counts[row.State]++
	}
	return counts, nil
}
