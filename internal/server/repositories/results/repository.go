// Package results implements the submission ledger: the durable record of
// every result file's delivery lifecycle. All dispatcher coordination goes
// through the ledger's atomic claim and compare-and-swap operations; no
// in-process locks are shared between workers.
package results

import (
	"context"
	"time"

	"github.com/fedanode/result-service/internal/server/models"
)

// AdvanceFields carries optional row updates applied together with a state
// transition.
type AdvanceFields struct {
	// HubFileID records the Hub-side bucket file id on delivery.
	HubFileID string
}

type Repository interface {
	// Create inserts a new ledger row. The id must be unique; ids are never
	// reused.
	Create(ctx context.Context, row *models.ResultFile) error

	// GetByID returns the row or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.ResultFile, error)

	// LeaseNext atomically claims up to limit submittable rows for leaseTTL
	// and returns them oldest-first. A row is submittable when it is in a
	// non-terminal state, its lease is absent or expired, and its next
	// attempt is due. Rows left in ENCRYPTING or UPLOADING by a crashed
	// worker are reset to PENDING as part of the same claim. Two concurrent
	// callers never receive the same row within one lease window.
	LeaseNext(ctx context.Context, limit int, leaseTTL time.Duration) ([]*models.ResultFile, error)

	// Advance performs a compare-and-swap state transition from -> to and
	// returns common.ErrConflict if another worker already moved the row.
	Advance(ctx context.Context, id string, from, to models.State, fields AdvanceFields) error

	// RecordFailure increments the attempt counter and stores the cause.
	// The row is requeued to PENDING with the next attempt deferred by
	// nextDelay, or finalized to FAILED once maxAttempts is reached. The
	// resulting state is returned.
	RecordFailure(ctx context.Context, id string, cause string, maxAttempts int, nextDelay time.Duration) (models.State, error)

	// Fail finalizes the row to FAILED immediately, bypassing the retry
	// budget. Used for integrity failures that must not be retried blindly.
	Fail(ctx context.Context, id string, cause string) error

	// CountByState returns the number of rows per state, for readiness and
	// operator visibility.
	CountByState(ctx context.Context) (map[models.State]int, error)
}
