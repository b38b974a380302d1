package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/dbx"
	"github.com/fedanode/result-service/internal/server/models"
)

// PostgresRepository implements the ledger over a dbx.DBTX (*sql.DB or
// *sql.Tx). Claim and transition statements are single conditional UPDATEs
// so they stay atomic even when dispatcher workers run as separate
// processes.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rowColumns = `id, owner_subject, analysis_id, job_id, kind, blob_key, size_bytes,
	content_digest, state, attempt_count, last_error, last_attempt_at,
	next_attempt_at, lease_until, hub_file_id, created_at, updated_at`

func scanRow(s interface {
	Scan(dest ...any) error
}) (*models.ResultFile, error) {
	var row models.ResultFile
	var lastAttemptAt, leaseUntil sql.NullTime

	err := s.Scan(
		&row.ID, &row.OwnerSubject, &row.AnalysisID, &row.JobID, &row.Kind,
		&row.BlobKey, &row.SizeBytes, &row.ContentDigest, &row.State,
		&row.AttemptCount, &row.LastError, &lastAttemptAt,
		&row.NextAttemptAt, &leaseUntil, &row.HubFileID,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastAttemptAt.Valid {
		row.LastAttemptAt = &lastAttemptAt.Time
	}
	if leaseUntil.Valid {
		row.LeaseUntil = &leaseUntil.Time
	}
	return &row, nil
}

func (r *PostgresRepository) Create(ctx context.Context, row *models.ResultFile) error {
	query := `
		INSERT INTO result_files
			(id, owner_subject, analysis_id, job_id, kind, blob_key, size_bytes, content_digest, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.OwnerSubject, row.AnalysisID, row.JobID, row.Kind,
		row.BlobKey, row.SizeBytes, row.ContentDigest, models.StatePending)
	if err != nil {
		return fmt.Errorf("insert result file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ResultFile, error) {
	query := `SELECT ` + rowColumns + ` FROM result_files WHERE id = $1`

	row, err := scanRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("select result file: %w", err)
	}
	return row, nil
}

// LeaseNext claims submittable rows in one UPDATE over a SKIP LOCKED
// subselect. Resetting the state to PENDING inside the same statement is
// what reclaims rows a crashed worker left in ENCRYPTING or UPLOADING.
func (r *PostgresRepository) LeaseNext(ctx context.Context, limit int, leaseTTL time.Duration) ([]*models.ResultFile, error) {
	query := `
		UPDATE result_files
		SET state = 'PENDING',
			lease_until = now() + make_interval(secs => $1),
			updated_at = now()
		WHERE id IN (
			SELECT id FROM result_files
			WHERE state IN ('PENDING', 'ENCRYPTING', 'UPLOADING')
			  AND (lease_until IS NULL OR lease_until < now())
			  AND next_attempt_at <= now()
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + rowColumns

	rows, err := r.db.QueryContext(ctx, query, leaseTTL.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("lease rows: %w", err)
	}
	defer rows.Close()

	var claimed []*models.ResultFile
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *PostgresRepository) Advance(ctx context.Context, id string, from, to models.State, fields AdvanceFields) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("%w: no edge %s -> %s", common.ErrConflict, from, to)
	}

	query := `
		UPDATE result_files
		SET state = $3,
			hub_file_id = COALESCE(NULLIF($4, ''), hub_file_id),
			lease_until = CASE WHEN $3 IN ('DELIVERED', 'FAILED') THEN NULL ELSE lease_until END,
			updated_at = now()
		WHERE id = $1 AND state = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, from, to, fields.HubFileID)
	if err != nil {
		return fmt.Errorf("advance %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, cause string, maxAttempts int, nextDelay time.Duration) (models.State, error) {
	query := `
		UPDATE result_files
		SET attempt_count = attempt_count + 1,
			last_error = $2,
			last_attempt_at = now(),
			state = CASE WHEN attempt_count + 1 >= $3 THEN 'FAILED' ELSE 'PENDING' END,
			next_attempt_at = now() + make_interval(secs => $4),
			lease_until = NULL,
			updated_at = now()
		WHERE id = $1 AND state NOT IN ('DELIVERED', 'FAILED')
		RETURNING state
	`
	var state models.State
	err := r.db.QueryRowContext(ctx, query, id, cause, maxAttempts, nextDelay.Seconds()).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrConflict
		}
		return "", fmt.Errorf("record failure for %s: %w", id, err)
	}
	return state, nil
}

func (r *PostgresRepository) Fail(ctx context.Context, id string, cause string) error {
	query := `
		UPDATE result_files
		SET state = 'FAILED',
			last_error = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = now(),
			lease_until = NULL,
			updated_at = now()
		WHERE id = $1 AND state NOT IN ('DELIVERED', 'FAILED')
	`
	res, err := r.db.ExecContext(ctx, query, id, cause)
	if err != nil {
		return fmt.Errorf("fail %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *PostgresRepository) CountByState(ctx context.Context) (map[models.State]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, count(*) FROM result_files GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.State]int)
	for rows.Next() {
		var state models.State
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
