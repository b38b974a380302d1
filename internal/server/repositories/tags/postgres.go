package tags

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fedanode/result-service/internal/dbx"
	"github.com/fedanode/result-service/internal/server/models"
)

type PostgresRepository struct {
	db   dbx.DBTX
	conn *sql.DB
}

func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn, conn: conn}
}

func (r *PostgresRepository) GetOrCreateTag(ctx context.Context, name, projectID string) (*models.Tag, error) {
	// upsert keyed on (name, project_id); DO UPDATE so RETURNING always
	// yields the row
	query := `
		INSERT INTO tags (name, project_id)
		VALUES ($1, $2)
		ON CONFLICT (name, project_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, project_id
	`
	tag := &models.Tag{}
	if err := r.db.QueryRowContext(ctx, query, name, projectID).
		Scan(&tag.ID, &tag.Name, &tag.ProjectID); err != nil {
		return nil, fmt.Errorf("upsert tag: %w", err)
	}
	return tag, nil
}

func (r *PostgresRepository) LinkResult(ctx context.Context, tagID int64, resultID, filename string) error {
	query := `
		INSERT INTO tagged_results (tag_id, result_id, filename)
		VALUES ($1, $2, $3)
		ON CONFLICT (tag_id, result_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, tagID, resultID, filename); err != nil {
		return fmt.Errorf("link result to tag: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TagResult(ctx context.Context, name, projectID, resultID, filename string) (*models.Tag, error) {
	var tag *models.Tag
	err := dbx.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := &PostgresRepository{db: tx, conn: r.conn}

		t, err := repo.GetOrCreateTag(ctx, name, projectID)
		if err != nil {
			return err
		}
		tag = t
		return repo.LinkResult(ctx, t.ID, resultID, filename)
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (r *PostgresRepository) ListTags(ctx context.Context, projectID string) ([]*models.Tag, error) {
	query := `SELECT id, name, project_id FROM tags WHERE project_id = $1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	var result []*models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.ProjectID); err != nil {
			return nil, err
		}
		result = append(result, &tag)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) ListTaggedResults(ctx context.Context, projectID, tagName string) ([]*models.TaggedResult, error) {
	query := `
		SELECT tr.tag_id, tr.result_id, tr.filename
		FROM tagged_results tr
		JOIN tags t ON t.id = tr.tag_id
		WHERE t.project_id = $1 AND t.name = $2
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, tagName)
	if err != nil {
		return nil, fmt.Errorf("select tagged results: %w", err)
	}
	defer rows.Close()

	var result []*models.TaggedResult
	for rows.Next() {
		var tr models.TaggedResult
		if err := rows.Scan(&tr.TagID, &tr.ResultID, &tr.Filename); err != nil {
			return nil, err
		}
		result = append(result, &tr)
	}
	return result, rows.Err()
}
