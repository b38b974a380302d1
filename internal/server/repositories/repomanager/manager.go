// Package repomanager constructs the repository set over one database
// handle and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/fedanode/result-service/internal/server/repositories/results"
	"github.com/fedanode/result-service/internal/server/repositories/tags"
)

type RepositoryManager interface {
	Conn() *sql.DB
	Results() results.Repository
	Tags() tags.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
