// Package tags stores the grouping of node-local results under
// project-scoped tags.
package tags

import (
	"context"

	"github.com/fedanode/result-service/internal/server/models"
)

type Repository interface {
	// GetOrCreateTag returns the tag with the given name in the project,
	// creating it if needed.
	GetOrCreateTag(ctx context.Context, name, projectID string) (*models.Tag, error)

	// LinkResult attaches a local result file to a tag.
	LinkResult(ctx context.Context, tagID int64, resultID, filename string) error

	// TagResult upserts the tag and links the result to it in one
	// transaction, so a failed link never leaves an orphaned tag visible.
	TagResult(ctx context.Context, name, projectID, resultID, filename string) (*models.Tag, error)

	// ListTags returns all tags of a project.
	ListTags(ctx context.Context, projectID string) ([]*models.Tag, error)

	// ListTaggedResults returns the results linked to a tag name within a
	// project.
	ListTaggedResults(ctx context.Context, projectID, tagName string) ([]*models.TaggedResult, error)
}
