// Package storage adapts the node-local S3-compatible object store to the
// narrow surface the service needs. Retry policy deliberately lives with the
// callers, which can tell a local store failure from a Hub failure.
package storage

import (
	"context"
	"fmt"
)

// BlobStore stores payload bytes under deterministic, job-scoped keys.
// Writes are all-or-nothing from the caller's perspective; a failed write
// surfaces an error rather than a readable-but-truncated object.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
	// Read returns the object bytes or common.ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Keys are deterministic from the analysis id and file id so re-reads and
// retried uploads stay idempotent. The scope prefixes mirror the delivery
// kinds: "upload" feeds the Hub RESULT pipeline, "temp" the TEMP pipeline,
// "local" never leaves the node.

func UploadKey(analysisID, id string) string {
	return fmt.Sprintf("upload/%s/%s", analysisID, id)
}

func TempKey(analysisID, id string) string {
	return fmt.Sprintf("temp/%s/%s", analysisID, id)
}

func LocalKey(analysisID, id string) string {
	return fmt.Sprintf("local/%s/%s", analysisID, id)
}
