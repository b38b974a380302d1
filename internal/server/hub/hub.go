// Package hub is the client for the remote Hub's auth, core and storage
// APIs. The dispatcher and the local-results handlers are its only callers.
package hub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx answer from the Hub. The body is kept verbatim so the
// ledger's last_error column shows what the Hub actually said.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("hub returned status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a Hub 404.
func IsNotFound(err error) bool {
	var he *Error
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// IsAlreadyExists reports whether the Hub rejected a write because the
// entity is already there. The Hub dedupes uploads by content digest, so a
// retried delivery may legitimately hit this.
func IsAlreadyExists(err error) bool {
	var he *Error
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusConflict ||
		strings.Contains(strings.ToLower(he.Body), "already")
}

// retryable reports whether a call may be repeated: network-level failures
// and Hub 5xx answers. 4xx answers are final.
func retryable(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.StatusCode >= 500
	}
	return err != nil
}

// Analysis is the Hub's view of a running analysis.
type Analysis struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
}

// Bucket is a Hub storage bucket.
type Bucket struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BucketFile is a file stored in a Hub bucket.
type BucketFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BucketID string `json:"bucket_id"`
	Size     int64  `json:"size"`
}

// AnalysisFile is a bucket file linked to an analysis.
type AnalysisFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	BucketFileID string `json:"bucket_file_id"`
}

// AnalysisBucketName returns the name of the bucket the Hub provisions for
// an analysis and kind, e.g. "analysis-result-files.<analysis id>".
func AnalysisBucketName(analysisID, kind string) string {
	return fmt.Sprintf("analysis-%s-files.%s", strings.ToLower(kind), analysisID)
}
