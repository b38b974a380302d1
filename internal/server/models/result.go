// Package models defines the data rows persisted by the result service.
package models

import "time"

// State is the lifecycle state of a result file in the submission ledger.
type State string

const (
	StatePending    State = "PENDING"
	StateEncrypting State = "ENCRYPTING"
	StateUploading  State = "UPLOADING"
	StateDelivered  State = "DELIVERED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further automatic transitions happen from s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// CanAdvance reports whether the forward edge s -> to exists. Falling back
// to PENDING on failure is handled by RecordFailure, not by Advance.
func (s State) CanAdvance(to State) bool {
	switch s {
	case StatePending:
		return to == StateEncrypting
	case StateEncrypting:
		return to == StateUploading
	case StateUploading:
		return to == StateDelivered
	default:
		return false
	}
}

// Kind distinguishes what the Hub should do with a delivered file. It maps
// onto the Hub's analysis bucket types.
type Kind string

const (
	// KindResult is a final analysis result.
	KindResult Kind = "RESULT"
	// KindTemp is an intermediate file shared between analysis nodes.
	KindTemp Kind = "TEMP"
)

// ResultFile is one submitted artifact and its delivery bookkeeping. The
// payload bytes themselves live in the local object store under BlobKey;
// the row is the single source of truth for delivery state.
type ResultFile struct {
	// ID is the opaque, immutable identifier generated at ingress.
	ID string
	// OwnerSubject is the identity extracted from the verified access token.
	OwnerSubject string
	// AnalysisID and JobID scope the file; supplied by the caller, immutable.
	AnalysisID string
	JobID      string
	// Kind selects the Hub bucket the file is delivered to.
	Kind Kind

	// BlobKey is the object-store location; never mutated once written.
	BlobKey string
	// SizeBytes and ContentDigest (sha256, hex) are computed at write time
	// and used to detect corruption before upload.
	SizeBytes     int64
	ContentDigest string

	State State

	// Retry bookkeeping.
	AttemptCount  int
	LastError     string
	LastAttemptAt *time.Time
	NextAttemptAt time.Time
	// LeaseUntil is the expiry of the exclusive dispatcher claim, if any.
	LeaseUntil *time.Time

	// HubFileID is the Hub-side bucket file id recorded on delivery.
	HubFileID string

	CreatedAt time.Time
	UpdatedAt time.Time
}
