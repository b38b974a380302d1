package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/server/models"
	"github.com/fedanode/result-service/internal/server/storage"
)

// upload is one parsed multipart submission.
type upload struct {
	data        []byte
	filename    string
	contentType string
	jobID       string
}

// readUpload parses the multipart "file" field. Empty payloads are rejected:
// accepting one would enqueue a delivery that can never carry information.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field: %v", common.ErrValidation, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", common.ErrValidation, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrValidation)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &upload{
		data:        data,
		filename:    header.Filename,
		contentType: contentType,
		jobID:       r.FormValue("job_id"),
	}, nil
}

// ingest writes the blob first and the ledger row second. A failed insert
// leaves only an orphaned blob, never a row without bytes.
func (s *Server) ingest(ctx context.Context, owner, id, key string, kind models.Kind, up *upload) error {
	if err := s.store.Write(ctx, key, up.data, up.contentType); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	digest := sha256.Sum256(up.data)
	row := &models.ResultFile{
		ID:            id,
		OwnerSubject:  owner,
		AnalysisID:    owner,
		JobID:         up.jobID,
		Kind:          kind,
		BlobKey:       key,
		SizeBytes:     int64(len(up.data)),
		ContentDigest: hex.EncodeToString(digest[:]),
	}
	if err := s.results.Create(ctx, row); err != nil {
		return fmt.Errorf("create ledger row: %w", err)
	}
	return nil
}

// handleSubmitResult accepts a final result for delivery to the Hub. The
// 202 means accepted and durably queued, not delivered.
func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) error {
	cid := clientID(r.Context())

	up, err := s.readUpload(w, r)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if err := s.ingest(r.Context(), cid, id, storage.UploadKey(cid, id), models.KindResult, up); err != nil {
		return err
	}

	s.logger.Info(r.Context(), "result accepted", "id", id, "analysis_id", cid, "size", len(up.data))
	return writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

type statusResponse struct {
	ID           string     `json:"id"`
	State        string     `json:"state"`
	Kind         string     `json:"kind"`
	AttemptCount int        `json:"attempt_count"`
	LastError    string     `json:"last_error,omitempty"`
	HubFileID    string     `json:"hub_file_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastAttempt  *time.Time `json:"last_attempt_at,omitempty"`
}

// handleResultStatus reports the delivery state of a submission. Rows of
// other clients answer 404 rather than 403 to avoid leaking ids.
func (s *Server) handleResultStatus(w http.ResponseWriter, r *http.Request) error {
	row, err := s.ownedRow(r)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, statusResponse{
		ID:           row.ID,
		State:        string(row.State),
		Kind:         string(row.Kind),
		AttemptCount: row.AttemptCount,
		LastError:    row.LastError,
		HubFileID:    row.HubFileID,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastAttempt:  row.LastAttemptAt,
	})
}

// ownedRow fetches the row in the "id" URL parameter if it belongs to the
// calling client.
func (s *Server) ownedRow(r *http.Request) (*models.ResultFile, error) {
	id := chi.URLParam(r, "id")

	row, err := s.results.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if row.OwnerSubject != clientID(r.Context()) {
		return nil, common.ErrNotFound
	}
	return row, nil
}
