package httpapi

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/server/models"
	"github.com/fedanode/result-service/internal/server/storage"
)

// handleSubmitIntermediate accepts an intermediate result. It rides the
// same delivery pipeline as final results but targets the analysis' TEMP
// bucket, and the response carries the URL it can be fetched from once
// delivered.
func (s *Server) handleSubmitIntermediate(w http.ResponseWriter, r *http.Request) error {
	cid := clientID(r.Context())

	up, err := s.readUpload(w, r)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if err := s.ingest(r.Context(), cid, id, storage.TempKey(cid, id), models.KindTemp, up); err != nil {
		return err
	}

	s.logger.Info(r.Context(), "intermediate result accepted", "id", id, "analysis_id", cid, "size", len(up.data))
	return writeJSON(w, http.StatusAccepted, map[string]string{
		"id":  id,
		"url": requestBaseURL(r) + "/intermediate/" + id,
	})
}

// handleRetrieveIntermediate streams a delivered intermediate file back
// from Hub storage. Until delivery completes the file does not exist from
// the caller's point of view.
func (s *Server) handleRetrieveIntermediate(w http.ResponseWriter, r *http.Request) error {
	row, err := s.ownedRow(r)
	if err != nil {
		return err
	}
	if row.State != models.StateDelivered || row.HubFileID == "" {
		return common.ErrNotFound
	}

	rc, err := s.hub.StreamBucketFile(r.Context(), row.HubFileID)
	if err != nil {
		return err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		// headers are gone; log and give up on this response
		s.logger.Error(r.Context(), "stream from hub aborted", "id", row.ID, "error", err)
	}
	return nil
}
