package httpapi

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/server/storage"
)

// tagPattern: lowercase alphanumerics with inner hyphens, at most 32 chars.
var tagPattern = regexp.MustCompile(`^[a-z0-9]$|^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$`)

// handleSubmitLocal stores a result that never leaves the node. An optional
// tag groups it with other files of the same project for later retrieval.
func (s *Server) handleSubmitLocal(w http.ResponseWriter, r *http.Request) error {
	cid := clientID(r.Context())

	up, err := s.readUpload(w, r)
	if err != nil {
		return err
	}

	tag := r.FormValue("tag")
	if tag != "" && !tagPattern.MatchString(tag) {
		return fmt.Errorf("%w: invalid tag %q", common.ErrValidation, tag)
	}

	id := uuid.NewString()
	key := storage.LocalKey(cid, id)
	if err := s.store.Write(r.Context(), key, up.data, up.contentType); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	if tag != "" {
		projectID, err := s.projectID(r.Context(), cid)
		if err != nil {
			return err
		}

		filename := up.filename
		if filename == "" {
			filename = "data.bin"
		}
		if _, err := s.tags.TagResult(r.Context(), tag, projectID, id, filename); err != nil {
			return err
		}
	}

	s.logger.Info(r.Context(), "local result stored", "id", id, "analysis_id", cid, "tag", tag)
	return writeJSON(w, http.StatusOK, map[string]string{
		"url": requestBaseURL(r) + "/local/" + id,
	})
}

// handleRetrieveLocal serves a locally stored result back to its analysis.
func (s *Server) handleRetrieveLocal(w http.ResponseWriter, r *http.Request) error {
	cid := clientID(r.Context())
	id := chi.URLParam(r, "id")

	data, err := s.store.Read(r.Context(), storage.LocalKey(cid, id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, err = w.Write(data)
	return err
}

type tagEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// handleListTags lists the tags of the calling analysis' project.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) error {
	projectID, err := s.projectID(r.Context(), clientID(r.Context()))
	if err != nil {
		return err
	}

	list, err := s.tags.ListTags(r.Context(), projectID)
	if err != nil {
		return err
	}

	base := requestBaseURL(r)
	entries := make([]tagEntry, 0, len(list))
	for _, t := range list {
		entries = append(entries, tagEntry{
			Name: t.Name,
			URL:  base + "/local/tags/" + t.Name,
		})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"tags": entries})
}

type taggedResultEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// handleListTaggedResults lists the files linked to one tag of the project.
func (s *Server) handleListTaggedResults(w http.ResponseWriter, r *http.Request) error {
	projectID, err := s.projectID(r.Context(), clientID(r.Context()))
	if err != nil {
		return err
	}

	list, err := s.tags.ListTaggedResults(r.Context(), projectID, chi.URLParam(r, "tag"))
	if err != nil {
		return err
	}

	base := requestBaseURL(r)
	entries := make([]taggedResultEntry, 0, len(list))
	for _, tr := range list {
		entries = append(entries, taggedResultEntry{
			Filename: tr.Filename,
			URL:      base + "/local/" + tr.ResultID,
		})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}
