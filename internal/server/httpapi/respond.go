package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fedanode/result-service/internal/common"
	"github.com/fedanode/result-service/internal/server/hub"
)

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps handler errors onto HTTP status codes. Unmapped errors are
// logged and answered with a bare 500 so internals never leak to callers.
func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		switch {
		case errors.Is(err, common.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, common.ErrUnauthorized):
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case errors.Is(err, common.ErrNotFound) || hub.IsNotFound(err):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, common.ErrConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// requestBaseURL rebuilds the externally visible base URL for links in
// responses.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
