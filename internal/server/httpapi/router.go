// Package httpapi is the node-local HTTP surface analysis containers talk
// to: result submission, intermediate and local results, and health probes.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/fedanode/result-service/internal/logging"
	"github.com/fedanode/result-service/internal/server/hub"
	"github.com/fedanode/result-service/internal/server/oidc"
	"github.com/fedanode/result-service/internal/server/repositories/results"
	"github.com/fedanode/result-service/internal/server/repositories/tags"
	"github.com/fedanode/result-service/internal/server/storage"
)

// HubAPI is the slice of the Hub client the HTTP surface needs: resolving
// the project behind an analysis and streaming delivered bucket files.
type HubAPI interface {
	GetAnalysis(ctx context.Context, analysisID string) (*hub.Analysis, error)
	StreamBucketFile(ctx context.Context, bucketFileID string) (io.ReadCloser, error)
}

// CheckFunc probes one dependency for the readiness endpoint.
type CheckFunc func(ctx context.Context) error

type Server struct {
	logger   logging.Logger
	verifier oidc.Verifier
	store    storage.BlobStore
	results  results.Repository
	tags     tags.Repository
	hub      HubAPI

	// readiness checks by dependency name
	checks map[string]CheckFunc

	// analysis id -> project id; the Hub never re-parents an analysis
	mu       sync.Mutex
	projects map[string]string

	maxUploadBytes int64
}

type Options struct {
	// MaxUploadBytes caps a single submission; 0 means the default 512 MiB.
	MaxUploadBytes int64
	// Checks are the dependency probes run by GET /readyz.
	Checks map[string]CheckFunc
}

func NewServer(logger logging.Logger, verifier oidc.Verifier, store storage.BlobStore,
	resultsRepo results.Repository, tagsRepo tags.Repository, hubAPI HubAPI, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	return &Server{
		logger:         logger.With("module", "httpapi"),
		verifier:       verifier,
		store:          store,
		results:        resultsRepo,
		tags:           tagsRepo,
		hub:            hubAPI,
		checks:         opts.Checks,
		projects:       make(map[string]string),
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// Router assembles the chi mux. Health probes are open; everything else
// sits behind the bearer-token middleware.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/healthz", s.handleHealthz)
	mux.Get("/readyz", s.handleReadyz)

	mux.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Put("/upload", s.wrap(s.handleSubmitResult))
		r.Get("/upload/{id}", s.wrap(s.handleResultStatus))

		r.Put("/intermediate", s.wrap(s.handleSubmitIntermediate))
		r.Get("/intermediate/{id}", s.wrap(s.handleRetrieveIntermediate))

		r.Put("/local", s.wrap(s.handleSubmitLocal))
		r.Get("/local/tags", s.wrap(s.handleListTags))
		r.Get("/local/tags/{tag}", s.wrap(s.handleListTaggedResults))
		r.Get("/local/{id}", s.wrap(s.handleRetrieveLocal))
	})

	return mux
}

// projectID resolves and caches the project owning an analysis.
func (s *Server) projectID(ctx context.Context, analysisID string) (string, error) {
	s.mu.Lock()
	if id, ok := s.projects[analysisID]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	analysis, err := s.hub.GetAnalysis(ctx, analysisID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.projects[analysisID] = analysis.ProjectID
	s.mu.Unlock()
	return analysis.ProjectID, nil
}
