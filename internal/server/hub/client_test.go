package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) {
	return string(s), nil
}

func newTestClient(srvURL string) *Client {
	c := NewClient(srvURL, srvURL, staticTokens("tok"), nil)
	c.retryBase = time.Millisecond
	return c
}

func TestClient_GetAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyses/a1", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
			"id": "a1", "name": "demo", "project_id": "p1",
		}))
	}))
	t.Cleanup(srv.Close)

	a, err := newTestClient(srv.URL).GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "p1", a.ProjectID)
}

func TestClient_GetBucket_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such bucket", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).GetBucket(context.Background(), "analysis-result-files.a1")
	assert.True(t, IsNotFound(err))
}

func TestClient_UploadToBucket(t *testing.T) {
	payload := []byte("ciphertext bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/buckets/analysis-result-files.a1/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "f1", header.Filename)
		assert.Equal(t, "application/octet-stream", header.Header.Get("Content-Type"))

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "bf1", "name": "f1", "bucket_id": "b1", "size": len(payload)},
			},
		}))
	}))
	t.Cleanup(srv.Close)

	bf, err := newTestClient(srv.URL).UploadToBucket(context.Background(),
		"analysis-result-files.a1", "f1", payload, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "bf1", bf.ID)
	assert.Equal(t, int64(len(payload)), bf.Size)
}

func TestClient_FindBucketFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bucket-files", r.URL.Path)
		require.Equal(t, "b1", r.URL.Query().Get("filter[bucket_id]"))
		require.Equal(t, "f1", r.URL.Query().Get("filter[name]"))

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "bf1", "name": "f1", "bucket_id": "b1", "size": 42},
			},
		}))
	}))
	t.Cleanup(srv.Close)

	bf, err := newTestClient(srv.URL).FindBucketFile(context.Background(), "b1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "bf1", bf.ID)
}

func TestClient_FindBucketFile_EmptyListIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": []any{}}))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).FindBucketFile(context.Background(), "b1", "missing")
	assert.True(t, IsNotFound(err))
}

func TestClient_LinkFileToAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analysis-files", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "a1", payload["analysis_id"])
		assert.Equal(t, "RESULT", payload["type"])
		assert.Equal(t, "bf1", payload["bucket_file_id"])
		assert.Equal(t, true, payload["root"])

		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
			"id": "af1", "name": "f1", "type": "RESULT", "bucket_file_id": "bf1",
		}))
	}))
	t.Cleanup(srv.Close)

	af, err := newTestClient(srv.URL).LinkFileToAnalysis(context.Background(), "a1", "bf1", "f1", "RESULT")
	require.NoError(t, err)
	assert.Equal(t, "af1", af.ID)
}

func TestClient_StreamBucketFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bucket-files/bf1/stream", r.URL.Path)
		_, err := w.Write([]byte("file content"))
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)

	rc, err := newTestClient(srv.URL).StreamBucketFile(context.Background(), "bf1")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("file content"), got)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"id": "a1"}))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "already linked", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).LinkFileToAnalysis(context.Background(), "a1", "bf1", "f1", "RESULT")
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
	assert.Equal(t, int64(1), calls.Load())
}
