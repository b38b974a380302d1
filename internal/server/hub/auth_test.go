package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T, wantGrant string, issued *atomic.Int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/token", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, wantGrant, payload["grant_type"])

		n := issued.Add(1)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   3600,
			"token_type":   "Bearer",
			"scope":        "global",
		}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCachedTokenSource_PasswordGrant(t *testing.T) {
	var issued atomic.Int64
	srv := newAuthServer(t, "password", &issued)

	ts := NewCachedTokenSource(srv.URL, PasswordCredentials{Username: "admin", Password: "secret"}, nil)

	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestCachedTokenSource_RobotGrant(t *testing.T) {
	var issued atomic.Int64
	srv := newAuthServer(t, "robot_credentials", &issued)

	ts := NewCachedTokenSource(srv.URL, RobotCredentials{ID: "robot-1", Secret: "secret"}, nil)

	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestCachedTokenSource_ReusesUnexpiredToken(t *testing.T) {
	var issued atomic.Int64
	srv := newAuthServer(t, "password", &issued)

	ts := NewCachedTokenSource(srv.URL, PasswordCredentials{Username: "a", Password: "b"}, nil)

	first, err := ts.Token(context.Background())
	require.NoError(t, err)
	second, err := ts.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), issued.Load())
}

func TestCachedTokenSource_RefreshesNearExpiry(t *testing.T) {
	var issued atomic.Int64
	srv := newAuthServer(t, "password", &issued)

	ts := NewCachedTokenSource(srv.URL, PasswordCredentials{Username: "a", Password: "b"}, nil)

	now := time.Now()
	ts.now = func() time.Time { return now }

	first, err := ts.Token(context.Background())
	require.NoError(t, err)

	// just inside the refresh margin of the 1h expiry
	ts.now = func() time.Time { return now.Add(time.Hour - tokenExpiryMargin) }

	second, err := ts.Token(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), issued.Load())
}

func TestCachedTokenSource_ConcurrentFirstUse(t *testing.T) {
	var issued atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond) // a slow auth server must not serialize callers forever
		n := issued.Add(1)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   3600,
		}))
	}))
	t.Cleanup(srv.Close)

	ts := NewCachedTokenSource(srv.URL, PasswordCredentials{Username: "a", Password: "b"}, nil)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := ts.Token(context.Background())
			assert.NoError(t, err)
			assert.NotEmpty(t, token)
		}()
	}
	wg.Wait()

	fetched := issued.Load()
	assert.GreaterOrEqual(t, fetched, int64(1))
	assert.LessOrEqual(t, fetched, int64(callers))

	// the cache is warm afterwards
	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fetched, issued.Load())
}

func TestCachedTokenSource_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	ts := NewCachedTokenSource(srv.URL, PasswordCredentials{Username: "a", Password: "wrong"}, nil)

	_, err := ts.Token(context.Background())
	require.Error(t, err)

	var he *Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
}
