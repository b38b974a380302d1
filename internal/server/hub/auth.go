package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// how long before expiry a cached token is considered stale
const tokenExpiryMargin = 30 * time.Second

// TokenSource yields a bearer token for Hub calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Credentials produces the JSON payload for the auth server's token
// endpoint. Two grant types exist: password (human account) and
// robot_credentials (machine account).
type Credentials interface {
	grantPayload() any
}

type PasswordCredentials struct {
	Username string
	Password string
}

func (c PasswordCredentials) grantPayload() any {
	return map[string]string{
		"grant_type": "password",
		"username":   c.Username,
		"password":   c.Password,
	}
}

type RobotCredentials struct {
	ID     string
	Secret string
}

func (c RobotCredentials) grantPayload() any {
	return map[string]string{
		"grant_type": "robot_credentials",
		"id":         c.ID,
		"secret":     c.Secret,
	}
}

type accessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// CachedTokenSource acquires a token on first use and reuses it until it is
// within tokenExpiryMargin of expiring. Safe for concurrent use.
type CachedTokenSource struct {
	authBaseURL string
	creds       Credentials
	httpClient  *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func NewCachedTokenSource(authBaseURL string, creds Credentials, httpClient *http.Client) *CachedTokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CachedTokenSource{
		authBaseURL: authBaseURL,
		creds:       creds,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

// Token returns the cached token or fetches a fresh one. The lock is never
// held across the token request; concurrent callers hitting an expired cache
// may each fetch a token, and the one with the latest expiry wins.
func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Add(tokenExpiryMargin).Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	at, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt := s.now().Add(time.Duration(at.ExpiresIn) * time.Second)
	if expiresAt.After(s.expiresAt) {
		s.token = at.AccessToken
		s.expiresAt = expiresAt
	}
	return s.token, nil
}

func (s *CachedTokenSource) acquire(ctx context.Context) (*accessToken, error) {
	body, err := json.Marshal(s.creds.grantPayload())
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.authBaseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquire hub token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("acquire hub token: %w", &Error{StatusCode: resp.StatusCode, Body: string(b)})
	}

	var at accessToken
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &at, nil
}
