// Package oidc verifies bearer tokens issued by the node's identity
// provider and extracts the calling analysis client id from them.
package oidc

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fedanode/result-service/internal/common"
)

// DefaultClientIDClaim is the token claim carrying the analysis client id
// unless the deployment overrides it.
const DefaultClientIDClaim = "client_id"

// Verifier checks a raw bearer token and returns the client id it carries.
// Any failure (bad signature, expired, missing claim) maps to
// common.ErrUnauthorized.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (clientID string, err error)
}

func claimString(claims jwt.MapClaims, name string) (string, error) {
	v, ok := claims[name]
	if !ok {
		return "", fmt.Errorf("%w: token missing %q claim", common.ErrUnauthorized, name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: token claim %q is not a string", common.ErrUnauthorized, name)
	}
	return s, nil
}

// InsecureVerifier accepts any well-formed JWT without checking its
// signature or expiry. Intended for isolated development setups only.
type InsecureVerifier struct {
	ClientIDClaim string
}

func (v *InsecureVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	claim := v.ClientIDClaim
	if claim == "" {
		claim = DefaultClientIDClaim
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", common.ErrUnauthorized)
	}
	return claimString(claims, claim)
}
