package oidc

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fedanode/result-service/internal/common"
)

// JWKSVerifier validates token signatures against the identity provider's
// JWKS endpoint. keyfunc refreshes the key set in the background, so key
// rotation needs no restart.
type JWKSVerifier struct {
	keys          keyfunc.Keyfunc
	clientIDClaim string
}

// NewJWKSVerifier fetches the initial key set eagerly so a misconfigured
// JWKS URL fails at startup rather than on the first request.
func NewJWKSVerifier(ctx context.Context, jwksURL, clientIDClaim string) (*JWKSVerifier, error) {
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks from %s: %w", jwksURL, err)
	}
	if clientIDClaim == "" {
		clientIDClaim = DefaultClientIDClaim
	}
	return &JWKSVerifier{keys: keys, clientIDClaim: clientIDClaim}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	token, err := jwt.Parse(rawToken, v.keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", common.ErrUnauthorized)
	}
	return claimString(claims, v.clientIDClaim)
}
