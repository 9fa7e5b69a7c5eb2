package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingAccessToken = errors.New("token response has no access_token")

// resolveExpiry computes the absolute expiry of an access token. Providers
// report it one of two ways: an expires_in seconds-delta next to an opaque
// token, or an exp claim embedded in a JWT access token. A token with
// neither is unusable, because a credential record is never stored with an
// unknown expiry.
func resolveExpiry(accessToken string, expiresIn int) (time.Time, error) {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}

	expiresAt, err := jwtExpiry(accessToken)
	if err != nil {
		return time.Time{}, fmt.Errorf("token response has neither expires_in nor a decodable exp claim: %w", err)
	}
	return expiresAt, nil
}

// jwtExpiry extracts the exp claim from a JWT access token without
// verifying the signature. The token comes straight from the provider's
// token endpoint over TLS; signature verification is the resource server's
// job, this is only expiry bookkeeping.
func jwtExpiry(accessToken string) (time.Time, error) {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, errors.New("access token is not a JWT")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return exp.Time, nil
}
