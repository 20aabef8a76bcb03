package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
)

// ErrNoToken is returned when a stored auth token carries no JWT.
var ErrNoToken = errors.New("auth token does not contain a JWT")

// tokenFields are the members searched, in order, when the stored auth
// token is a JSON object rather than a bare JWT string.
var tokenFields = []string{"idToken", "token", "accessToken"}

// TokenInfo is the unverified claim set of a stored auth token.
type TokenInfo struct {
	Subject   string    `json:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitzero"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the token has an expiry at or before now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// InspectToken decodes the claims of the auth token stored at sign-up. The
// signature is not checked: the token is only ever verified by the Rally
// backend.
func InspectToken(raw json.RawMessage) (*TokenInfo, error) {
	tokenString, err := extractToken(raw)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse auth token: %w", err)
	}

	info := &TokenInfo{}
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

func extractToken(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrNoToken
		}
		return s, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ErrNoToken
	}
	field, ok := lo.Find(tokenFields, func(f string) bool {
		v, _ := obj[f].(string)
		return v != ""
	})
	if !ok {
		return "", ErrNoToken
	}
	return obj[field].(string), nil
}
