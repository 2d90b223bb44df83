// Package auth mints and verifies the HS256 access tokens that carry a
// caller's role and, for store users, the store they act for.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

var (
	errNoSecret     = errors.New("jwt secret is required")
	errNoIssuer     = errors.New("jwt issuer is required")
	errBadTTL       = errors.New("jwt expiration minutes must be positive")
	errStoreMissing = errors.New("store tokens require an active store id")
)

// AccessTokenPayload is what a caller supplies when minting.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	ActiveStoreID *uuid.UUID
	Role          enums.ActorRole
	// JTI defaults to a random uuid.
	JTI string
}

// AccessTokenClaims is the signed token body.
type AccessTokenClaims struct {
	UserID        uuid.UUID       `json:"user_id"`
	ActiveStoreID *uuid.UUID      `json:"active_store_id,omitempty"`
	Role          enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims check on every parse, and
// before signing on every mint.
func (c AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if c.Role == enums.ActorRoleStore && c.ActiveStoreID == nil {
		return errStoreMissing
	}
	return nil
}

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return errNoSecret
	case cfg.Issuer == "":
		return errNoIssuer
	case cfg.ExpirationMinutes <= 0:
		return errBadTTL
	}
	return nil
}

// MintAccessToken signs a token valid for cfg.ExpirationMinutes from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:        payload.UserID,
		ActiveStoreID: payload.ActiveStoreID,
		Role:          payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the role rules
// in Validate.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
