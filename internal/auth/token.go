// ABOUTME: Subscriber bearer tokens: typed JWT claims carrying entitlements
// ABOUTME: HS256 only, issuer-checked, with sentinel errors for the gate

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lexgate/lex-gateway/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

const tokenIssuer = "lex-gateway"

// Claims is the payload of a subscriber bearer token. The subscriber's
// entitlements ride in the token, so entitlement changes take effect when a
// token is reissued; deactivating the subscriber cuts access immediately
// because the gate still checks the stored record's active flag.
type Claims struct {
	Email        string   `json:"email,omitempty"`
	Entitlements []string `json:"entitlements,omitempty"`
	jwt.RegisteredClaims
}

// HasEntitlement reports whether the token grants the named entitlement.
func (c *Claims) HasEntitlement(name string) bool {
	for _, ent := range c.Entitlements {
		if ent == name {
			return true
		}
	}
	return false
}

// TokenVerifier defines the interface for bearer token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token signature, issuer, and expiry, and returns the
// typed claims. The subject must name a subscriber.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}

// Generate issues a token for the subscriber, snapshotting their email and
// entitlements into the claims.
func (v *JWTVerifier) Generate(sub *store.Subscriber, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:        sub.Email,
		Entitlements: sub.Entitlements,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
