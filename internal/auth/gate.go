// ABOUTME: Access gate evaluating passphrase and subscriber-entitlement authorization
// ABOUTME: Runs before any backend work or conversation mutation

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/lexgate/lex-gateway/internal/store"
)

// Gate denial reasons. Surfaced distinctly so a client can tell
// "log in" apart from "upgrade".
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrEntitlementRequired    = errors.New("entitlement required")
)

// Credentials carries everything a request offers the gate.
type Credentials struct {
	Passphrase  string // shared-secret access key, if supplied
	BearerToken string // JWT from the Authorization header, if supplied
}

// Grant records how a request was authorized.
type Grant struct {
	Via        string // "passphrase" or "subscriber"
	Subscriber *store.Subscriber
}

// SubscriberID returns the authenticated subscriber's ID, or "" for
// passphrase-authorized callers.
func (g *Grant) SubscriberID() string {
	if g == nil || g.Subscriber == nil {
		return ""
	}
	return g.Subscriber.ID
}

// Gate authorizes requests before any orchestration work begins.
// Two independent paths are evaluated in fixed priority order:
// a shared-secret passphrase, then a subscriber holding the chatbot entitlement.
type Gate struct {
	passphrase     []byte
	passphraseHash []byte
	verifier       TokenVerifier
	subscribers    store.SubscriberStore
	logger         *slog.Logger
}

// NewGate creates an access gate. Either passphrase or passphraseHash (bcrypt)
// may be empty; the hash takes precedence when both are set. The verifier and
// subscriber store may be nil when subscriber auth is not configured.
func NewGate(passphrase, passphraseHash string, verifier TokenVerifier, subscribers store.SubscriberStore, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		passphrase:     []byte(passphrase),
		passphraseHash: []byte(passphraseHash),
		verifier:       verifier,
		subscribers:    subscribers,
		logger:         logger.With("component", "gate"),
	}
}

// Authorize evaluates the credentials and returns a Grant or a typed denial.
// The passphrase path is checked first and grants access regardless of identity.
func (g *Gate) Authorize(ctx context.Context, creds Credentials) (*Grant, error) {
	if creds.Passphrase != "" && g.checkPassphrase(creds.Passphrase) {
		return &Grant{Via: "passphrase"}, nil
	}

	sub, claims, err := g.resolveSubscriber(ctx, creds.BearerToken)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		if claims.HasEntitlement(store.EntitlementChatbot) {
			return &Grant{Via: "subscriber", Subscriber: sub}, nil
		}
		return nil, ErrEntitlementRequired
	}

	return nil, ErrAuthenticationRequired
}

// Identify resolves the caller's subscriber identity without requiring the
// chatbot entitlement. Used by owner-scoped endpoints (feedback, saved answers).
func (g *Gate) Identify(ctx context.Context, bearerToken string) (*store.Subscriber, error) {
	sub, _, err := g.resolveSubscriber(ctx, bearerToken)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrAuthenticationRequired
	}
	return sub, nil
}

// checkPassphrase compares the supplied passphrase against the configured
// secret. The plaintext path uses a constant-time comparison; the hash path
// delegates to bcrypt, which is constant-time by construction.
func (g *Gate) checkPassphrase(supplied string) bool {
	if len(g.passphraseHash) > 0 {
		return bcrypt.CompareHashAndPassword(g.passphraseHash, []byte(supplied)) == nil
	}
	if len(g.passphrase) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(g.passphrase, []byte(supplied)) == 1
}

// resolveSubscriber verifies the bearer token and loads the subscriber.
// The entitlement decision comes from the token's claims; the stored record
// is consulted only for existence and the active flag, so revocation works
// without reissuing tokens. Returns (nil, nil, nil) when no usable identity
// was presented, so the caller can fall through to AuthenticationRequired.
func (g *Gate) resolveSubscriber(ctx context.Context, bearerToken string) (*store.Subscriber, *Claims, error) {
	if bearerToken == "" || g.verifier == nil || g.subscribers == nil {
		return nil, nil, nil
	}

	claims, err := g.verifier.Verify(bearerToken)
	if err != nil {
		g.logger.Debug("token verification failed", "error", err)
		return nil, nil, nil
	}

	sub, err := g.subscribers.GetSubscriber(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("token subject unknown", "subscriber_id", claims.Subject)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("looking up subscriber: %w", err)
	}
	if !sub.Active {
		g.logger.Debug("subscriber inactive", "subscriber_id", claims.Subject)
		return nil, nil, nil
	}
	return sub, claims, nil
}
