// ABOUTME: Conversation service resolving token-addressed sessions with sliding expiry
// ABOUTME: All turn history flows through here - the store is the source of truth

package conversation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexgate/lex-gateway/internal/aggregate"
	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/store"
)

// historyLimit caps how many prior messages are fed to synthesis as context.
const historyLimit = 20

// tokenBytes is the entropy of a conversation token before encoding.
const tokenBytes = 32

// Service manages conversation lifecycle and turn persistence.
type Service struct {
	store  store.ConversationStore
	ttl    time.Duration
	locks  *lockRegistry
	logger *slog.Logger
}

// New creates a conversation service with the given sliding-expiry window.
func New(st store.ConversationStore, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		ttl:    ttl,
		locks:  newLockRegistry(ttl),
		logger: logger.With("component", "conversation"),
	}
}

// Close releases the service's background resources.
func (s *Service) Close() {
	s.locks.close()
}

// Resolve returns the live conversation for the token, extending its expiry,
// or creates a new one when the token is absent, unknown, or expired. An
// expired token is indistinguishable from an unknown one and never an error.
func (s *Service) Resolve(ctx context.Context, token, language string) (*store.Conversation, error) {
	if token != "" {
		conv, err := s.store.GetConversation(ctx, token)
		if err == nil {
			expiresAt := time.Now().Add(s.ttl)
			if err := s.store.TouchConversation(ctx, token, expiresAt); err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("extending conversation expiry: %w", err)
			}
			conv.ExpiresAt = expiresAt
			s.logger.Debug("conversation resumed", "token", token)
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up conversation: %w", err)
		}
	}

	return s.create(ctx, language)
}

// create persists a new conversation with a freshly generated token.
func (s *Service) create(ctx context.Context, language string) (*store.Conversation, error) {
	// Token collisions are practically impossible at 256 bits, but the
	// store's uniqueness constraint is still honored with a retry.
	for attempt := 0; attempt < 3; attempt++ {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("generating conversation token: %w", err)
		}

		now := time.Now()
		conv := &store.Conversation{
			Token:     token,
			Language:  language,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		err = s.store.CreateConversation(ctx, conv)
		if err == nil {
			s.logger.Debug("conversation created", "token", token)
			return conv, nil
		}
		if !errors.Is(err, store.ErrDuplicateToken) {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
	}
	return nil, fmt.Errorf("creating conversation: token collisions exhausted retries")
}

// AppendTurn records one turn: the user message (carrying the identifiers
// referenced by the answer's citations), then the assistant message only if
// an answer was produced. Appends for the same token are serialized; turns on
// different tokens proceed independently.
func (s *Service) AppendTurn(ctx context.Context, token, question string, envelope *aggregate.Envelope) error {
	unlock := s.locks.acquire(token)
	defer unlock()

	now := time.Now()
	userMsg := &store.Message{
		ID:        uuid.New().String(),
		Token:     token,
		Role:      store.RoleUser,
		Content:   question,
		CreatedAt: now,
	}
	if envelope != nil {
		userMsg.ReferencedIDs = envelope.ReferencedIdentifiers()
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("recording user message: %w", err)
	}

	if envelope == nil || envelope.Answer == "" {
		return nil
	}

	assistantMsg := &store.Message{
		ID:        uuid.New().String(),
		Token:     token,
		Role:      store.RoleAssistant,
		Content:   envelope.Answer,
		CreatedAt: now,
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("recording assistant message: %w", err)
	}
	return nil
}

// History returns the conversation's prior turns shaped for synthesis context.
// The backend reads this but never mutates the conversation.
func (s *Service) History(ctx context.Context, token string) ([]backend.Turn, error) {
	messages, err := s.store.GetMessages(ctx, token, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turns := make([]backend.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, backend.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, nil
}

// generateToken returns an unguessable, URL-safe conversation token.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
