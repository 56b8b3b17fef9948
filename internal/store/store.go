// ABOUTME: Store interface and data types for lex-gateway persistence
// ABOUTME: Defines Conversation, Message, Subscriber, Feedback and SavedAnswer records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateToken is returned when trying to create a conversation whose token already exists
var ErrDuplicateToken = errors.New("conversation token already exists")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entitlement names
const (
	EntitlementChatbot = "chatbot"
)

// Conversation is a token-addressed turn history with a sliding expiry.
// An expired conversation is never returned by lookups; it is treated as absent.
type Conversation struct {
	Token     string
	Language  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Message is a single turn entry within a conversation.
// Seq is assigned by the store on save and is strictly increasing per
// conversation, so append order never depends on clock resolution.
// ReferencedIDs holds cross-reference identifiers extracted from answer citations.
type Message struct {
	ID            string
	Token         string
	Seq           int64
	Role          string // "user" or "assistant"
	Content       string
	ReferencedIDs []string
	CreatedAt     time.Time
}

// Subscriber is an authenticated caller with zero or more entitlements.
type Subscriber struct {
	ID           string
	Email        string
	Entitlements []string
	Active       bool
	CreatedAt    time.Time
}

// Feedback is a user's verdict on a produced answer.
type Feedback struct {
	ID        string
	OwnerID   string // empty for anonymous passphrase callers
	Question  string
	Answer    string
	Source    string
	Language  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// SavedAnswer is an answer a subscriber persisted to their profile.
// It mirrors the answer envelope fields.
type SavedAnswer struct {
	ID        string
	OwnerID   string
	Question  string
	Answer    string
	Source    string
	Language  string
	Category  string
	CreatedAt time.Time
}

// ConversationStore defines conversation and message persistence.
type ConversationStore interface {
	// CreateConversation persists a new conversation. Returns ErrDuplicateToken
	// if the token is already in use.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns a conversation whose expiry is in the future.
	// Expired and unknown tokens both return ErrNotFound.
	GetConversation(ctx context.Context, token string) (*Conversation, error)

	// TouchConversation extends a conversation's expiry. Returns ErrNotFound
	// for expired or unknown tokens.
	TouchConversation(ctx context.Context, token string, expiresAt time.Time) error

	// SaveMessage appends a message to a conversation's history.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessages returns the conversation's most recent limit messages,
	// in append order. Older messages fall off first.
	GetMessages(ctx context.Context, token string, limit int) ([]*Message, error)
}

// SubscriberStore defines subscriber lookup for the access gate.
type SubscriberStore interface {
	GetSubscriber(ctx context.Context, id string) (*Subscriber, error)
	CreateSubscriber(ctx context.Context, sub *Subscriber) error
}

// FeedbackStore defines feedback and saved-answer persistence.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb *Feedback) error
	ListFeedback(ctx context.Context, ownerID string, limit int) ([]*Feedback, error)

	SaveAnswer(ctx context.Context, sa *SavedAnswer) error
	ListSavedAnswers(ctx context.Context, ownerID, category string, limit int) ([]*SavedAnswer, error)
	DeleteSavedAnswer(ctx context.Context, ownerID, id string) error
}

// Store is the complete persistence interface for lex-gateway.
type Store interface {
	ConversationStore
	SubscriberStore
	FeedbackStore

	Close() error
}
