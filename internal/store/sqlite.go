// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/feedback persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			token TEXT PRIMARY KEY,
			language TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_expires
			ON conversations(expires_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			referenced_ids TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (token) REFERENCES conversations(token),
			UNIQUE (token, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_token_seq
			ON messages(token, seq);

		CREATE TABLE IF NOT EXISTS subscribers (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			entitlements TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			source TEXT NOT NULL,
			language TEXT NOT NULL,
			rating INTEGER NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedback_owner_created
			ON feedback(owner_id, created_at);

		CREATE TABLE IF NOT EXISTS saved_answers (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			source TEXT NOT NULL,
			language TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_saved_owner_created
			ON saved_answers(owner_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation persists a new conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (token, language, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		conv.Token, conv.Language, conv.CreatedAt.UTC(), conv.ExpiresAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateToken
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation returns a live conversation by token.
// Expired tokens are indistinguishable from unknown ones: both return ErrNotFound.
func (s *SQLiteStore) GetConversation(ctx context.Context, token string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, language, created_at, expires_at FROM conversations
		 WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC())

	var conv Conversation
	err := row.Scan(&conv.Token, &conv.Language, &conv.CreatedAt, &conv.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &conv, nil
}

// TouchConversation extends a live conversation's expiry
func (s *SQLiteStore) TouchConversation(ctx context.Context, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET expires_at = ? WHERE token = ? AND expires_at > ?`,
		expiresAt.UTC(), token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMessage appends a message to a conversation's history, assigning the
// next sequence number within the conversation. Callers serialize appends per
// token, so the MAX(seq) subquery cannot race with itself.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	refs, err := json.Marshal(msg.ReferencedIDs)
	if err != nil {
		return fmt.Errorf("marshaling referenced ids: %w", err)
	}
	if msg.ReferencedIDs == nil {
		refs = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, token, seq, role, content, referenced_ids, created_at)
		 SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		 FROM messages WHERE token = ?`,
		msg.ID, msg.Token, msg.Role, msg.Content, string(refs), msg.CreatedAt.UTC(), msg.Token)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessages returns the conversation's most recent limit messages in append
// order. The window keeps the newest rows so follow-up turns always see the
// immediately preceding exchange.
func (s *SQLiteStore) GetMessages(ctx context.Context, token string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, seq, role, content, referenced_ids, created_at FROM messages
		 WHERE token = ? ORDER BY seq DESC LIMIT ?`,
		token, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var refs string
		if err := rows.Scan(&msg.ID, &msg.Token, &msg.Seq, &msg.Role, &msg.Content, &refs, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &msg.ReferencedIDs); err != nil {
			s.logger.Warn("malformed referenced_ids, skipping", "message_id", msg.ID, "error", err)
			msg.ReferencedIDs = nil
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// restore append order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetSubscriber returns a subscriber by ID
func (s *SQLiteStore) GetSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, entitlements, active, created_at FROM subscribers WHERE id = ?`, id)

	var sub Subscriber
	var ents string
	var active int
	err := row.Scan(&sub.ID, &sub.Email, &ents, &active, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning subscriber: %w", err)
	}
	sub.Active = active != 0
	if err := json.Unmarshal([]byte(ents), &sub.Entitlements); err != nil {
		return nil, fmt.Errorf("unmarshaling entitlements: %w", err)
	}
	return &sub, nil
}

// CreateSubscriber persists a subscriber record
func (s *SQLiteStore) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	ents, err := json.Marshal(sub.Entitlements)
	if err != nil {
		return fmt.Errorf("marshaling entitlements: %w", err)
	}
	if sub.Entitlements == nil {
		ents = []byte("[]")
	}
	active := 0
	if sub.Active {
		active = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, entitlements, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.Email, string(ents), active, sub.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting subscriber: %w", err)
	}
	return nil
}

// SaveFeedback persists a feedback record
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, owner_id, question, answer, source, language, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.OwnerID, fb.Question, fb.Answer, fb.Source, fb.Language, fb.Rating, fb.Comment, fb.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// ListFeedback returns an owner's feedback records, newest first
func (s *SQLiteStore) ListFeedback(ctx context.Context, ownerID string, limit int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, question, answer, source, language, rating, comment, created_at
		 FROM feedback WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var records []*Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.OwnerID, &fb.Question, &fb.Answer, &fb.Source,
			&fb.Language, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		records = append(records, &fb)
	}
	return records, rows.Err()
}

// SaveAnswer persists a saved answer for a subscriber
func (s *SQLiteStore) SaveAnswer(ctx context.Context, sa *SavedAnswer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_answers (id, owner_id, question, answer, source, language, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sa.ID, sa.OwnerID, sa.Question, sa.Answer, sa.Source, sa.Language, sa.Category, sa.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting saved answer: %w", err)
	}
	return nil
}

// ListSavedAnswers returns an owner's saved answers, newest first.
// An empty category matches all categories.
func (s *SQLiteStore) ListSavedAnswers(ctx context.Context, ownerID, category string, limit int) ([]*SavedAnswer, error) {
	query := `SELECT id, owner_id, question, answer, source, language, category, created_at
		 FROM saved_answers WHERE owner_id = ?`
	args := []any{ownerID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying saved answers: %w", err)
	}
	defer rows.Close()

	var records []*SavedAnswer
	for rows.Next() {
		var sa SavedAnswer
		if err := rows.Scan(&sa.ID, &sa.OwnerID, &sa.Question, &sa.Answer, &sa.Source,
			&sa.Language, &sa.Category, &sa.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning saved answer: %w", err)
		}
		records = append(records, &sa)
	}
	return records, rows.Err()
}

// DeleteSavedAnswer removes an owner's saved answer.
// Returns ErrNotFound when the record does not exist or belongs to another owner.
func (s *SQLiteStore) DeleteSavedAnswer(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM saved_answers WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting saved answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting saved answer: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
