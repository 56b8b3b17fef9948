// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation expiry semantics, message ordering, and feedback/saved CRUD

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-abc",
		Language:  "nl",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Token != conv.Token {
		t.Errorf("Token = %q, want %q", got.Token, conv.Token)
	}
	if got.Language != "nl" {
		t.Errorf("Language = %q, want %q", got.Language, "nl")
	}
}

func TestCreateConversation_DuplicateToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-dup",
		Language:  "fr",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	err := store.CreateConversation(ctx, conv)
	if !errors.Is(err, ErrDuplicateToken) {
		t.Errorf("CreateConversation error = %v, want ErrDuplicateToken", err)
	}
}

func TestGetConversation_Expired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-expired",
		Language:  "nl",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	_, err := store.GetConversation(ctx, "tok-expired")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation error = %v, want ErrNotFound", err)
	}
}

func TestGetConversation_Unknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "never-created")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation error = %v, want ErrNotFound", err)
	}
}

func TestTouchConversation_ExtendsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-touch",
		Language:  "nl",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	newExpiry := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	if err := store.TouchConversation(ctx, "tok-touch", newExpiry); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "tok-touch")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.ExpiresAt.Equal(newExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, newExpiry)
	}
}

func TestTouchConversation_ExpiredIsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-dead",
		Language:  "nl",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Touching an expired conversation must not resurrect it
	err := store.TouchConversation(ctx, "tok-dead", time.Now().UTC().Add(time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("TouchConversation error = %v, want ErrNotFound", err)
	}
}

func TestSaveAndGetMessages_Ordering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-msgs",
		Language:  "nl",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Token:     "tok-msgs",
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "tok-msgs", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	for i, msg := range messages {
		want := fmt.Sprintf("turn %d", i)
		if msg.Content != want {
			t.Errorf("message %d content = %q, want %q", i, msg.Content, want)
		}
	}

	// Limit keeps the newest messages, still in append order
	limited, err := store.GetMessages(ctx, "tok-msgs", 2)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d messages with limit 2, want 2", len(limited))
	}
	if limited[0].Content != "turn 3" || limited[1].Content != "turn 4" {
		t.Errorf("limited window = [%q, %q], want the two newest turns", limited[0].Content, limited[1].Content)
	}
}

func TestGetMessages_WindowKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-window",
		Language:  "nl",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	for i := 0; i < 30; i++ {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Token:     "tok-window",
			Role:      RoleUser,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: time.Now().UTC(),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "tok-window", 20)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 20 {
		t.Fatalf("got %d messages, want 20", len(messages))
	}
	if messages[0].Content != "turn 10" {
		t.Errorf("oldest in window = %q, want %q", messages[0].Content, "turn 10")
	}
	if messages[19].Content != "turn 29" {
		t.Errorf("newest in window = %q, want %q", messages[19].Content, "turn 29")
	}
}

func TestSaveMessage_SeqOrdersIdenticalTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-seq",
		Language:  "fr",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Same wall-clock instant for every message; only seq can order them.
	at := time.Now().UTC()
	for i := 0; i < 4; i++ {
		msg := &Message{
			ID:        fmt.Sprintf("same-%d", i),
			Token:     "tok-seq",
			Role:      RoleUser,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: at,
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "tok-seq", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	for i, msg := range messages {
		want := fmt.Sprintf("turn %d", i)
		if msg.Content != want {
			t.Errorf("message %d content = %q, want %q", i, msg.Content, want)
		}
		if msg.Seq != int64(i+1) {
			t.Errorf("message %d seq = %d, want %d", i, msg.Seq, i+1)
		}
	}
}

func TestSaveMessage_ReferencedIDsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Token:     "tok-refs",
		Language:  "fr",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	msg := &Message{
		ID:            "msg-refs",
		Token:         "tok-refs",
		Role:          RoleUser,
		Content:       "quelle est la peine?",
		ReferencedIDs: []string{"1867-06-08/01", "1964-04-08/33"},
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "tok-refs", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if len(messages[0].ReferencedIDs) != 2 {
		t.Fatalf("got %d referenced ids, want 2", len(messages[0].ReferencedIDs))
	}
	if messages[0].ReferencedIDs[0] != "1867-06-08/01" {
		t.Errorf("ReferencedIDs[0] = %q, want %q", messages[0].ReferencedIDs[0], "1867-06-08/01")
	}
}

func TestSubscriberRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := &Subscriber{
		ID:           "sub-1",
		Email:        "jurist@example.be",
		Entitlements: []string{EntitlementChatbot},
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateSubscriber(ctx, sub); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}

	got, err := store.GetSubscriber(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetSubscriber failed: %v", err)
	}
	if !got.Active {
		t.Error("Active = false, want true")
	}
	if len(got.Entitlements) != 1 || got.Entitlements[0] != EntitlementChatbot {
		t.Errorf("Entitlements = %v, want [chatbot]", got.Entitlements)
	}

	_, err = store.GetSubscriber(ctx, "sub-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSubscriber error = %v, want ErrNotFound", err)
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fb := &Feedback{
		ID:        "fb-1",
		OwnerID:   "sub-1",
		Question:  "wat is de opzegtermijn?",
		Answer:    "De opzegtermijn bedraagt...",
		Source:    "legislation",
		Language:  "nl",
		Rating:    4,
		Comment:   "nuttig",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveFeedback(ctx, fb); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}

	records, err := store.ListFeedback(ctx, "sub-1", 10)
	if err != nil {
		t.Fatalf("ListFeedback failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Rating != 4 {
		t.Errorf("Rating = %d, want 4", records[0].Rating)
	}
}

func TestSavedAnswers_CategoryFilterAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, cat := range []string{"labor", "labor", "criminal"} {
		sa := &SavedAnswer{
			ID:        fmt.Sprintf("sa-%d", i),
			OwnerID:   "sub-1",
			Question:  "vraag",
			Answer:    "antwoord",
			Source:    "legislation",
			Language:  "nl",
			Category:  cat,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveAnswer(ctx, sa); err != nil {
			t.Fatalf("SaveAnswer failed: %v", err)
		}
	}

	all, err := store.ListSavedAnswers(ctx, "sub-1", "", 10)
	if err != nil {
		t.Fatalf("ListSavedAnswers failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d saved answers, want 3", len(all))
	}

	labor, err := store.ListSavedAnswers(ctx, "sub-1", "labor", 10)
	if err != nil {
		t.Fatalf("ListSavedAnswers failed: %v", err)
	}
	if len(labor) != 2 {
		t.Errorf("got %d labor answers, want 2", len(labor))
	}

	// Deleting with the wrong owner must not remove the record
	err = store.DeleteSavedAnswer(ctx, "someone-else", "sa-0")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSavedAnswer error = %v, want ErrNotFound", err)
	}

	if err := store.DeleteSavedAnswer(ctx, "sub-1", "sa-0"); err != nil {
		t.Fatalf("DeleteSavedAnswer failed: %v", err)
	}

	remaining, err := store.ListSavedAnswers(ctx, "sub-1", "", 10)
	if err != nil {
		t.Fatalf("ListSavedAnswers failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("got %d saved answers after delete, want 2", len(remaining))
	}
}
