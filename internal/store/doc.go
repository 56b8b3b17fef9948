// Package store provides persistent storage for lex-gateway using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - ConversationStore: Token-addressed conversations and their message log
//   - SubscriberStore: Subscriber identities and entitlements for the access gate
//   - FeedbackStore: Feedback records and subscriber-saved answers
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Data Models
//
//   - Conversation: Turn history addressed by an opaque token with a sliding expiry
//   - Message: One user or assistant turn with extracted cross-reference identifiers
//   - Subscriber: Authenticated caller holding entitlements such as "chatbot"
//   - Feedback: A user's verdict on a produced answer
//   - SavedAnswer: An answer a subscriber persisted to their profile
//
// # Expiry semantics
//
// Conversation lookups only return rows whose expiry lies in the future.
// An expired conversation is indistinguishable from an unknown one; the row is
// left in place and becomes unreachable. TouchConversation extends the expiry
// of a live conversation, implementing the sliding window.
package store
