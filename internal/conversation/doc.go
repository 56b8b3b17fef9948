// Package conversation manages token-addressed turn history.
//
// A conversation is a session without cookies: it is addressed by an opaque,
// unguessable token returned in every answer envelope. Expiry is sliding:
// every resolve of a live token resets the clock, and an expired token is
// treated exactly like an unknown one, silently producing a new conversation.
//
// Each answered request appends exactly one user message and, when an answer
// was produced, exactly one assistant message. Appends are serialized
// per-token through a TTL-cleaned lock registry so concurrent turns on one
// token cannot interleave.
package conversation
