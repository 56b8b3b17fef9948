// Package auth implements the gateway's access gate.
//
// Two independent authorization paths are evaluated in fixed priority order:
//
//  1. A shared-secret passphrase, compared in constant time against the
//     configured secret (or verified against a bcrypt hash). A match grants
//     access regardless of identity.
//  2. A subscriber bearer token (HS256 JWT) whose subject resolves to an
//     active subscriber holding the "chatbot" entitlement.
//
// Denials are typed: ErrAuthenticationRequired when no usable identity was
// presented, ErrEntitlementRequired when a valid subscriber lacks the
// entitlement. The gate has no side effects and must run before any backend
// invocation or conversation mutation.
package auth
