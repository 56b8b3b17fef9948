// Package gateway exposes the HTTP API: the ask endpoint with optional SSE
// progress streaming, corpus health, feedback, and subscriber saved answers.
//
// Every route runs the access gate before touching the store or any backend.
// The ask endpoint maps outcomes to statuses: 400 for validation, 401/402 for
// access denials, 503 when the aggregated envelope carries an error, and 500
// for orchestration faults. Once an SSE stream is open, all outcomes arrive
// as the terminal result frame instead.
package gateway
