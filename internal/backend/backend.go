// ABOUTME: Backend adapter contract for per-corpus retrieval and answer synthesis
// ABOUTME: Defines typed failures, progress sinks, and the source result shape

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexgate/lex-gateway/internal/query"
)

// Typed adapter failures. The orchestrator absorbs these into per-source
// results; they only become request-level errors for single-source plans.
var (
	ErrTimeout     = errors.New("backend timeout")
	ErrUnavailable = errors.New("backend unavailable")
	ErrSynthesis   = errors.New("answer synthesis failed")
)

// Error wraps a typed failure with the corpus it came from.
type Error struct {
	Source query.Source
	Kind   error // ErrTimeout, ErrUnavailable, or ErrSynthesis
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Kind)
}

func (e *Error) Unwrap() error { return e.Kind }

// Citation is a stable reference to a retrieved legal passage.
type Citation struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt"`
	URL        string `json:"url,omitempty"`
}

// Turn is one prior conversation message fed to synthesis as context.
type Turn struct {
	Role    string
	Content string
}

// Query is the per-adapter view of a validated request.
type Query struct {
	Question string
	Language string
	History  []Turn
}

// SourceResult is one adapter's output. Failure is set instead of panicking
// the request; a failed result carries no citations.
type SourceResult struct {
	Source         query.Source
	Citations      []Citation
	AnswerFragment string
	Elapsed        time.Duration
	Failure        *Error
}

// ProgressFunc receives phase updates while an adapter works. Implementations
// may be nil. Adapters must never call the sink after Ask returns, and
// percentages must not decrease within one invocation.
type ProgressFunc func(percent int, message string)

// Adapter is one retrieval+synthesis capability for a named corpus.
type Adapter interface {
	Source() query.Source

	// Ask retrieves passages and synthesizes an answer fragment for the
	// question. A typed failure is reported inside the SourceResult; the
	// error return is reserved for context cancellation.
	Ask(ctx context.Context, q Query, progress ProgressFunc) *SourceResult
}

// Registry holds the configured adapter per corpus.
type Registry struct {
	adapters map[query.Source]Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[query.Source]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Registry{adapters: m}
}

// ForPlan returns the adapters a plan dispatches to, in priority order.
// The combined all-corpora capability is the full fan-out.
func (r *Registry) ForPlan(plan *query.Plan) []Adapter {
	out := make([]Adapter, 0, len(plan.Sources))
	for _, src := range plan.Sources {
		if a, ok := r.adapters[src]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the adapter for one corpus.
func (r *Registry) Get(src query.Source) (Adapter, bool) {
	a, ok := r.adapters[src]
	return a, ok
}
