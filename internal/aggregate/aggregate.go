// ABOUTME: Pure result aggregation merging per-source adapter outputs into one envelope
// ABOUTME: Handles citation dedup by identifier, per-source caps, and partial-failure policy

package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/query"
)

// Envelope is the aggregated answer for one request.
// Error is empty unless the request as a whole failed.
type Envelope struct {
	Answer            string
	Citations         []backend.Citation
	ResponseTime      time.Duration
	ConversationToken string
	Error             string
}

// Failed reports whether the envelope carries a request-level error.
func (e *Envelope) Failed() bool {
	return e.Error != ""
}

// ReferencedIdentifiers returns the identifiers of the envelope's citations,
// used as cross-reference IDs on the recorded conversation turn.
func (e *Envelope) ReferencedIdentifiers() []string {
	if len(e.Citations) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.Citations))
	for _, c := range e.Citations {
		ids = append(ids, c.Identifier)
	}
	return ids
}

// Merge combines the settled per-source results of a plan into one envelope.
//
// Single plans pass their sole result through; its failure becomes the
// request's error. Multi-source plans merge citations in source priority
// order, deduplicate by identifier keeping the first occurrence, cap each
// source's contribution at maxPerSource, and concatenate answer fragments
// with a source-labeled delimiter. If every source failed the answer is empty
// and the error combines the failures; if some succeeded the envelope is
// best-effort with no top-level error.
//
// responseTime is the wall-clock elapsed of the whole fan-out, not the sum
// of per-source times.
func Merge(plan *query.Plan, results []*backend.SourceResult, maxPerSource int, responseTime time.Duration) *Envelope {
	env := &Envelope{ResponseTime: responseTime}

	if plan.Kind == query.PlanSingle {
		if len(results) == 0 {
			env.Error = "no result produced"
			return env
		}
		result := results[0]
		if result.Failure != nil {
			env.Error = describeFailure(result.Failure)
			return env
		}
		env.Answer = result.AnswerFragment
		env.Citations = capCitations(result.Citations, maxPerSource)
		return env
	}

	// Order results by source priority regardless of completion order
	bySource := make(map[query.Source]*backend.SourceResult, len(results))
	for _, r := range results {
		bySource[r.Source] = r
	}

	var fragments []string
	var failures []string
	seen := make(map[string]bool)
	succeeded := 0

	for _, src := range plan.Sources {
		result, ok := bySource[src]
		if !ok {
			continue
		}
		if result.Failure != nil {
			failures = append(failures, describeFailure(result.Failure))
			continue
		}
		succeeded++

		kept := 0
		for _, c := range result.Citations {
			if kept >= maxPerSource {
				break
			}
			if seen[c.Identifier] {
				continue
			}
			seen[c.Identifier] = true
			env.Citations = append(env.Citations, c)
			kept++
		}

		if result.AnswerFragment != "" {
			fragments = append(fragments, fmt.Sprintf("[%s]\n%s", src, result.AnswerFragment))
		}
	}

	if succeeded == 0 {
		env.Error = "all sources failed: " + strings.Join(failures, "; ")
		return env
	}

	env.Answer = strings.Join(fragments, "\n\n")
	return env
}

// capCitations truncates a citation list to the configured maximum.
func capCitations(citations []backend.Citation, max int) []backend.Citation {
	if len(citations) <= max {
		return citations
	}
	return citations[:max]
}

// describeFailure renders a typed failure for the envelope error field.
func describeFailure(failure *backend.Error) string {
	return fmt.Sprintf("%s: %v", failure.Source, failure.Kind)
}
