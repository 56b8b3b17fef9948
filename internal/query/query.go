// ABOUTME: Query router normalizing raw ask parameters into a typed request and source plan
// ABOUTME: Validates question/language/sources before any backend work is dispatched

package query

import (
	"fmt"
	"strings"
)

// Source names one legal corpus.
type Source string

// Known corpora, in aggregation priority order.
const (
	SourceLegislation   Source = "legislation"
	SourceJurisprudence Source = "jurisprudence"
	SourceParliamentary Source = "parliamentary"
)

// SourceAll is the keyword requesting the combined plan over every corpus.
const SourceAll = "all"

// Priority returns every known source in aggregation priority order.
func Priority() []Source {
	return []Source{SourceLegislation, SourceJurisprudence, SourceParliamentary}
}

// Supported languages.
const (
	LanguageDutch  = "nl"
	LanguageFrench = "fr"
)

// PlanKind tags the shape of a source plan.
type PlanKind int

const (
	// PlanSingle dispatches one adapter; its failure becomes the request's error.
	PlanSingle PlanKind = iota
	// PlanAll dispatches the combined all-corpora capability.
	PlanAll
	// PlanCustom fans out to an explicit set of two or more corpora.
	PlanCustom
)

// String returns the plan kind's wire name.
func (k PlanKind) String() string {
	switch k {
	case PlanSingle:
		return "single"
	case PlanAll:
		return "all"
	case PlanCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Plan is the resolved dispatch shape of a request. Downstream components
// never re-interpret raw source parameters; this is resolved once here.
type Plan struct {
	Kind    PlanKind
	Sources []Source // priority order; all three for PlanAll
}

// Request is an immutable, validated ask request.
type Request struct {
	Question          string
	Language          string
	Stream            bool
	HTML              bool
	ConversationToken string
}

// RawRequest carries the parameters as the client supplied them.
// Source and Sources are merged; the "all" keyword wins over named sources.
type RawRequest struct {
	Question          string
	Language          string
	Source            string
	Sources           []string
	Stream            bool
	HTML              bool
	ConversationToken string
}

// ValidationError reports a rejected request parameter. No backend work is
// performed for a request that fails validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Parse validates and normalizes a raw request into a Request and Plan.
//
// Source resolution: the "all" keyword produces PlanAll; a singleton named set
// collapses to PlanSingle; two or more named sources become PlanCustom.
// Unrecognized names are dropped; an empty or fully-invalid set falls back to
// Single(legislation). The fallback is a deliberate fail-open policy toward
// the cheapest corpus, not a best-effort merge.
func Parse(raw RawRequest) (*Request, *Plan, error) {
	question := strings.TrimSpace(raw.Question)
	if question == "" {
		return nil, nil, &ValidationError{Field: "question", Reason: "must not be empty"}
	}

	language := strings.ToLower(strings.TrimSpace(raw.Language))
	switch language {
	case LanguageDutch, LanguageFrench:
	case "":
		return nil, nil, &ValidationError{Field: "language", Reason: "must be provided (nl or fr)"}
	default:
		return nil, nil, &ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q (nl or fr)", raw.Language)}
	}

	plan := resolvePlan(raw.Source, raw.Sources)

	req := &Request{
		Question:          question,
		Language:          language,
		Stream:            raw.Stream,
		HTML:              raw.HTML,
		ConversationToken: strings.TrimSpace(raw.ConversationToken),
	}
	return req, plan, nil
}

// resolvePlan collapses the dynamic source parameter shapes into one tagged plan.
func resolvePlan(single string, multi []string) *Plan {
	names := make([]string, 0, len(multi)+1)
	if single != "" {
		names = append(names, single)
	}
	names = append(names, multi...)

	seen := make(map[Source]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == SourceAll {
			return &Plan{Kind: PlanAll, Sources: Priority()}
		}
		if src, ok := parseSource(name); ok {
			seen[src] = true
		}
	}

	// Canonical priority order, independent of client ordering
	var sources []Source
	for _, src := range Priority() {
		if seen[src] {
			sources = append(sources, src)
		}
	}

	switch len(sources) {
	case 0:
		// Fail open to the cheapest corpus
		return &Plan{Kind: PlanSingle, Sources: []Source{SourceLegislation}}
	case 1:
		return &Plan{Kind: PlanSingle, Sources: sources}
	default:
		return &Plan{Kind: PlanCustom, Sources: sources}
	}
}

// parseSource maps a raw name onto a known corpus.
func parseSource(name string) (Source, bool) {
	switch Source(name) {
	case SourceLegislation, SourceJurisprudence, SourceParliamentary:
		return Source(name), true
	default:
		return "", false
	}
}
