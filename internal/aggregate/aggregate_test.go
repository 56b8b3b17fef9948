// ABOUTME: Tests for result aggregation
// ABOUTME: Covers pass-through, dedup priority, caps, and the partial-failure policy

package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/query"
)

func singlePlan(src query.Source) *query.Plan {
	return &query.Plan{Kind: query.PlanSingle, Sources: []query.Source{src}}
}

func customPlan(sources ...query.Source) *query.Plan {
	return &query.Plan{Kind: query.PlanCustom, Sources: sources}
}

func okResult(src query.Source, answer string, ids ...string) *backend.SourceResult {
	citations := make([]backend.Citation, len(ids))
	for i, id := range ids {
		citations[i] = backend.Citation{Identifier: id, Title: "t-" + id}
	}
	return &backend.SourceResult{Source: src, AnswerFragment: answer, Citations: citations}
}

func failedResult(src query.Source, kind error) *backend.SourceResult {
	return &backend.SourceResult{
		Source:  src,
		Failure: &backend.Error{Source: src, Kind: kind},
	}
}

func TestMerge_SinglePassThrough(t *testing.T) {
	env := Merge(singlePlan(query.SourceLegislation),
		[]*backend.SourceResult{okResult(query.SourceLegislation, "antwoord", "a", "b")},
		5, 120*time.Millisecond)

	assert.False(t, env.Failed())
	assert.Equal(t, "antwoord", env.Answer)
	assert.Len(t, env.Citations, 2)
	assert.Equal(t, 120*time.Millisecond, env.ResponseTime)
}

func TestMerge_SingleFailureBecomesEnvelopeError(t *testing.T) {
	env := Merge(singlePlan(query.SourceLegislation),
		[]*backend.SourceResult{failedResult(query.SourceLegislation, backend.ErrTimeout)},
		5, time.Millisecond)

	assert.True(t, env.Failed())
	assert.Contains(t, env.Error, "legislation")
	assert.Contains(t, env.Error, "timeout")
	assert.Empty(t, env.Answer)
}

func TestMerge_DedupKeepsHigherPrioritySource(t *testing.T) {
	// Both corpora return the overlapping identifier "shared"
	env := Merge(customPlan(query.SourceLegislation, query.SourceJurisprudence),
		[]*backend.SourceResult{
			// Completion order deliberately reversed: jurisprudence settled first
			okResult(query.SourceJurisprudence, "jur-answer", "shared", "jur-only"),
			okResult(query.SourceLegislation, "leg-answer", "shared", "leg-only"),
		},
		5, time.Millisecond)

	ids := env.ReferencedIdentifiers()
	assert.Equal(t, []string{"shared", "leg-only", "jur-only"}, ids)

	// The kept "shared" citation comes from legislation
	assert.Equal(t, "t-shared", env.Citations[0].Title)

	occurrences := 0
	for _, id := range ids {
		if id == "shared" {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestMerge_PerSourceCap(t *testing.T) {
	env := Merge(customPlan(query.SourceLegislation, query.SourceJurisprudence),
		[]*backend.SourceResult{
			okResult(query.SourceLegislation, "", "l1", "l2", "l3", "l4"),
			okResult(query.SourceJurisprudence, "", "j1", "j2", "j3"),
		},
		2, time.Millisecond)

	assert.Equal(t, []string{"l1", "l2", "j1", "j2"}, env.ReferencedIdentifiers())
}

func TestMerge_FragmentsConcatenatedWithSourceLabels(t *testing.T) {
	env := Merge(customPlan(query.SourceLegislation, query.SourceParliamentary),
		[]*backend.SourceResult{
			okResult(query.SourceLegislation, "uit de wet"),
			okResult(query.SourceParliamentary, "uit het parlement"),
		},
		5, time.Millisecond)

	assert.Contains(t, env.Answer, "[legislation]\nuit de wet")
	assert.Contains(t, env.Answer, "[parliamentary]\nuit het parlement")
}

func TestMerge_PartialFailureIsBestEffort(t *testing.T) {
	env := Merge(customPlan(query.SourceLegislation, query.SourceJurisprudence),
		[]*backend.SourceResult{
			failedResult(query.SourceJurisprudence, backend.ErrUnavailable),
			okResult(query.SourceLegislation, "antwoord", "a"),
		},
		5, time.Millisecond)

	// One success means no top-level error
	assert.False(t, env.Failed())
	assert.Equal(t, "[legislation]\nantwoord", env.Answer)
	assert.Len(t, env.Citations, 1)
}

func TestMerge_AllFailed(t *testing.T) {
	env := Merge(customPlan(query.SourceLegislation, query.SourceJurisprudence),
		[]*backend.SourceResult{
			failedResult(query.SourceLegislation, backend.ErrTimeout),
			failedResult(query.SourceJurisprudence, backend.ErrUnavailable),
		},
		5, time.Millisecond)

	require.True(t, env.Failed())
	assert.Contains(t, env.Error, "all sources failed")
	assert.Contains(t, env.Error, "legislation")
	assert.Contains(t, env.Error, "jurisprudence")
	assert.Empty(t, env.Answer)
	assert.Empty(t, env.Citations)
}

func TestMerge_SingleNoResult(t *testing.T) {
	env := Merge(singlePlan(query.SourceLegislation), nil, 5, time.Millisecond)
	assert.True(t, env.Failed())
}

func TestEnvelope_ReferencedIdentifiersEmpty(t *testing.T) {
	env := &Envelope{}
	assert.Nil(t, env.ReferencedIdentifiers())
}
