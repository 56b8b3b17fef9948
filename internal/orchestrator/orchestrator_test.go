// ABOUTME: Tests for the orchestrator fan-out and envelope assembly
// ABOUTME: Uses in-memory stubs for adapters and a real sqlite-backed conversation service

package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/conversation"
	"github.com/lexgate/lex-gateway/internal/query"
	"github.com/lexgate/lex-gateway/internal/store"
)

type stubAdapter struct {
	source   query.Source
	result   *backend.SourceResult
	delay    time.Duration
	progress []int

	mu      sync.Mutex
	invoked bool
	gotHist int
}

func (a *stubAdapter) Source() query.Source { return a.source }

func (a *stubAdapter) Ask(ctx context.Context, q backend.Query, report backend.ProgressFunc) *backend.SourceResult {
	a.mu.Lock()
	a.invoked = true
	a.gotHist = len(q.History)
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
		}
	}
	for _, p := range a.progress {
		if report != nil {
			report(p, "working")
		}
	}
	res := *a.result
	res.Source = a.source
	return &res
}

func okResult(fragment, identifier string) *backend.SourceResult {
	return &backend.SourceResult{
		AnswerFragment: fragment,
		Citations: []backend.Citation{
			{Identifier: identifier, Title: "t", Excerpt: "e"},
		},
	}
}

func newTestService(t *testing.T, adapters ...backend.Adapter) (*Service, *conversation.Service) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "orch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	convs := conversation.New(st, 30*time.Minute, nil)
	t.Cleanup(func() { convs.Close() })

	return New(backend.NewRegistry(adapters...), convs, 5, nil), convs
}

func TestAskSingleSource(t *testing.T) {
	a := &stubAdapter{source: query.SourceLegislation, result: okResult("answer text", "art-1"), progress: []int{10, 100}}
	svc, _ := newTestService(t, a)

	req := &query.Request{Question: "what is article 1?", Language: "nl"}
	plan := &query.Plan{Kind: query.PlanSingle, Sources: []query.Source{query.SourceLegislation}}

	env, err := svc.Ask(context.Background(), req, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer text", env.Answer)
	assert.NotEmpty(t, env.ConversationToken)
	assert.False(t, env.Failed())
	assert.True(t, a.invoked)
}

func TestAskFanOutRunsAllAdapters(t *testing.T) {
	leg := &stubAdapter{source: query.SourceLegislation, result: okResult("from legislation", "art-1")}
	jur := &stubAdapter{source: query.SourceJurisprudence, result: okResult("from jurisprudence", "case-1")}
	par := &stubAdapter{source: query.SourceParliamentary, result: okResult("from parliament", "doc-1")}
	svc, _ := newTestService(t, leg, jur, par)

	req := &query.Request{Question: "q", Language: "nl"}
	plan := &query.Plan{Kind: query.PlanAll, Sources: query.Priority()}

	env, err := svc.Ask(context.Background(), req, plan, nil)
	require.NoError(t, err)
	assert.True(t, leg.invoked)
	assert.True(t, jur.invoked)
	assert.True(t, par.invoked)
	assert.Contains(t, env.Answer, "[legislation]")
	assert.Contains(t, env.Answer, "[jurisprudence]")
	assert.Contains(t, env.Answer, "[parliamentary]")
	assert.Len(t, env.Citations, 3)
}

func TestAskWaitsForSlowestAdapter(t *testing.T) {
	fast := &stubAdapter{source: query.SourceLegislation, result: okResult("fast", "a")}
	slow := &stubAdapter{source: query.SourceJurisprudence, result: okResult("slow", "b"), delay: 150 * time.Millisecond}
	svc, _ := newTestService(t, fast, slow)

	plan := &query.Plan{Kind: query.PlanCustom, Sources: []query.Source{query.SourceLegislation, query.SourceJurisprudence}}
	env, err := svc.Ask(context.Background(), &query.Request{Question: "q", Language: "fr"}, plan, nil)
	require.NoError(t, err)
	assert.Contains(t, env.Answer, "slow")
	assert.Contains(t, env.Answer, "fast")
}

func TestAskRecordsConversationTurn(t *testing.T) {
	a := &stubAdapter{source: query.SourceLegislation, result: okResult("answer", "art-9")}
	svc, convs := newTestService(t, a)

	plan := &query.Plan{Kind: query.PlanSingle, Sources: []query.Source{query.SourceLegislation}}
	env, err := svc.Ask(context.Background(), &query.Request{Question: "first question", Language: "nl"}, plan, nil)
	require.NoError(t, err)

	history, err := convs.History(context.Background(), env.ConversationToken)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first question", history[0].Content)
	assert.Equal(t, "answer", history[1].Content)
}

func TestAskFollowUpCarriesHistory(t *testing.T) {
	a := &stubAdapter{source: query.SourceLegislation, result: okResult("answer", "art-9")}
	svc, _ := newTestService(t, a)

	plan := &query.Plan{Kind: query.PlanSingle, Sources: []query.Source{query.SourceLegislation}}
	ctx := context.Background()

	env, err := svc.Ask(ctx, &query.Request{Question: "first", Language: "nl"}, plan, nil)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, &query.Request{Question: "follow-up", Language: "nl", ConversationToken: env.ConversationToken}, plan, nil)
	require.NoError(t, err)

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, 2, a.gotHist, "second ask should see the first turn as history")
}

func TestAskOverallProgressNeverDecreases(t *testing.T) {
	leg := &stubAdapter{source: query.SourceLegislation, result: okResult("a", "x"), progress: []int{10, 40, 70, 100}}
	jur := &stubAdapter{source: query.SourceJurisprudence, result: okResult("b", "y"), progress: []int{10, 40, 70, 100}}
	svc, _ := newTestService(t, leg, jur)

	var mu sync.Mutex
	var seen []int
	sink := func(percent int, message string) {
		mu.Lock()
		seen = append(seen, percent)
		mu.Unlock()
	}

	plan := &query.Plan{Kind: query.PlanAll, Sources: []query.Source{query.SourceLegislation, query.SourceJurisprudence}}
	_, err := svc.Ask(context.Background(), &query.Request{Question: "q", Language: "nl"}, plan, sink)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, p := range seen {
		assert.LessOrEqual(t, p, 100)
		assert.GreaterOrEqual(t, p, 0)
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestAskNoAdaptersForPlan(t *testing.T) {
	a := &stubAdapter{source: query.SourceLegislation, result: okResult("a", "x")}
	svc, _ := newTestService(t, a)

	plan := &query.Plan{Kind: query.PlanSingle, Sources: []query.Source{query.SourceJurisprudence}}
	_, err := svc.Ask(context.Background(), &query.Request{Question: "q", Language: "nl"}, plan, nil)
	assert.Error(t, err)
}
