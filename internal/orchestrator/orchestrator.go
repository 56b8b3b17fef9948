// ABOUTME: Request orchestrator running conversation resolution, adapter fan-out, and aggregation
// ABOUTME: Owns the concurrency model: adapters run in parallel, aggregation waits for all to settle

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lexgate/lex-gateway/internal/aggregate"
	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/conversation"
	"github.com/lexgate/lex-gateway/internal/query"
)

// Service coordinates one validated request from conversation resolution
// through adapter fan-out to the aggregated envelope.
type Service struct {
	registry      *backend.Registry
	conversations *conversation.Service
	maxCitations  int
	logger        *slog.Logger
}

// New creates an orchestrator over the given adapters and conversation service.
func New(registry *backend.Registry, conversations *conversation.Service, maxCitations int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:      registry,
		conversations: conversations,
		maxCitations:  maxCitations,
		logger:        logger.With("component", "orchestrator"),
	}
}

// Ask executes the plan and returns the aggregated envelope. The envelope
// always carries the conversation token once the conversation exists, errors
// included. The error return is reserved for orchestration faults; backend
// failures live inside the envelope.
func (s *Service) Ask(ctx context.Context, req *query.Request, plan *query.Plan, sink backend.ProgressFunc) (*aggregate.Envelope, error) {
	conv, err := s.conversations.Resolve(ctx, req.ConversationToken, req.Language)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation: %w", err)
	}

	history, err := s.conversations.History(ctx, conv.Token)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	adapters := s.registry.ForPlan(plan)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no backend configured for plan %s", plan.Kind)
	}

	q := backend.Query{
		Question: req.Question,
		Language: req.Language,
		History:  history,
	}

	start := time.Now()
	results := s.fanOut(ctx, adapters, q, sink)
	envelope := aggregate.Merge(plan, results, s.maxCitations, time.Since(start))
	envelope.ConversationToken = conv.Token

	if err := s.conversations.AppendTurn(ctx, conv.Token, req.Question, envelope); err != nil {
		// The answer was produced; losing the history write is logged, not fatal
		s.logger.Error("failed to record turn", "token", conv.Token, "error", err)
	}

	s.logger.Info("request completed",
		"plan", plan.Kind.String(),
		"sources", len(adapters),
		"citations", len(envelope.Citations),
		"failed", envelope.Failed(),
		"elapsed", envelope.ResponseTime)

	return envelope, nil
}

// fanOut invokes every adapter concurrently and blocks until each has
// settled. There is no early return on first completion: the terminal
// aggregation step owns the full fan-out.
func (s *Service) fanOut(ctx context.Context, adapters []backend.Adapter, q backend.Query, sink backend.ProgressFunc) []*backend.SourceResult {
	if len(adapters) == 1 {
		return []*backend.SourceResult{adapters[0].Ask(ctx, q, sink)}
	}

	tracker := newProgressTracker(len(adapters), sink)
	results := make([]*backend.SourceResult, len(adapters))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter backend.Adapter) {
			defer wg.Done()
			results[i] = adapter.Ask(ctx, q, tracker.sink(i, adapter.Source()))
		}(i, adapter)
	}
	wg.Wait()

	return results
}

// progressTracker folds per-adapter percentages into one overall figure.
// The overall percent is the mean of each adapter's latest report, so a slow
// sibling holds the total back but never rewinds it.
type progressTracker struct {
	mu       sync.Mutex
	percents []int
	out      backend.ProgressFunc
}

func newProgressTracker(n int, out backend.ProgressFunc) *progressTracker {
	return &progressTracker{
		percents: make([]int, n),
		out:      out,
	}
}

// sink returns the progress callback for one adapter slot.
func (t *progressTracker) sink(i int, src query.Source) backend.ProgressFunc {
	if t.out == nil {
		return nil
	}
	return func(percent int, message string) {
		t.mu.Lock()
		if percent > t.percents[i] {
			t.percents[i] = percent
		}
		total := 0
		for _, p := range t.percents {
			total += p
		}
		overall := total / len(t.percents)
		// emit under the lock so overall percentages reach the sink in order
		t.out(overall, fmt.Sprintf("%s: %s", src, message))
		t.mu.Unlock()
	}
}
