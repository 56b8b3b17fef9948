// ABOUTME: Per-corpus adapter running embed, retrieve, and synthesize with progress reporting
// ABOUTME: Maps infrastructure faults onto the typed Timeout/Unavailable/Synthesis failures

package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lexgate/lex-gateway/internal/query"
)

// CorpusAdapter is the retrieval+synthesis capability for one legal corpus.
type CorpusAdapter struct {
	source      query.Source
	collection  string
	embedder    Embedder
	searcher    Searcher
	synthesizer Synthesizer
	limit       uint64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewCorpusAdapter creates an adapter for one corpus. The timeout bounds one
// full Ask invocation; it is per-adapter, not request-wide.
func NewCorpusAdapter(source query.Source, collection string, embedder Embedder, searcher Searcher, synthesizer Synthesizer, limit uint64, timeout time.Duration, logger *slog.Logger) *CorpusAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusAdapter{
		source:      source,
		collection:  collection,
		embedder:    embedder,
		searcher:    searcher,
		synthesizer: synthesizer,
		limit:       limit,
		timeout:     timeout,
		logger:      logger.With("component", "backend", "source", string(source)),
	}
}

// Source returns the corpus this adapter serves.
func (a *CorpusAdapter) Source() query.Source {
	return a.source
}

// Ask runs the retrieval and synthesis pipeline for one question.
// Failures are typed and carried inside the result; the sink receives
// monotone progress and is never called after Ask returns.
func (a *CorpusAdapter) Ask(ctx context.Context, q Query, progress ProgressFunc) *SourceResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	report := func(percent int, message string) {
		if progress != nil {
			progress(percent, message)
		}
	}

	report(10, "analyzing question")
	vector, err := a.embedder.Embed(ctx, q.Question)
	if err != nil {
		return a.failed(start, ErrSynthesis, err)
	}

	report(40, "searching "+string(a.source))
	passages, err := a.searcher.Search(ctx, a.collection, vector, a.limit)
	if err != nil {
		return a.failed(start, ErrUnavailable, err)
	}

	citations := make([]Citation, len(passages))
	for i, p := range passages {
		citations[i] = Citation{
			Identifier: p.Identifier,
			Title:      p.Title,
			Excerpt:    p.Excerpt,
			URL:        p.URL,
		}
	}

	if len(passages) == 0 {
		// Nothing to synthesize from; an empty result is not a failure
		report(100, "no matching passages")
		return &SourceResult{
			Source:  a.source,
			Elapsed: time.Since(start),
		}
	}

	report(70, "synthesizing answer")
	answer, err := a.synthesizer.Synthesize(ctx, q, passages)
	if err != nil {
		return a.failed(start, ErrSynthesis, err)
	}

	report(100, "done")
	return &SourceResult{
		Source:         a.source,
		Citations:      citations,
		AnswerFragment: answer,
		Elapsed:        time.Since(start),
	}
}

// failed builds a typed failure result, promoting deadline faults to ErrTimeout.
func (a *CorpusAdapter) failed(start time.Time, kind, cause error) *SourceResult {
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	a.logger.Warn("adapter failed", "kind", kind, "error", cause)
	return &SourceResult{
		Source:  a.source,
		Elapsed: time.Since(start),
		Failure: &Error{Source: a.source, Kind: kind, Cause: cause},
	}
}
