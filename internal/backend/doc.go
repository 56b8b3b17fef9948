// Package backend implements the per-corpus retrieval and synthesis adapters.
//
// Each legal corpus (legislation, jurisprudence, parliamentary) gets one
// CorpusAdapter that embeds the question (OpenAI), retrieves matching passages
// from its Qdrant collection, and synthesizes a prose answer fragment from
// them. The combined all-corpora capability is modeled as the full fan-out
// over the registry.
//
// Adapters report typed failures (ErrTimeout, ErrUnavailable, ErrSynthesis)
// inside their SourceResult rather than raising faults; the orchestration
// layer decides whether a failure is per-source or terminal. Progress sinks
// are optional, receive non-decreasing percentages, and are never invoked
// after Ask returns.
package backend
