// ABOUTME: Qdrant-backed passage retrieval over per-corpus collections
// ABOUTME: Wraps the qdrant go-client query API and payload extraction

package backend

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Passage is one retrieved chunk of legal text with its citation metadata.
type Passage struct {
	Identifier string
	Title      string
	Excerpt    string
	URL        string
	Score      float32
}

// Searcher retrieves passages by embedding similarity.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]Passage, error)

	// Count returns the number of stored points, used by the health endpoint
	// as a corpus-size indicator.
	Count(ctx context.Context, collection string) (uint64, error)
}

// QdrantSearcher implements Searcher against a Qdrant instance.
type QdrantSearcher struct {
	client *qdrant.Client
}

// NewQdrantSearcher connects to Qdrant at the given host and port.
func NewQdrantSearcher(host string, port int) (*QdrantSearcher, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &QdrantSearcher{client: client}, nil
}

// Search queries a collection and maps payloads onto passages.
// Points without an identifier payload are skipped.
func (s *QdrantSearcher) Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]Passage, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	passages := make([]Passage, 0, len(results))
	for _, result := range results {
		if result.Payload == nil {
			continue
		}
		p := Passage{
			Identifier: payloadString(result.Payload, "identifier"),
			Title:      payloadString(result.Payload, "title"),
			Excerpt:    payloadString(result.Payload, "text"),
			URL:        payloadString(result.Payload, "url"),
			Score:      float32(result.Score),
		}
		if p.Identifier == "" {
			continue
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// Count returns the collection's point count.
func (s *QdrantSearcher) Count(ctx context.Context, collection string) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}
	return count, nil
}

// payloadString extracts a string field from a qdrant payload, or "".
func payloadString(payload map[string]*qdrant.Value, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return value.GetStringValue()
}
