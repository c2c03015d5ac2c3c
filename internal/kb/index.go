package kb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/philippgille/chromem-go"
)

const defaultMaxResults = 10

// SourceInfo identifies one ingested document.
type SourceInfo struct {
	SourceID string
	Filename string
	Path     string
	URL      string
}

// Result is one scored chunk returned by a query.
type Result struct {
	SourceID string
	Filename string
	Path     string
	URL      string
	Content  string
	Score    float64
}

// Index is the in-process knowledge base: an embedded vector collection plus
// a registry mapping stable source ids to document locations.
type Index struct {
	collection *chromem.Collection

	mu      sync.RWMutex
	sources map[string]SourceInfo
}

// NewIndex builds an empty index using the provided embedding function.
func NewIndex(embed chromem.EmbeddingFunc) (*Index, error) {
	if embed == nil {
		return nil, errors.New("embedding function is required")
	}
	collection, err := chromem.NewDB().CreateCollection("school-docs", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{
		collection: collection,
		sources:    make(map[string]SourceInfo),
	}, nil
}

// AddDocument indexes the chunks of one document and registers its source.
func (idx *Index) AddDocument(ctx context.Context, info SourceInfo, chunks []string) error {
	if info.SourceID == "" {
		return errors.New("source id is required")
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID: fmt.Sprintf("%s#%d", info.SourceID, i),
			Metadata: map[string]string{
				"source_id": info.SourceID,
				"filename":  info.Filename,
			},
			Content: chunk,
		})
	}
	if len(docs) == 0 {
		return errors.New("document has no content")
	}
	if err := idx.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("index %s: %w", info.Filename, err)
	}
	idx.mu.Lock()
	idx.sources[info.SourceID] = info
	idx.mu.Unlock()
	return nil
}

// Query runs a semantic search and keeps only chunks scoring more than one
// standard deviation above the mean, preserving similarity order. The best
// chunk survives even when nothing clears the bar.
func (idx *Index) Query(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if maxResults > count {
		maxResults = count
	}

	hits, err := idx.collection.Query(ctx, query, maxResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	hits = filterByZScore(hits)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		info := idx.sources[hit.Metadata["source_id"]]
		results = append(results, Result{
			SourceID: info.SourceID,
			Filename: info.Filename,
			Path:     info.Path,
			URL:      info.URL,
			Content:  hit.Content,
			Score:    float64(hit.Similarity),
		})
	}
	return results, nil
}

// Source resolves a registered source id.
func (idx *Index) Source(sourceID string) (SourceInfo, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	info, ok := idx.sources[sourceID]
	return info, ok
}

// Count reports the number of indexed chunks.
func (idx *Index) Count() int {
	return idx.collection.Count()
}

func filterByZScore(hits []chromem.Result) []chromem.Result {
	if len(hits) < 2 {
		return hits
	}
	scores := make([]float64, len(hits))
	for i, hit := range hits {
		scores[i] = float64(hit.Similarity)
	}
	mean, std := meanAndSampleStd(scores)
	if std == 0 {
		return hits
	}
	var kept []chromem.Result
	for i, hit := range hits {
		if (scores[i]-mean)/std > 1 {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		return hits[:1]
	}
	return kept
}

func meanAndSampleStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}
