package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/chunking"
	"github.com/fyrsmithlabs/reviewd/internal/llm"
)

// Searcher is the similarity-search dependency of the Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filters map[string]string, minScore float32) ([]Chunk, error)
}

// Options control one retrieval call. Call sites differ only in which
// flags they set.
type Options struct {
	// TopK is the number of chunks to return.
	TopK int

	// DocType filters chunks by document type metadata. Empty matches all.
	DocType string

	// Section filters chunks by section metadata. Empty matches all.
	Section string

	// MinScore drops chunks below this relevance.
	MinScore float32

	// Expand enables multi-query expansion: NumQueries LLM paraphrases,
	// searched separately and deduplicated by chunk ID keeping the max
	// observed score.
	Expand     bool
	NumQueries int

	// Compress enables LLM re-ranking down to TopK when more than
	// MaxChunks were retrieved.
	Compress  bool
	MaxChunks int
}

// Defaults are the operator-tunable values applied to any Options field
// a call site leaves zero.
type Defaults struct {
	TopK       int
	MinScore   float32
	NumQueries int
	MaxChunks  int
}

// ApplyDefaults sets default values for unset fields.
func (d *Defaults) ApplyDefaults() {
	if d.TopK <= 0 {
		d.TopK = 5
	}
	if d.NumQueries <= 0 {
		d.NumQueries = 3
	}
	if d.MaxChunks <= 0 {
		d.MaxChunks = 8
	}
}

// Retriever composes the retrieval pipeline:
// search -> (expand) -> (compress) -> min-relevance filter.
type Retriever struct {
	store    Searcher
	llm      llm.Client
	defaults Defaults
	logger   *zap.Logger
}

// NewRetriever creates a Retriever. defaults govern any Options field a
// call site does not set.
func NewRetriever(store Searcher, client llm.Client, defaults Defaults, logger *zap.Logger) *Retriever {
	defaults.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, llm: client, defaults: defaults, logger: logger.Named("retriever")}
}

// Retrieve runs the composed retrieval pipeline for one query.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Chunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = r.defaults.TopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = r.defaults.MinScore
	}
	if opts.NumQueries <= 0 {
		opts.NumQueries = r.defaults.NumQueries
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = r.defaults.MaxChunks
	}

	filters := map[string]string{}
	if opts.DocType != "" {
		filters[chunking.MetaDocType] = opts.DocType
	}
	if opts.Section != "" {
		filters[chunking.MetaSection] = opts.Section
	}
	if len(filters) == 0 {
		filters = nil
	}

	var chunks []Chunk
	var err error
	if opts.Expand {
		chunks, err = r.multiQuery(ctx, query, filters, opts)
	} else {
		chunks, err = r.store.Search(ctx, query, opts.TopK, filters, 0)
	}
	if err != nil {
		return nil, err
	}

	if opts.Compress && opts.MaxChunks > 0 && len(chunks) > opts.MaxChunks {
		chunks = r.compress(ctx, query, chunks, opts.TopK)
	}

	// Final precision floor.
	filtered := chunks[:0]
	for _, c := range chunks {
		if c.Relevance >= opts.MinScore {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// queryExpansion is the structured output of the paraphrase prompt.
type queryExpansion struct {
	Queries []string `json:"queries"`
}

const expandSystemPrompt = `You rewrite legal research queries. Given a query, produce semantically ` +
	`diverse paraphrases that would surface different relevant passages. ` +
	`Respond with JSON: {"queries": ["...", "..."]}`

// multiQuery expands the query into N paraphrases, searches each, and
// deduplicates by chunk ID keeping the highest score seen, truncated to
// TopK by score. Improves recall at the cost of N extra searches.
func (r *Retriever) multiQuery(ctx context.Context, query string, filters map[string]string, opts Options) ([]Chunk, error) {
	n := opts.NumQueries

	queries := []string{query}
	var expansion queryExpansion
	err := r.llm.GenerateStructured(ctx, expandSystemPrompt,
		fmt.Sprintf("Generate %d paraphrases of: %s", n-1, query),
		llm.Options{Temperature: 0.7}, &expansion)
	if err != nil {
		// Expansion is best-effort; fall back to the original query.
		r.logger.Warn("query expansion failed", zap.Error(err))
	} else {
		for _, q := range expansion.Queries {
			if q = strings.TrimSpace(q); q != "" && len(queries) < n {
				queries = append(queries, q)
			}
		}
	}

	best := make(map[string]Chunk)
	for _, q := range queries {
		results, err := r.store.Search(ctx, q, opts.TopK, filters, 0)
		if err != nil {
			return nil, fmt.Errorf("searching variation %q: %w", q, err)
		}
		for _, c := range results {
			if prev, ok := best[c.ID]; !ok || c.Relevance > prev.Relevance {
				best[c.ID] = c
			}
		}
	}

	merged := make([]Chunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Relevance > merged[j].Relevance })
	if len(merged) > opts.TopK {
		merged = merged[:opts.TopK]
	}
	return merged, nil
}

// rerankResult is the structured output of the compression prompt.
type rerankResult struct {
	Indices []int `json:"indices"`
}

const compressSystemPrompt = `You rank reference passages by relevance to a legal research query. ` +
	`Respond with JSON: {"indices": [0, 2, ...]} listing the most relevant passage indices, best first.`

// compress asks the model to re-rank chunks and keeps the top-K indices
// it returns. A precision pass layered after the recall pass; failures
// fall back to the uncompressed set.
func (r *Retriever) compress(ctx context.Context, query string, chunks []Chunk, topK int) []Chunk {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nPassages:\n", query)
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, c.Content)
	}
	fmt.Fprintf(&sb, "Return the indices of the %d most relevant passages.", topK)

	var result rerankResult
	if err := r.llm.GenerateStructured(ctx, compressSystemPrompt, sb.String(), llm.Options{}, &result); err != nil {
		r.logger.Warn("compression rerank failed, keeping uncompressed set", zap.Error(err))
		return chunks
	}

	kept := make([]Chunk, 0, topK)
	for _, idx := range result.Indices {
		if idx < 0 || idx >= len(chunks) || len(kept) >= topK {
			continue
		}
		kept = append(kept, chunks[idx])
	}
	if len(kept) == 0 {
		return chunks
	}
	return kept
}
