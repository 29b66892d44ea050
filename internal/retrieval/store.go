// Package retrieval provides the retrieval-augmented context subsystem:
// an embedded vector store over reference chunks, semantic search with
// metadata filters, multi-query expansion and LLM compression.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/chunking"
	"github.com/fyrsmithlabs/reviewd/internal/embeddings"
)

// Chunk is one retrieved unit of reference text. Ephemeral: produced
// per query, consumed within a single stage invocation.
type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Relevance is the similarity score in [0,1].
	Relevance float32 `json:"relevanceScore"`

	Title   string `json:"documentTitle,omitempty"`
	Section string `json:"section,omitempty"`
}

// StoreConfig holds configuration for the embedded vector store.
type StoreConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Collection is the collection name for reference chunks.
	Collection string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/reviewd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "reviewd_reference"
	}
}

// Store persists chunks with embeddings and performs similarity search.
// Built on chromem-go, an embeddable pure-Go vector database with
// persistence to gob files.
type Store struct {
	db       *chromem.DB
	config   StoreConfig
	embedder embeddings.Client
	logger   *zap.Logger
}

// NewStore creates a Store with the given configuration.
func NewStore(config StoreConfig, embedder embeddings.Client, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("vector store initialized",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Bool("compress", config.Compress),
	)

	return &Store{
		db:       db,
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// NewMemoryStore creates a Store without persistence, for tests.
func NewMemoryStore(embedder embeddings.Client, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := StoreConfig{}
	cfg.ApplyDefaults()
	return &Store{
		db:       chromem.NewDB(),
		config:   cfg,
		embedder: embedder,
		logger:   logger,
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc bridges our embedding client to chromem.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

func (s *Store) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return collection, nil
}

// Add embeds and stores chunks. Embedding failures propagate.
func (s *Store) Add(ctx context.Context, chunks []chunking.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	collection, err := s.collection()
	if err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added chunks to vector store", zap.Int("count", len(chunks)))
	return nil
}

// Search performs cosine-similarity search with optional metadata
// equality filters and a minimum-score floor.
func (s *Store) Search(ctx context.Context, query string, k int, filters map[string]string, minScore float32) ([]Chunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	collection, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= doc count.
	docCount := collection.Count()
	if docCount == 0 {
		return []Chunk{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.Query(ctx, query, k, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Relevance: r.Similarity,
			Title:     r.Metadata[chunking.MetaTitle],
			Section:   r.Metadata[chunking.MetaSection],
		})
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() (int, error) {
	collection, err := s.collection()
	if err != nil {
		return 0, err
	}
	return collection.Count(), nil
}
