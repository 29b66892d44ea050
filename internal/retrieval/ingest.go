package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/reviewd/internal/chunking"
)

// ReferenceDocument is one knowledge-base document to ingest.
type ReferenceDocument struct {
	Title   string `json:"title"`
	DocType string `json:"docType"`
	Text    string `json:"text"`
}

// Ingestor loads documents into the vector store. Reference documents
// go through the overlap chunker, paced so a bulk load does not
// saturate the embedding service; matter source documents go through
// the hierarchical chunker so their sections and clauses are
// individually retrievable.
type Ingestor struct {
	store   *Store
	chunker *chunking.OverlapChunker
	hier    *chunking.HierarchicalChunker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewIngestor creates an Ingestor. docsPerSecond bounds ingestion pace;
// zero means one document per second.
func NewIngestor(store *Store, chunker *chunking.OverlapChunker, docsPerSecond float64, logger *zap.Logger) *Ingestor {
	if docsPerSecond <= 0 {
		docsPerSecond = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:   store,
		chunker: chunker,
		hier:    chunking.NewHierarchicalChunker(chunking.HierarchicalConfig{}),
		limiter: rate.NewLimiter(rate.Limit(docsPerSecond), 1),
		logger:  logger.Named("ingestor"),
	}
}

// IngestDocument chunks one source document along its legal structure
// (sections, clauses, sentence fallback) and stores it so retrieval
// surfaces the document's own text alongside the reference corpus.
// Returns the number of chunks stored.
func (in *Ingestor) IngestDocument(ctx context.Context, title, docType, text string) (int, error) {
	chunks := in.hier.Chunk(text)
	if len(chunks) == 0 {
		in.logger.Warn("document produced no chunks", zap.String("title", title))
		return 0, nil
	}
	for i := range chunks {
		chunks[i].Metadata[chunking.MetaTitle] = title
		chunks[i].Metadata[chunking.MetaDocType] = docType
	}

	if err := in.store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("indexing document %q: %w", title, err)
	}
	in.logger.Info("indexed source document",
		zap.String("title", title),
		zap.String("doc_type", docType),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// Ingest chunks and stores the given documents. Returns the number of
// chunks stored. Embedding failures abort the load.
func (in *Ingestor) Ingest(ctx context.Context, docs []ReferenceDocument) (int, error) {
	total := 0
	for _, doc := range docs {
		if err := in.limiter.Wait(ctx); err != nil {
			return total, fmt.Errorf("ingestion pacing: %w", err)
		}

		chunks := in.chunker.Chunk(doc.Text)
		for i := range chunks {
			chunks[i].Metadata[chunking.MetaTitle] = doc.Title
			chunks[i].Metadata[chunking.MetaDocType] = doc.DocType
		}
		if len(chunks) == 0 {
			in.logger.Warn("document produced no chunks", zap.String("title", doc.Title))
			continue
		}

		if err := in.store.Add(ctx, chunks); err != nil {
			return total, fmt.Errorf("ingesting %q: %w", doc.Title, err)
		}
		total += len(chunks)

		in.logger.Info("ingested reference document",
			zap.String("title", doc.Title),
			zap.String("doc_type", doc.DocType),
			zap.Int("chunks", len(chunks)),
		)
	}
	return total, nil
}
