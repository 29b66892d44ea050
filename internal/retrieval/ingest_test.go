package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reviewd/internal/chunking"
)

// stubEmbedder returns a fixed unit vector so the memory store can be
// exercised without an embedding service.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

const sourceContract = `SECTION 1. GOVERNING LAW
1.1 This Agreement is governed by the laws of the State of Delaware without regard to conflicts rules.

SECTION 2. ASSIGNMENT
2.1 Neither party may assign this Agreement without the prior written consent of the other party.
`

func newTestIngestor(t *testing.T) (*Ingestor, *Store) {
	t.Helper()
	store, err := NewMemoryStore(stubEmbedder{}, nil)
	require.NoError(t, err)
	return NewIngestor(store, chunking.NewOverlapChunker(chunking.OverlapConfig{}), 100, nil), store
}

func TestIngestDocument_ChunksAlongStructure(t *testing.T) {
	in, store := newTestIngestor(t)

	n, err := in.IngestDocument(context.Background(), "matter-1", "saas", sourceContract)
	require.NoError(t, err)
	// Two sections plus two clauses from the hierarchical pass.
	assert.Equal(t, 4, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, n, count)

	// Stored chunks carry the matter's identity so retrieval filters
	// can target the source document.
	chunks, err := store.Search(context.Background(), "assignment consent", 2,
		map[string]string{chunking.MetaTitle: "matter-1"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "matter-1", c.Title)
		assert.Equal(t, "saas", c.Metadata[chunking.MetaDocType])
	}
}

func TestIngestDocument_EmptyText(t *testing.T) {
	in, store := newTestIngestor(t)

	n, err := in.IngestDocument(context.Background(), "matter-2", "nda", "   \n")
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_ReferenceDocuments(t *testing.T) {
	in, store := newTestIngestor(t)

	n, err := in.Ingest(context.Background(), []ReferenceDocument{
		{Title: "Delaware choice-of-law playbook", DocType: "saas", Text: "Choice of law clauses in SaaS agreements commonly select Delaware."},
		{Title: "Empty doc", DocType: "saas", Text: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
