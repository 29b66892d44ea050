package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

// mockLLM scripts the structured-generation client.
type mockLLM struct {
	generate   func(system, user string) (string, error)
	structured func(system, user string, out any) error
}

func (m *mockLLM) Generate(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	if m.generate == nil {
		return "", nil
	}
	return m.generate(system, user)
}

func (m *mockLLM) GenerateStructured(ctx context.Context, system, user string, opts llm.Options, out any) error {
	if m.structured == nil {
		return nil
	}
	return m.structured(system, user, out)
}

// structuredJSON scripts GenerateStructured to decode a fixed JSON body.
func structuredJSON(body string) func(system, user string, out any) error {
	return func(system, user string, out any) error {
		return llm.DecodeStructured(body, out)
	}
}

// mockRetriever scripts the retrieval capability.
type mockRetriever struct {
	retrieve func(query string, opts retrieval.Options) ([]retrieval.Chunk, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Chunk, error) {
	if m.retrieve == nil {
		return nil, nil
	}
	return m.retrieve(query, opts)
}

// fakeIndexer records source-document ingestion calls.
type fakeIndexer struct {
	titles   []string
	docTypes []string
	texts    []string
	err      error
}

func (f *fakeIndexer) IngestDocument(ctx context.Context, title, docType, text string) (int, error) {
	f.titles = append(f.titles, title)
	f.docTypes = append(f.docTypes, docType)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

// newTestDeps builds stage deps over a seeded store.
func newTestDeps(t *testing.T, client *mockLLM, retriever *mockRetriever) (Deps, *matter.Matter) {
	t.Helper()
	store := matter.NewMemoryStore()
	m := matter.New(matter.Request{
		DocType:       "saas",
		Jurisdiction:  "CA",
		RiskTolerance: matter.RiskMedium,
		Audience:      matter.AudienceLegal,
		DocumentText:  "SECTION 1. TERM\nThis agreement lasts one year.",
	})
	require.NoError(t, store.Set(context.Background(), m))
	if retriever == nil {
		retriever = &mockRetriever{}
	}
	return Deps{
		Store:     store,
		LLM:       client,
		Retriever: retriever,
		Citations: matter.NewMemoryCitations(),
	}, m
}

// recordingStore counts Update calls and captures streamed confidence
// snapshots, delegating to the wrapped store.
type recordingStore struct {
	matter.Store
	updates     int
	issueLens   []int
	confidences []float64
}

func (r *recordingStore) Update(ctx context.Context, id string, u matter.Update) (*matter.Matter, error) {
	r.updates++
	if u.Issues != nil {
		r.issueLens = append(r.issueLens, len(u.Issues))
	}
	if u.OverallConfidence != nil {
		r.confidences = append(r.confidences, *u.OverallConfidence)
	}
	return r.Store.Update(ctx, id, u)
}

// seedIssues puts issues on the matter both in memory and in the store.
func seedIssues(t *testing.T, deps Deps, m *matter.Matter, issues []matter.Issue) {
	t.Helper()
	m.Issues = issues
	_, err := deps.Store.Update(context.Background(), m.ID, matter.Update{Issues: issues})
	require.NoError(t, err)
}
