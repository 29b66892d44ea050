package matter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		DocType:       "nda",
		Jurisdiction:  "NY",
		RiskTolerance: RiskMedium,
		Audience:      AudienceLegal,
		DocumentText:  "This Agreement is made...",
	}
}

func TestNew_StageInvariant(t *testing.T) {
	m := New(testRequest())

	require.Len(t, m.Stages, 9)
	for i, id := range StageOrder {
		assert.Equal(t, id, m.Stages[i].ID)
		assert.Equal(t, StagePending, m.Stages[i].Status)
		assert.NotEmpty(t, m.Stages[i].Label)
		assert.Nil(t, m.Stages[i].StartedAt)
	}
	assert.Equal(t, StatusProcessing, m.Status)
	assert.NotEmpty(t, m.ID)
	require.Len(t, m.AuditLog, 1)
	assert.Equal(t, "created", m.AuditLog[0].Event)
}

func TestMemoryStore_GetAbsent(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	m := New(testRequest())

	require.NoError(t, store.Set(context.Background(), m))

	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.DocType, got.DocType)
	require.Len(t, got.Stages, 9)
}

func TestMemoryStore_DeepCopyIsolation(t *testing.T) {
	store := NewMemoryStore()
	m := New(testRequest())
	require.NoError(t, store.Set(context.Background(), m))

	// Mutating a fetched copy must not leak into the store until Set.
	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	got.Stages[0].Status = StageRunning
	got.Issues = append(got.Issues, Issue{ID: "i1", Title: "leaked"})

	fresh, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, StagePending, fresh.Stages[0].Status)
	assert.Empty(t, fresh.Issues)
}

func TestMemoryStore_LastWriterWins(t *testing.T) {
	store := NewMemoryStore()
	m := New(testRequest())
	require.NoError(t, store.Set(context.Background(), m))

	first, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	second, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)

	first.Issues = []Issue{{ID: "a", Title: "from first"}}
	second.Issues = []Issue{{ID: "b", Title: "from second"}}

	require.NoError(t, store.Set(context.Background(), first))
	require.NoError(t, store.Set(context.Background(), second))

	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "b", got.Issues[0].ID)
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	m := New(testRequest())
	require.NoError(t, store.Set(context.Background(), m))

	conf := 0.85
	merged, err := store.Update(context.Background(), m.ID, Update{
		Issues:            []Issue{{ID: "i1", Title: "Cap", Severity: SeverityHigh}},
		OverallConfidence: &conf,
	})
	require.NoError(t, err)
	require.Len(t, merged.Issues, 1)
	assert.Equal(t, 0.85, merged.OverallConfidence)

	// Fields not in the update are untouched.
	assert.Equal(t, "nda", merged.DocType)
	require.Len(t, merged.Stages, 9)

	_, err = store.Update(context.Background(), "missing", Update{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_ApplyLeavesNilFieldsAlone(t *testing.T) {
	m := New(testRequest())
	m.Issues = []Issue{{ID: "i1"}}
	m.OverallConfidence = 0.5

	Update{}.Apply(m)

	require.Len(t, m.Issues, 1)
	assert.Equal(t, 0.5, m.OverallConfidence)

	revised := true
	Update{DraftRevised: &revised}.Apply(m)
	assert.True(t, m.DraftRevised)
	require.Len(t, m.Issues, 1)
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Less(t, SeverityLow.Rank(), SeverityInfo.Rank())
	assert.Greater(t, Severity("bogus").Rank(), SeverityInfo.Rank())
}

func TestMemoryCitations_RecordAndFetch(t *testing.T) {
	rec := NewMemoryCitations()

	require.NoError(t, rec.Record(context.Background(), Citation{
		MatterID: "m1", IssueID: "i1", ChunkID: "c1", Relevance: 0.9,
	}))
	require.NoError(t, rec.Record(context.Background(), Citation{
		MatterID: "m1", IssueID: "i2", ChunkID: "c2", Relevance: 0.8,
	}))

	got, err := rec.ForMatter(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].RecordedAt.IsZero())

	other, err := rec.ForMatter(context.Background(), "m2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
