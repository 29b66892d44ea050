package matter

import (
	"context"
	"sync"
	"time"
)

// Citation links a retrieved reference chunk to the issue it informed.
// Citations are a write-only audit trail; recording failures are
// swallowed by callers.
type Citation struct {
	MatterID   string    `json:"matterId"`
	IssueID    string    `json:"issueId"`
	ChunkID    string    `json:"chunkId"`
	Relevance  float64   `json:"relevanceScore"`
	Text       string    `json:"citationText"`
	RecordedAt time.Time `json:"recordedAt"`
}

// CitationRecorder records citations durably, keyed by matter+issue.
type CitationRecorder interface {
	Record(ctx context.Context, c Citation) error
	ForMatter(ctx context.Context, matterID string) ([]Citation, error)
}

// MemoryCitations is an in-memory CitationRecorder.
type MemoryCitations struct {
	mu        sync.RWMutex
	citations map[string][]Citation
}

// NewMemoryCitations creates an empty MemoryCitations.
func NewMemoryCitations() *MemoryCitations {
	return &MemoryCitations{citations: make(map[string][]Citation)}
}

// Record appends a citation for its matter.
func (r *MemoryCitations) Record(ctx context.Context, c Citation) error {
	if c.RecordedAt.IsZero() {
		c.RecordedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.citations[c.MatterID] = append(r.citations[c.MatterID], c)
	r.mu.Unlock()
	return nil
}

// ForMatter returns all citations recorded for a matter.
func (r *MemoryCitations) ForMatter(ctx context.Context, matterID string) ([]Citation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Citation, len(r.citations[matterID]))
	copy(out, r.citations[matterID])
	return out, nil
}

var _ CitationRecorder = (*MemoryCitations)(nil)
