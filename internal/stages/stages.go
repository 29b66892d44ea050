// Package stages implements the nine pipeline stage runners. Each
// runner encapsulates one phase's model calls, uses the retriever where
// relevant, and may stream incremental snapshots to the store so
// pollers see progress inside long stages.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

// ContextRetriever is the retrieval capability stages consume. Failures
// are always degraded to "no context available", never fatal.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Chunk, error)
}

// DocumentIndexer stores a matter's source document in the knowledge
// base so retrieval can target it. Indexing failures degrade to
// reference-only retrieval.
type DocumentIndexer interface {
	IngestDocument(ctx context.Context, title, docType, text string) (int, error)
}

// Deps bundles the collaborators shared by every stage runner.
type Deps struct {
	Store     matter.Store
	LLM       llm.Client
	Retriever ContextRetriever
	Indexer   DocumentIndexer
	Citations matter.CitationRecorder
	Logger    *zap.Logger

	// StreamDelay paces streamed per-item store writes.
	StreamDelay time.Duration
}

func (d Deps) logger(name string) *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named(name)
}

// All returns the nine runners in pipeline order.
func All(deps Deps) []pipeline.Runner {
	return []pipeline.Runner{
		NewIntake(deps),
		NewParsing(deps),
		NewIssueAnalysis(deps),
		NewResearch(deps),
		NewSynthesis(deps),
		NewDrafting(deps),
		NewAdversarial(deps),
		NewGuardrails(deps),
		NewDeliverables(deps),
	}
}

// stageData re-decodes a prior stage's Data payload into its typed
// form. Payloads round-trip through the store as JSON, so an in-memory
// type assertion is not enough.
func stageData[T any](m *matter.Matter, id matter.StageID) (*T, error) {
	info := m.Stage(id)
	if info == nil || info.Data == nil {
		return nil, fmt.Errorf("stage %s has no data", id)
	}
	raw, err := json.Marshal(info.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding stage %s data: %w", id, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding stage %s data: %w", id, err)
	}
	return &out, nil
}

// contextBlock formats retrieved chunks for inclusion in a prompt.
// Returns "" when no context is available.
func contextBlock(chunks []retrieval.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Reference context:\n")
	for _, c := range chunks {
		if c.Title != "" {
			fmt.Fprintf(&sb, "--- %s", c.Title)
			if c.Section != "" {
				fmt.Fprintf(&sb, " (%s)", c.Section)
			}
			sb.WriteString(" ---\n")
		}
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// pause sleeps for d, honoring cancellation. Used for stream pacing.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// matterSummary renders the issue set compactly for holistic prompts.
func matterSummary(m *matter.Matter) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document type: %s\nJurisdiction: %s\nRisk tolerance: %s\n\n", m.DocType, m.Jurisdiction, m.RiskTolerance)
	for i, iss := range m.Issues {
		fmt.Fprintf(&sb, "Issue %d [%s] %s (%s)\n%s\n", i+1, iss.Severity, iss.Title, iss.ClauseRef, iss.Explanation)
		if iss.Synthesis != nil {
			fmt.Fprintf(&sb, "Recommendation (confidence %.2f): %s\n", iss.Synthesis.Confidence, iss.Synthesis.Recommendation)
		}
		if iss.Redline != "" {
			fmt.Fprintf(&sb, "Redline: %s\n", iss.Redline)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
