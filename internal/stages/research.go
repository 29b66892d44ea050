package stages

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

// researchBatchSize is how many issues are researched concurrently.
const researchBatchSize = 3

const researchSystemPrompt = `You are a legal researcher. For the given issue, using any reference ` +
	`context provided, write three short analyses: market norms for this clause, the practical risk ` +
	`impact, and the negotiation leverage available. Respond with JSON: {"marketNorms": "...", ` +
	`"riskImpact": "...", "negotiationLeverage": "..."}`

// itemResult is the per-issue outcome of a partial-success loop: either
// a value or an error, never both silently dropped.
type itemResult[T any] struct {
	IssueID string
	Value   T
	Err     error
}

// ResearchSummary is the stage payload.
type ResearchSummary struct {
	Researched int      `json:"researched"`
	Failed     []string `json:"failed,omitempty"`
}

// Research enriches every issue with market-norms, risk-impact and
// negotiation-leverage analyses, in concurrent batches of three. One
// issue failing never aborts its batch; the issue stays unresearched.
type Research struct {
	deps Deps
}

// NewResearch creates the research runner.
func NewResearch(deps Deps) *Research { return &Research{deps: deps} }

func (s *Research) Stage() matter.StageID { return matter.StageResearch }

func (s *Research) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("research").With(zap.String("matter_id", m.ID))

	issues := make([]matter.Issue, len(m.Issues))
	copy(issues, m.Issues)

	summary := ResearchSummary{}
	for start := 0; start < len(issues); start += researchBatchSize {
		end := start + researchBatchSize
		if end > len(issues) {
			end = len(issues)
		}
		batch := issues[start:end]

		results := s.researchBatch(ctx, m, batch, logger)
		for _, res := range results {
			if res.Err != nil {
				logger.Warn("issue research failed, leaving unresearched",
					zap.String("issue_id", res.IssueID), zap.Error(res.Err))
				summary.Failed = append(summary.Failed, res.IssueID)
				continue
			}
			for i := range issues {
				if issues[i].ID == res.IssueID {
					r := res.Value
					issues[i].Research = &r
					summary.Researched++
				}
			}
		}

		// Stream the batch so pollers see research landing per batch.
		if _, err := s.deps.Store.Update(ctx, m.ID, matter.Update{Issues: issues}); err != nil {
			logger.Warn("streaming research snapshot", zap.Error(err))
		}
		pause(ctx, s.deps.StreamDelay)
	}

	logger.Info("research complete",
		zap.Int("researched", summary.Researched),
		zap.Int("failed", len(summary.Failed)),
	)

	return &pipeline.StageResult{
		Update: matter.Update{Issues: issues},
		Data:   summary,
	}, nil
}

// researchBatch researches a batch of issues concurrently. Errors are
// captured per item; the group itself never fails.
func (s *Research) researchBatch(ctx context.Context, m *matter.Matter, batch []matter.Issue, logger *zap.Logger) []itemResult[matter.Research] {
	results := make([]itemResult[matter.Research], len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, issue := range batch {
		i, issue := i, issue
		g.Go(func() error {
			research, err := s.researchIssue(gctx, m, issue, logger)
			results[i] = itemResult[matter.Research]{IssueID: issue.ID, Err: err}
			if err == nil {
				results[i].Value = *research
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// researchIssue retrieves the three context flavors concurrently and
// asks the model to synthesize the research fields.
func (s *Research) researchIssue(ctx context.Context, m *matter.Matter, issue matter.Issue, logger *zap.Logger) (*matter.Research, error) {
	queries := map[string]string{
		"market norms":         fmt.Sprintf("market standard terms for %s in %s agreements", issue.Title, m.DocType),
		"risk impact":          fmt.Sprintf("risks of %s clauses: %s", issue.Category, issue.Title),
		"negotiation leverage": fmt.Sprintf("negotiating %s provisions in %s", issue.Title, m.DocType),
	}

	var mu sync.Mutex
	contexts := make(map[string][]retrieval.Chunk, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for flavor, query := range queries {
		flavor, query := flavor, query
		g.Go(func() error {
			chunks, err := s.deps.Retriever.Retrieve(gctx, query, retrieval.Options{
				DocType:  m.DocType,
				Compress: true,
			})
			if err != nil {
				// Degrade to model-only reasoning for this flavor.
				logger.Debug("retrieval failed for research flavor",
					zap.String("flavor", flavor), zap.Error(err))
				return nil
			}
			mu.Lock()
			contexts[flavor] = chunks
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue: %s\nSeverity: %s\nClause: %s\nExplanation: %s\n\n",
		issue.Title, issue.Severity, issue.ClauseRef, issue.Explanation)
	for flavor, chunks := range contexts {
		if block := contextBlock(chunks); block != "" {
			fmt.Fprintf(&sb, "Context for %s:\n%s", flavor, block)
		}
	}

	var research matter.Research
	if err := s.deps.LLM.GenerateStructured(ctx, researchSystemPrompt, sb.String(), llm.Options{}, &research); err != nil {
		return nil, err
	}

	s.recordCitations(ctx, m.ID, issue.ID, contexts, logger)
	return &research, nil
}

// recordCitations records which chunks informed an issue. Failures are
// swallowed: citations are a non-critical audit trail.
func (s *Research) recordCitations(ctx context.Context, matterID, issueID string, contexts map[string][]retrieval.Chunk, logger *zap.Logger) {
	for _, chunks := range contexts {
		for _, c := range chunks {
			err := s.deps.Citations.Record(ctx, matter.Citation{
				MatterID:  matterID,
				IssueID:   issueID,
				ChunkID:   c.ID,
				Relevance: float64(c.Relevance),
				Text:      c.Content,
			})
			if err != nil {
				logger.Debug("citation record failed", zap.Error(err))
			}
		}
	}
}

var _ pipeline.Runner = (*Research)(nil)
