package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const synthesisSystemPrompt = `You are a senior partner reviewing research. For the given issue and ` +
	`its research, produce a concrete recommendation, your confidence in it between 0 and 1, and ` +
	`the reasoning. Respond with JSON: {"recommendation": "...", "confidence": 0.0, "reasoning": "..."}`

// SynthesisSummary is the stage payload.
type SynthesisSummary struct {
	Synthesized       int     `json:"synthesized"`
	Skipped           int     `json:"skipped"`
	OverallConfidence float64 `json:"overallConfidence"`
}

// Synthesis turns research into recommendations, maintaining a running
// overall confidence (mean of synthesized confidences so far) that is
// recomputed and persisted after each issue. A failure on one issue is
// logged and skipped, never fatal to the stage.
type Synthesis struct {
	deps Deps
}

// NewSynthesis creates the synthesis runner.
func NewSynthesis(deps Deps) *Synthesis { return &Synthesis{deps: deps} }

func (s *Synthesis) Stage() matter.StageID { return matter.StageSynthesis }

func (s *Synthesis) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("synthesis").With(zap.String("matter_id", m.ID))

	issues := make([]matter.Issue, len(m.Issues))
	copy(issues, m.Issues)

	summary := SynthesisSummary{}
	var confidenceSum float64
	var synthesized int
	overall := m.OverallConfidence

	for i := range issues {
		if issues[i].Research == nil {
			continue
		}

		syn, err := s.synthesizeIssue(ctx, issues[i])
		if err != nil {
			logger.Warn("issue synthesis failed, skipping",
				zap.String("issue_id", issues[i].ID), zap.Error(err))
			summary.Skipped++
			continue
		}
		issues[i].Synthesis = syn
		synthesized++
		confidenceSum += syn.Confidence
		overall = confidenceSum / float64(synthesized)
		summary.Synthesized++

		// Persist after every issue: running confidence and the issue
		// just synthesized become visible to pollers immediately.
		snapshot := overall
		if _, err := s.deps.Store.Update(ctx, m.ID, matter.Update{
			Issues:            issues,
			OverallConfidence: &snapshot,
		}); err != nil {
			logger.Warn("streaming synthesis snapshot", zap.Error(err))
		}
		pause(ctx, s.deps.StreamDelay)
	}

	summary.OverallConfidence = overall
	logger.Info("synthesis complete",
		zap.Int("synthesized", summary.Synthesized),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("overall_confidence", overall),
	)

	return &pipeline.StageResult{
		Update: matter.Update{Issues: issues, OverallConfidence: &overall},
		Data:   summary,
	}, nil
}

func (s *Synthesis) synthesizeIssue(ctx context.Context, issue matter.Issue) (*matter.Synthesis, error) {
	user := fmt.Sprintf("Issue: %s\nSeverity: %s\nClause: %s\nExplanation: %s\n\n"+
		"Market norms: %s\nRisk impact: %s\nNegotiation leverage: %s",
		issue.Title, issue.Severity, issue.ClauseRef, issue.Explanation,
		issue.Research.MarketNorms, issue.Research.RiskImpact, issue.Research.NegotiationLeverage)

	var syn matter.Synthesis
	if err := s.deps.LLM.GenerateStructured(ctx, synthesisSystemPrompt, user, llm.Options{}, &syn); err != nil {
		return nil, err
	}
	if syn.Confidence < 0 {
		syn.Confidence = 0
	}
	if syn.Confidence > 1 {
		syn.Confidence = 1
	}
	return &syn, nil
}

var _ pipeline.Runner = (*Synthesis)(nil)
