package stages

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const draftingPlainPrompt = `You draft contract redlines for business readers. Rewrite the ` +
	`problematic clause in plain English, explaining the change in simple terms. Return only the ` +
	`redline text.`

const draftingLegalPrompt = `You draft contract redlines for counsel. Produce precise ` +
	`legal-technical replacement language for the problematic clause, preserving defined terms and ` +
	`cross-references. Return only the redline text.`

// DraftingSummary is the stage payload.
type DraftingSummary struct {
	Drafted int    `json:"drafted"`
	Skipped int    `json:"skipped"`
	Style   string `json:"style"`
}

// Drafting generates a redline for every synthesized issue, in a style
// selected by the matter's audience. Per-issue failures are logged and
// skipped.
type Drafting struct {
	deps Deps
}

// NewDrafting creates the drafting runner.
func NewDrafting(deps Deps) *Drafting { return &Drafting{deps: deps} }

func (s *Drafting) Stage() matter.StageID { return matter.StageDrafting }

func (s *Drafting) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("drafting").With(zap.String("matter_id", m.ID))

	system := draftingLegalPrompt
	style := "legal_technical"
	if m.Audience == matter.AudiencePlain {
		system = draftingPlainPrompt
		style = "plain_english"
	}

	issues := make([]matter.Issue, len(m.Issues))
	copy(issues, m.Issues)

	summary := DraftingSummary{Style: style}
	for i := range issues {
		if issues[i].Synthesis == nil {
			continue
		}

		user := fmt.Sprintf("Clause (%s): %s\n\nIssue: %s\nRecommendation: %s",
			issues[i].ClauseRef, issues[i].Explanation,
			issues[i].Title, issues[i].Synthesis.Recommendation)

		redline, err := s.deps.LLM.Generate(ctx, system, user, llm.Options{Temperature: 0.4})
		if err != nil {
			logger.Warn("redline drafting failed, skipping",
				zap.String("issue_id", issues[i].ID), zap.Error(err))
			summary.Skipped++
			continue
		}
		issues[i].Redline = strings.TrimSpace(redline)
		summary.Drafted++
	}

	logger.Info("drafting complete",
		zap.Int("drafted", summary.Drafted),
		zap.Int("skipped", summary.Skipped),
		zap.String("style", style),
	)

	return &pipeline.StageResult{
		Update: matter.Update{Issues: issues},
		Data:   summary,
	}, nil
}

var _ pipeline.Runner = (*Drafting)(nil)
