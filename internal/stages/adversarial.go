package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const adversarialSystemPrompt = `You are opposing counsel attacking this review. Critique the full ` +
	`set of issues, recommendations and redlines holistically: what was missed, what is ` +
	`overstated, where the redlines create new problems. Decide whether your critique materially ` +
	`weakens the analysis. Respond with JSON: {"critiques": ["..."], "draftRevised": true|false}`

// AdversarialOutput is the stage payload. DraftRevised signals that the
// prior analysis must be considered weakened; guardrails later treats
// it as a hard escalation trigger.
type AdversarialOutput struct {
	Critiques    []string `json:"critiques"`
	DraftRevised bool     `json:"draftRevised"`
}

// Adversarial runs a holistic critique over the complete analysis.
type Adversarial struct {
	deps Deps
}

// NewAdversarial creates the adversarial review runner.
func NewAdversarial(deps Deps) *Adversarial { return &Adversarial{deps: deps} }

func (s *Adversarial) Stage() matter.StageID { return matter.StageAdversarial }

func (s *Adversarial) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("adversarial").With(zap.String("matter_id", m.ID))

	var out AdversarialOutput
	if err := s.deps.LLM.GenerateStructured(ctx, adversarialSystemPrompt, matterSummary(m), llm.Options{Temperature: 0.6}, &out); err != nil {
		return nil, fmt.Errorf("adversarial review: %w", err)
	}

	logger.Info("adversarial review complete",
		zap.Int("critiques", len(out.Critiques)),
		zap.Bool("draft_revised", out.DraftRevised),
	)

	revised := out.DraftRevised
	return &pipeline.StageResult{
		Update: matter.Update{
			AdversarialCritiques: out.Critiques,
			DraftRevised:         &revised,
		},
		Data: out,
	}, nil
}

var _ pipeline.Runner = (*Adversarial)(nil)
