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

const guardrailsSystemPrompt = `You are the quality-control reviewer for a legal analysis. Check ` +
	`whether the analysis respects the stated jurisdiction and whether every material claim is ` +
	`supported by a citation or clause reference. Propose whether the matter should be escalated to ` +
	`a human attorney and why. Respond with JSON: {"jurisdictionCheck": {"pass": true, "notes": ` +
	`"..."}, "citationCompleteness": {"pass": true, "notes": "..."}, "escalationRequired": false, ` +
	`"escalationReason": "..."}`

// GuardrailProposal is the model-proposed verdict. Everything in it
// except the two check outcomes is subject to deterministic override.
type GuardrailProposal struct {
	JurisdictionCheck    matter.CheckResult `json:"jurisdictionCheck"`
	CitationCompleteness matter.CheckResult `json:"citationCompleteness"`
	EscalationRequired   bool               `json:"escalationRequired"`
	EscalationReason     string             `json:"escalationReason"`
}

// thresholdFor maps risk tolerance to the required overall confidence.
func thresholdFor(rt matter.RiskTolerance) float64 {
	switch rt {
	case matter.RiskLow:
		return 0.90
	case matter.RiskHigh:
		return 0.70
	default:
		return 0.80
	}
}

// Evaluate layers the deterministic escalation rules over the model's
// proposal. The confidence threshold is always computed here; the
// model's arithmetic is never trusted. Triggered rules append to the
// escalation reason, never replace it.
func Evaluate(proposal GuardrailProposal, m *matter.Matter) matter.GuardrailResult {
	threshold := thresholdFor(m.RiskTolerance)
	result := matter.GuardrailResult{
		JurisdictionCheck:    proposal.JurisdictionCheck,
		CitationCompleteness: proposal.CitationCompleteness,
		ConfidenceThreshold: matter.ConfidenceThreshold{
			Score:    m.OverallConfidence,
			Required: threshold,
			Pass:     m.OverallConfidence >= threshold,
		},
		EscalationRequired: proposal.EscalationRequired,
		EscalationReason:   strings.TrimSpace(proposal.EscalationReason),
	}

	addReason := func(reason string) {
		result.EscalationRequired = true
		if result.EscalationReason == "" {
			result.EscalationReason = reason
			return
		}
		result.EscalationReason += "; " + reason
	}

	if m.RiskTolerance == matter.RiskLow && hasCritical(m.Issues) {
		addReason("critical issue found under low risk tolerance")
	}
	if m.DraftRevised {
		addReason("adversarial review weakened the draft analysis")
	}
	if !result.ConfidenceThreshold.Pass {
		addReason(fmt.Sprintf("overall confidence %.2f below required %.2f",
			result.ConfidenceThreshold.Score, result.ConfidenceThreshold.Required))
	}
	return result
}

func hasCritical(issues []matter.Issue) bool {
	for _, iss := range issues {
		if iss.Severity == matter.SeverityCritical {
			return true
		}
	}
	return false
}

// Guardrails computes the escalation decision: one model-proposed
// verdict with a deterministic three-rule overlay. The result is
// written once and never revisited; it alone decides whether the
// engine marks this stage complete or warning.
type Guardrails struct {
	deps Deps
}

// NewGuardrails creates the guardrails runner.
func NewGuardrails(deps Deps) *Guardrails { return &Guardrails{deps: deps} }

func (s *Guardrails) Stage() matter.StageID { return matter.StageGuardrails }

func (s *Guardrails) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("guardrails").With(zap.String("matter_id", m.ID))

	user := fmt.Sprintf("%s\nOverall confidence: %.2f\nAdversarial critique weakened draft: %t\n",
		matterSummary(m), m.OverallConfidence, m.DraftRevised)

	var proposal GuardrailProposal
	if err := s.deps.LLM.GenerateStructured(ctx, guardrailsSystemPrompt, user, llm.Options{}, &proposal); err != nil {
		return nil, fmt.Errorf("guardrail checks: %w", err)
	}

	result := Evaluate(proposal, m)
	logger.Info("guardrails evaluated",
		zap.Bool("escalation_required", result.EscalationRequired),
		zap.Bool("confidence_pass", result.ConfidenceThreshold.Pass),
	)

	return &pipeline.StageResult{
		Update: matter.Update{Guardrails: &result},
		Data:   result,
	}, nil
}

var _ pipeline.Runner = (*Guardrails)(nil)
