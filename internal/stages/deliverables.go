package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const memoSystemPrompt = `You write closing memos for legal reviews. Write a client-ready memo ` +
	`summarizing the issues found, the recommendations, and any escalation, ordered by severity. ` +
	`Return markdown.`

const annotatedSystemPrompt = `You annotate legal documents. Reproduce the document with inline ` +
	`annotations marking each identified issue at its clause, with the recommended redline beside ` +
	`it. Return markdown.`

// DeliverablesSummary is the stage payload.
type DeliverablesSummary struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

// Deliverables produces the final artifact batch: memo and annotated
// document via the model (generated concurrently), plus a risk summary
// and the audit log assembled deterministically from matter state.
type Deliverables struct {
	deps Deps
}

// NewDeliverables creates the deliverables runner.
func NewDeliverables(deps Deps) *Deliverables { return &Deliverables{deps: deps} }

func (s *Deliverables) Stage() matter.StageID { return matter.StageDeliverables }

func (s *Deliverables) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("deliverables").With(zap.String("matter_id", m.ID))

	var memo, annotated string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := s.deps.LLM.Generate(gctx, memoSystemPrompt, matterSummary(m), llm.Options{MaxTokens: 8192})
		if err != nil {
			return fmt.Errorf("generating memo: %w", err)
		}
		memo = text
		return nil
	})
	g.Go(func() error {
		user := matterSummary(m) + "\n\nDocument:\n" + m.DocumentText
		text, err := s.deps.LLM.Generate(gctx, annotatedSystemPrompt, user, llm.Options{MaxTokens: 8192})
		if err != nil {
			return fmt.Errorf("generating annotated document: %w", err)
		}
		annotated = text
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	riskSummary, err := buildRiskSummary(m)
	if err != nil {
		return nil, fmt.Errorf("building risk summary: %w", err)
	}

	deliverables := []matter.Deliverable{
		{
			ID:          uuid.NewString(),
			Name:        "Review Memo",
			Format:      "markdown",
			Content:     strings.TrimSpace(memo),
			Description: "Client-ready summary of findings and recommendations.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "Annotated Document",
			Format:      "markdown",
			Content:     strings.TrimSpace(annotated),
			Description: "Source document with inline issue annotations and redlines.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "Risk Summary",
			Format:      "json",
			Content:     riskSummary,
			Description: "Machine-readable issue and escalation summary.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "Audit Log",
			Format:      "json",
			Content:     buildAuditExport(m),
			Description: "Complete pipeline audit trail.",
		},
	}

	names := make([]string, len(deliverables))
	for i, d := range deliverables {
		names[i] = d.Name
	}
	logger.Info("deliverables generated", zap.Strings("names", names))

	return &pipeline.StageResult{
		Update: matter.Update{Deliverables: deliverables},
		Data:   DeliverablesSummary{Count: len(deliverables), Names: names},
	}, nil
}

// riskSummary is the deterministic machine-readable export shape.
type riskSummary struct {
	MatterID          string         `json:"matterId"`
	DocType           string         `json:"docType"`
	Jurisdiction      string         `json:"jurisdiction"`
	IssueCount        int            `json:"issueCount"`
	BySeverity        map[string]int `json:"bySeverity"`
	OverallConfidence float64        `json:"overallConfidence"`
	Escalation        bool           `json:"escalationRequired"`
	EscalationReason  string         `json:"escalationReason,omitempty"`
	Issues            []matter.Issue `json:"issues"`
}

func buildRiskSummary(m *matter.Matter) (string, error) {
	summary := riskSummary{
		MatterID:          m.ID,
		DocType:           m.DocType,
		Jurisdiction:      m.Jurisdiction,
		IssueCount:        len(m.Issues),
		BySeverity:        map[string]int{},
		OverallConfidence: m.OverallConfidence,
		Issues:            m.Issues,
	}
	for _, iss := range m.Issues {
		summary.BySeverity[string(iss.Severity)]++
	}
	if m.Guardrails != nil {
		summary.Escalation = m.Guardrails.EscalationRequired
		summary.EscalationReason = m.Guardrails.EscalationReason
	}
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func buildAuditExport(m *matter.Matter) string {
	raw, err := json.MarshalIndent(m.AuditLog, "", "  ")
	if err != nil {
		// The audit log is plain data; marshal cannot realistically
		// fail, but the deliverable must still exist.
		return "[]"
	}
	return string(raw)
}

var _ pipeline.Runner = (*Deliverables)(nil)
