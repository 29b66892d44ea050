package stages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
)

func TestDeliverables_ProducesFourArtifacts(t *testing.T) {
	client := &mockLLM{generate: func(system, user string) (string, error) {
		if strings.Contains(system, "annotate") {
			return "# Annotated\n...", nil
		}
		return "# Memo\n...", nil
	}}
	deps, m := newTestDeps(t, client, nil)
	m.Issues = []matter.Issue{
		{ID: "i1", Title: "Uncapped liability", Severity: matter.SeverityCritical},
		{ID: "i2", Title: "Venue", Severity: matter.SeverityLow},
	}
	m.OverallConfidence = 0.87
	m.Guardrails = &matter.GuardrailResult{
		EscalationRequired: true,
		EscalationReason:   "critical issue found under low risk tolerance",
	}

	result, err := NewDeliverables(deps).Run(context.Background(), m)
	require.NoError(t, err)

	deliverables := result.Update.Deliverables
	require.Len(t, deliverables, 4)
	assert.Equal(t, []string{"Review Memo", "Annotated Document", "Risk Summary", "Audit Log"},
		result.Data.(DeliverablesSummary).Names)

	byName := map[string]matter.Deliverable{}
	for _, d := range deliverables {
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.Content)
		byName[d.Name] = d
	}
	assert.Equal(t, "markdown", byName["Review Memo"].Format)
	assert.Equal(t, "json", byName["Risk Summary"].Format)

	// The risk summary is deterministic matter state, not model output.
	var summary struct {
		MatterID   string         `json:"matterId"`
		IssueCount int            `json:"issueCount"`
		BySeverity map[string]int `json:"bySeverity"`
		Escalation bool           `json:"escalationRequired"`
	}
	require.NoError(t, json.Unmarshal([]byte(byName["Risk Summary"].Content), &summary))
	assert.Equal(t, m.ID, summary.MatterID)
	assert.Equal(t, 2, summary.IssueCount)
	assert.Equal(t, 1, summary.BySeverity["critical"])
	assert.True(t, summary.Escalation)

	var audit []matter.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(byName["Audit Log"].Content), &audit))
	require.NotEmpty(t, audit)
	assert.Equal(t, "created", audit[0].Event)
}

func TestDeliverables_GenerationFailureIsFatal(t *testing.T) {
	client := &mockLLM{generate: func(system, user string) (string, error) {
		if strings.Contains(system, "annotate") {
			return "", errors.New("model overloaded")
		}
		return "# Memo", nil
	}}
	deps, m := newTestDeps(t, client, nil)

	_, err := NewDeliverables(deps).Run(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "annotated document")
}

func TestAdversarial_Run(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(`{
		"critiques": ["missed data-protection exposure", "redline 8.1 conflicts with 9.2"],
		"draftRevised": true
	}`)}
	deps, m := newTestDeps(t, client, nil)

	result, err := NewAdversarial(deps).Run(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, result.Update.AdversarialCritiques, 2)
	require.NotNil(t, result.Update.DraftRevised)
	assert.True(t, *result.Update.DraftRevised)
}

func TestIntake_DescriptiveOnly(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(`{
		"documentClass": "SaaS subscription agreement",
		"parties": ["Acme Corp", "Customer Inc"],
		"conflictCheck": {"status": "clear", "notes": ""},
		"scope": "full review",
		"summary": "Standard SaaS agreement."
	}`)}
	deps, m := newTestDeps(t, client, nil)

	result, err := NewIntake(deps).Run(context.Background(), m)
	require.NoError(t, err)

	// Intake describes the matter; it never touches issue state.
	assert.Equal(t, matter.Update{}, result.Update)
	out := result.Data.(IntakeOutput)
	assert.Equal(t, "SaaS subscription agreement", out.DocumentClass)
	assert.Len(t, out.Parties, 2)
	assert.Equal(t, "clear", out.ConflictCheck.Status)
}

func TestIntake_IndexesSourceDocument(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(`{
		"documentClass": "SaaS subscription agreement",
		"parties": ["Acme Corp"],
		"conflictCheck": {"status": "clear", "notes": ""},
		"scope": "full review",
		"summary": "ok"
	}`)}
	deps, m := newTestDeps(t, client, nil)
	indexer := &fakeIndexer{}
	deps.Indexer = indexer

	_, err := NewIntake(deps).Run(context.Background(), m)
	require.NoError(t, err)

	// The matter's own document lands in the knowledge base, keyed by
	// matter ID so later retrieval can target it.
	require.Equal(t, []string{m.ID}, indexer.titles)
	assert.Equal(t, []string{m.DocType}, indexer.docTypes)
	assert.Equal(t, []string{m.DocumentText}, indexer.texts)
}

func TestIntake_IndexingFailureIsNotFatal(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(`{
		"documentClass": "NDA",
		"parties": ["Acme Corp"],
		"conflictCheck": {"status": "clear", "notes": ""},
		"scope": "full review",
		"summary": "ok"
	}`)}
	deps, m := newTestDeps(t, client, nil)
	deps.Indexer = &fakeIndexer{err: errors.New("embedding service down")}

	result, err := NewIntake(deps).Run(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "NDA", result.Data.(IntakeOutput).DocumentClass)
}

func TestParsing_PromotesSections(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(`{
		"sections": [
			{"heading": "TERM", "text": "One year."},
			{"heading": "FEES", "text": "Monthly in arrears."}
		],
		"definedTerms": [{"term": "Fees", "definition": "amounts payable"}],
		"missingProvisions": ["limitation of liability"],
		"inconsistencies": []
	}`)}
	deps, m := newTestDeps(t, client, nil)

	result, err := NewParsing(deps).Run(context.Background(), m)
	require.NoError(t, err)

	sections := result.Update.ParsedSections
	require.Len(t, sections, 2)
	assert.Equal(t, "sec-1", sections[0].ID)
	assert.Equal(t, "TERM", sections[0].Heading)
	assert.Equal(t, 1, sections[1].Index)

	out := result.Data.(ParsingOutput)
	assert.Len(t, out.DefinedTerms, 1)
	assert.Equal(t, []string{"limitation of liability"}, out.MissingProvisions)
}
