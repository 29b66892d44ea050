package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

const issueAnalysisBody = `{"issues": [
	{"title": "Venue", "severity": "low", "clauseRef": "12.2", "explanation": "e", "confidence": 0.7},
	{"title": "Uncapped liability", "severity": "critical", "clauseRef": "8.1", "explanation": "e", "confidence": 1.3},
	{"title": "Auto-renewal", "severity": "medium", "clauseRef": "3.4", "explanation": "e", "confidence": -0.2},
	{"title": "Broad indemnity", "severity": "high", "clauseRef": "9.1", "explanation": "e", "confidence": 0.85}
]}`

func TestIssueAnalysis_SeverityOrderAndStreaming(t *testing.T) {
	client := &mockLLM{structured: structuredJSON(issueAnalysisBody)}
	deps, m := newTestDeps(t, client, nil)
	rec := &recordingStore{Store: deps.Store}
	deps.Store = rec

	result, err := NewIssueAnalysis(deps).Run(context.Background(), m)
	require.NoError(t, err)

	issues := result.Update.Issues
	require.Len(t, issues, 4)
	assert.Equal(t, matter.SeverityCritical, issues[0].Severity)
	assert.Equal(t, matter.SeverityHigh, issues[1].Severity)
	assert.Equal(t, matter.SeverityMedium, issues[2].Severity)
	assert.Equal(t, matter.SeverityLow, issues[3].Severity)
	for _, iss := range issues {
		assert.NotEmpty(t, iss.ID)
		assert.GreaterOrEqual(t, iss.Confidence, 0.0)
		assert.LessOrEqual(t, iss.Confidence, 1.0)
	}

	// Issues appear one at a time, in their final order.
	assert.Equal(t, []int{1, 2, 3, 4}, rec.issueLens)

	summary := result.Data.(IssueAnalysisSummary)
	assert.Equal(t, 4, summary.IssueCount)
	assert.Equal(t, 1, summary.BySeverity["critical"])
	assert.Equal(t, 1, summary.BySeverity["high"])
}

func TestIssueAnalysis_PromptCarriesParsingData(t *testing.T) {
	var prompt string
	client := &mockLLM{structured: func(system, user string, out any) error {
		prompt = user
		return structuredJSON(`{"issues": []}`)(system, user, out)
	}}
	deps, m := newTestDeps(t, client, nil)

	m.ParsedSections = []matter.ParsedSection{{Heading: "TERM", Text: "One year."}}
	m.Stage(matter.StageParsing).Data = ParsingOutput{
		DefinedTerms:      []DefinedTerm{{Term: "Fees", Definition: "amounts payable"}},
		MissingProvisions: []string{"limitation of liability"},
		Inconsistencies:   []string{"term length differs between 1.1 and 3.2"},
	}

	_, err := NewIssueAnalysis(deps).Run(context.Background(), m)
	require.NoError(t, err)

	assert.Contains(t, prompt, `Section "TERM"`)
	assert.Contains(t, prompt, "Fees: amounts payable")
	assert.Contains(t, prompt, "limitation of liability")
	assert.Contains(t, prompt, "term length differs")
}

func TestIssueAnalysis_RetrievalFailureDegrades(t *testing.T) {
	var prompt string
	client := &mockLLM{structured: func(system, user string, out any) error {
		prompt = user
		return structuredJSON(issueAnalysisBody)(system, user, out)
	}}
	retriever := &mockRetriever{retrieve: func(query string, opts retrieval.Options) ([]retrieval.Chunk, error) {
		assert.True(t, opts.Expand)
		return nil, errors.New("vector store down")
	}}
	deps, m := newTestDeps(t, client, retriever)

	result, err := NewIssueAnalysis(deps).Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, result.Update.Issues, 4)
	assert.False(t, strings.Contains(prompt, "Reference context"))
}

func TestIssueAnalysis_ModelFailureIsFatal(t *testing.T) {
	client := &mockLLM{structured: func(system, user string, out any) error {
		return errors.New("transport failed")
	}}
	deps, m := newTestDeps(t, client, nil)

	_, err := NewIssueAnalysis(deps).Run(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzing issues")
}
