package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
)

func synthesizedIssue(id, title string) matter.Issue {
	iss := researchedIssue(id, title)
	iss.Synthesis = &matter.Synthesis{Recommendation: "cap at 12 months fees", Confidence: 0.9}
	return iss
}

func TestDrafting_LegalAudienceStyle(t *testing.T) {
	var systems []string
	client := &mockLLM{generate: func(system, user string) (string, error) {
		systems = append(systems, system)
		return "  Revised Section 8.1: liability is capped...  ", nil
	}}
	deps, m := newTestDeps(t, client, nil)
	m.Audience = matter.AudienceLegal
	seedIssues(t, deps, m, []matter.Issue{synthesizedIssue("i1", "Uncapped liability")})

	result, err := NewDrafting(deps).Run(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, systems, 1)
	assert.Contains(t, systems[0], "counsel")
	assert.Equal(t, "legal_technical", result.Data.(DraftingSummary).Style)
	// Redlines are trimmed before landing on the issue.
	assert.Equal(t, "Revised Section 8.1: liability is capped...", result.Update.Issues[0].Redline)
}

func TestDrafting_PlainAudienceStyle(t *testing.T) {
	var systems []string
	client := &mockLLM{generate: func(system, user string) (string, error) {
		systems = append(systems, system)
		return "If things go wrong, you only owe up to a year of fees.", nil
	}}
	deps, m := newTestDeps(t, client, nil)
	m.Audience = matter.AudiencePlain
	seedIssues(t, deps, m, []matter.Issue{synthesizedIssue("i1", "Uncapped liability")})

	result, err := NewDrafting(deps).Run(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, systems, 1)
	assert.Contains(t, systems[0], "plain English")
	assert.Equal(t, "plain_english", result.Data.(DraftingSummary).Style)
}

func TestDrafting_SkipsUnsynthesizedAndFailed(t *testing.T) {
	client := &mockLLM{generate: func(system, user string) (string, error) {
		if strings.Contains(user, "Issue: doomed") {
			return "", errors.New("model error")
		}
		return "redline text", nil
	}}
	deps, m := newTestDeps(t, client, nil)
	seedIssues(t, deps, m, []matter.Issue{
		synthesizedIssue("i1", "drafted"),
		synthesizedIssue("i2", "doomed"),
		{ID: "i3", Title: "no synthesis"},
	})

	result, err := NewDrafting(deps).Run(context.Background(), m)
	require.NoError(t, err)

	summary := result.Data.(DraftingSummary)
	assert.Equal(t, 1, summary.Drafted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "redline text", result.Update.Issues[0].Redline)
	assert.Empty(t, result.Update.Issues[1].Redline)
	assert.Empty(t, result.Update.Issues[2].Redline)
}
