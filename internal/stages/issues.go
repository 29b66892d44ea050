package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

const issuesSystemPrompt = `You are a senior reviewing attorney. Given the parsed structure of a ` +
	`document, its defined terms, missing provisions, inconsistencies, and optional reference ` +
	`context, identify every legal issue. For each issue provide title, severity (critical, high, ` +
	`medium, low, info), the clause reference, an explanation, a category, interaction effects with ` +
	`other clauses, the statutory basis if any, a note on deviation from market standard, and a ` +
	`confidence between 0 and 1. Respond with JSON: {"issues": [{"title": "...", "severity": "...", ` +
	`"clauseRef": "...", "explanation": "...", "category": "...", "interactionEffects": "...", ` +
	`"statutoryBasis": "...", "deviationNote": "...", "confidence": 0.0}]}`

// issueAnalysisOutput is the structured model response.
type issueAnalysisOutput struct {
	Issues []struct {
		Title              string  `json:"title"`
		Severity           string  `json:"severity"`
		ClauseRef          string  `json:"clauseRef"`
		Explanation        string  `json:"explanation"`
		Category           string  `json:"category"`
		InteractionEffects string  `json:"interactionEffects"`
		StatutoryBasis     string  `json:"statutoryBasis"`
		DeviationNote      string  `json:"deviationNote"`
		Confidence         float64 `json:"confidence"`
	} `json:"issues"`
}

// IssueAnalysisSummary is the stage payload.
type IssueAnalysisSummary struct {
	IssueCount int            `json:"issueCount"`
	BySeverity map[string]int `json:"bySeverity"`
}

// IssueAnalysis produces the full severity-ordered issue set, streaming
// issues into the store one at a time so the UI sees them appear.
type IssueAnalysis struct {
	deps Deps
}

// NewIssueAnalysis creates the issue analysis runner.
func NewIssueAnalysis(deps Deps) *IssueAnalysis { return &IssueAnalysis{deps: deps} }

func (s *IssueAnalysis) Stage() matter.StageID { return matter.StageIssues }

func (s *IssueAnalysis) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	logger := s.deps.logger("issues").With(zap.String("matter_id", m.ID))

	user := s.buildPrompt(ctx, m, logger)

	var out issueAnalysisOutput
	if err := s.deps.LLM.GenerateStructured(ctx, issuesSystemPrompt, user, llm.Options{MaxTokens: 8192}, &out); err != nil {
		return nil, fmt.Errorf("analyzing issues: %w", err)
	}

	issues := make([]matter.Issue, 0, len(out.Issues))
	for _, raw := range out.Issues {
		conf := raw.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		issues = append(issues, matter.Issue{
			ID:                 uuid.NewString(),
			Title:              raw.Title,
			Severity:           matter.Severity(raw.Severity),
			ClauseRef:          raw.ClauseRef,
			Explanation:        raw.Explanation,
			Category:           raw.Category,
			InteractionEffects: raw.InteractionEffects,
			StatutoryBasis:     raw.StatutoryBasis,
			DeviationNote:      raw.DeviationNote,
			Confidence:         conf,
		})
	}

	// Severity order is established here and preserved downstream.
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})

	// Stream issues into the store one at a time. The engine's own
	// end-of-stage persist will land the same final list.
	streamed := make([]matter.Issue, 0, len(issues))
	for _, issue := range issues {
		streamed = append(streamed, issue)
		if _, err := s.deps.Store.Update(ctx, m.ID, matter.Update{Issues: streamed}); err != nil {
			logger.Warn("streaming issue snapshot", zap.Error(err))
		}
		pause(ctx, s.deps.StreamDelay)
	}

	summary := IssueAnalysisSummary{IssueCount: len(issues), BySeverity: map[string]int{}}
	for _, issue := range issues {
		summary.BySeverity[string(issue.Severity)]++
	}
	logger.Info("issue analysis complete", zap.Int("issues", len(issues)))

	return &pipeline.StageResult{
		Update: matter.Update{Issues: issues},
		Data:   summary,
	}, nil
}

// buildPrompt assembles the analysis prompt from parsing output and
// optional retrieved reference context. Retrieval failure degrades to
// model-only reasoning.
func (s *IssueAnalysis) buildPrompt(ctx context.Context, m *matter.Matter, logger *zap.Logger) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document type: %s\nJurisdiction: %s\nRisk tolerance: %s\n\n", m.DocType, m.Jurisdiction, m.RiskTolerance)

	for _, sec := range m.ParsedSections {
		fmt.Fprintf(&sb, "Section %q:\n%s\n\n", sec.Heading, sec.Text)
	}

	if parsed, err := stageData[ParsingOutput](m, matter.StageParsing); err == nil {
		if len(parsed.DefinedTerms) > 0 {
			sb.WriteString("Defined terms:\n")
			for _, t := range parsed.DefinedTerms {
				fmt.Fprintf(&sb, "- %s: %s\n", t.Term, t.Definition)
			}
			sb.WriteString("\n")
		}
		if len(parsed.MissingProvisions) > 0 {
			fmt.Fprintf(&sb, "Missing standard provisions: %s\n\n", strings.Join(parsed.MissingProvisions, "; "))
		}
		if len(parsed.Inconsistencies) > 0 {
			fmt.Fprintf(&sb, "Internal inconsistencies: %s\n\n", strings.Join(parsed.Inconsistencies, "; "))
		}
	}

	query := fmt.Sprintf("common legal issues in %s agreements under %s law", m.DocType, m.Jurisdiction)
	chunks, err := s.deps.Retriever.Retrieve(ctx, query, retrieval.Options{
		DocType: m.DocType,
		Expand:  true,
	})
	if err != nil {
		logger.Warn("reference retrieval failed, continuing without context", zap.Error(err))
	} else if block := contextBlock(chunks); block != "" {
		sb.WriteString(block)
	}

	return sb.String()
}

var _ pipeline.Runner = (*IssueAnalysis)(nil)
