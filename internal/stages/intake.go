package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const intakeSystemPrompt = `You are the intake desk of a legal review service. Classify the ` +
	`document, identify the parties, run a conflict-of-interest check against the party names, ` +
	`and define the review scope. Respond with JSON: {"documentClass": "...", "parties": ["..."], ` +
	`"conflictCheck": {"status": "clear|flagged", "notes": "..."}, "scope": "...", "summary": "..."}`

// IntakeOutput is the intake stage payload: descriptive metadata only,
// no issues yet.
type IntakeOutput struct {
	DocumentClass string   `json:"documentClass"`
	Parties       []string `json:"parties"`
	ConflictCheck struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	} `json:"conflictCheck"`
	Scope   string `json:"scope"`
	Summary string `json:"summary"`
}

// Intake classifies the document and defines the engagement scope.
type Intake struct {
	deps Deps
}

// NewIntake creates the intake runner.
func NewIntake(deps Deps) *Intake { return &Intake{deps: deps} }

func (s *Intake) Stage() matter.StageID { return matter.StageIntake }

func (s *Intake) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	user := fmt.Sprintf("Document type hint: %s\nJurisdiction: %s\n\n%s",
		m.DocType, m.Jurisdiction, m.DocumentText)

	var out IntakeOutput
	if err := s.deps.LLM.GenerateStructured(ctx, intakeSystemPrompt, user, llm.Options{}, &out); err != nil {
		return nil, fmt.Errorf("intake classification: %w", err)
	}

	// Index the document itself so later stages can retrieve its
	// sections and clauses alongside the reference corpus.
	if s.deps.Indexer != nil {
		logger := s.deps.logger("intake").With(zap.String("matter_id", m.ID))
		n, err := s.deps.Indexer.IngestDocument(ctx, m.ID, m.DocType, m.DocumentText)
		if err != nil {
			logger.Warn("indexing source document failed, retrieval will use references only", zap.Error(err))
		} else {
			logger.Info("source document indexed", zap.Int("chunks", n))
		}
	}

	// Intake is descriptive only: no matter-level collections change.
	return &pipeline.StageResult{Data: out}, nil
}

var _ pipeline.Runner = (*Intake)(nil)
