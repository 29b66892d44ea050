package stages

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
)

const parsingSystemPrompt = `You decompose legal documents into structure. Split the document into ` +
	`its sections, extract defined terms, flag standard provisions that are missing for this ` +
	`document type, and note internal inconsistencies. Respond with JSON: {"sections": [{"heading": ` +
	`"...", "text": "..."}], "definedTerms": [{"term": "...", "definition": "..."}], ` +
	`"missingProvisions": ["..."], "inconsistencies": ["..."]}`

// DefinedTerm is one defined term extracted from the document.
type DefinedTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ParsingOutput is the parsing stage payload. Sections are also
// promoted onto the matter; the rest feeds issue analysis.
type ParsingOutput struct {
	Sections []struct {
		Heading string `json:"heading"`
		Text    string `json:"text"`
	} `json:"sections"`
	DefinedTerms      []DefinedTerm `json:"definedTerms"`
	MissingProvisions []string      `json:"missingProvisions"`
	Inconsistencies   []string      `json:"inconsistencies"`
}

// Parsing decomposes the document text into sections and structural
// findings. It does not yet produce issues.
type Parsing struct {
	deps Deps
}

// NewParsing creates the parsing runner.
func NewParsing(deps Deps) *Parsing { return &Parsing{deps: deps} }

func (s *Parsing) Stage() matter.StageID { return matter.StageParsing }

func (s *Parsing) Run(ctx context.Context, m *matter.Matter) (*pipeline.StageResult, error) {
	user := fmt.Sprintf("Document type: %s\n\n%s", m.DocType, m.DocumentText)

	var out ParsingOutput
	if err := s.deps.LLM.GenerateStructured(ctx, parsingSystemPrompt, user, llm.Options{MaxTokens: 8192}, &out); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	sections := make([]matter.ParsedSection, 0, len(out.Sections))
	for i, sec := range out.Sections {
		sections = append(sections, matter.ParsedSection{
			ID:      fmt.Sprintf("sec-%d", i+1),
			Heading: sec.Heading,
			Text:    sec.Text,
			Index:   i,
		})
	}

	return &pipeline.StageResult{
		Update: matter.Update{ParsedSections: sections},
		Data:   out,
	}, nil
}

var _ pipeline.Runner = (*Parsing)(nil)
