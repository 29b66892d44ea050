// Package chunking splits document text into retrievable units.
//
// Two independent strategies exist: HierarchicalChunker for legal
// source documents (section and clause aware, with a sentence-group
// fallback) and OverlapChunker for ingesting arbitrary reference
// documents into the knowledge base.
package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Metadata keys set by the chunkers.
const (
	MetaStrategy = "strategy"
	MetaSection  = "section"
	MetaDocType  = "doc_type"
	MetaTitle    = "title"
)

// Chunk is one retrievable unit of text.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]string
}

func newChunk(content, strategy string) Chunk {
	return Chunk{
		ID:       uuid.NewString(),
		Content:  content,
		Metadata: map[string]string{MetaStrategy: strategy},
	}
}

// headingRe matches section headings: markdown headings, "SECTION 1",
// "Article IV", "1. Title" lines, and ALL-CAPS lines.
var headingRe = regexp.MustCompile(`(?m)^(#{1,4}\s+.+|(?:SECTION|Section|ARTICLE|Article)\s+[\dIVXivx]+[.:)]?\s*.*|\d+\.\s+[A-Z].{0,80}|[A-Z][A-Z\s]{4,80})$`)

// clauseRe matches numbered or lettered list items: "1.2 ...",
// "(a) ...", "(iv) ...", "2.3.1 ...".
var clauseRe = regexp.MustCompile(`(?m)^\s*(?:\d+(?:\.\d+)+|\([a-z]\)|\([ivx]+\)|\(\d+\))\s+\S`)

// sentenceEndRe splits text into sentences on terminal punctuation.
var sentenceEndRe = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

// HierarchicalConfig holds chunking thresholds.
type HierarchicalConfig struct {
	// MinSectionLen is the minimum section chunk length kept.
	MinSectionLen int
	// MinClauseLen and MaxClauseLen bound clause chunk length.
	MinClauseLen int
	MaxClauseLen int
	// SentencesPerChunk sets fallback sentence grouping.
	SentencesPerChunk int
}

// ApplyDefaults sets default values for unset fields.
func (c *HierarchicalConfig) ApplyDefaults() {
	if c.MinSectionLen == 0 {
		c.MinSectionLen = 100
	}
	if c.MinClauseLen == 0 {
		c.MinClauseLen = 50
	}
	if c.MaxClauseLen == 0 {
		c.MaxClauseLen = 2000
	}
	if c.SentencesPerChunk == 0 {
		c.SentencesPerChunk = 5
	}
}

// HierarchicalChunker splits legal documents along their structure.
type HierarchicalChunker struct {
	cfg HierarchicalConfig
}

// NewHierarchicalChunker creates a chunker with the given config.
func NewHierarchicalChunker(cfg HierarchicalConfig) *HierarchicalChunker {
	cfg.ApplyDefaults()
	return &HierarchicalChunker{cfg: cfg}
}

// Chunk splits text into section chunks and clause chunks. If neither
// strategy yields anything, it falls back to fixed sentence grouping.
func (h *HierarchicalChunker) Chunk(text string) []Chunk {
	var chunks []Chunk
	chunks = append(chunks, h.sectionChunks(text)...)
	chunks = append(chunks, h.clauseChunks(text)...)
	if len(chunks) == 0 {
		chunks = h.semanticChunks(text)
	}
	return chunks
}

// section pairs a heading with its body text.
type section struct {
	heading string
	body    string
}

func splitSections(text string) []section {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	sections := make([]section, 0, len(locs))
	for i, loc := range locs {
		heading := strings.TrimSpace(text[loc[0]:loc[1]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		sections = append(sections, section{heading: heading, body: body})
	}
	return sections
}

func (h *HierarchicalChunker) sectionChunks(text string) []Chunk {
	var chunks []Chunk
	for _, sec := range splitSections(text) {
		content := sec.heading + "\n" + sec.body
		if len(content) <= h.cfg.MinSectionLen {
			continue
		}
		c := newChunk(content, "section")
		c.Metadata[MetaSection] = sec.heading
		chunks = append(chunks, c)
	}
	return chunks
}

func (h *HierarchicalChunker) clauseChunks(text string) []Chunk {
	var chunks []Chunk
	for _, sec := range splitSections(text) {
		for _, clause := range splitClauses(sec.body) {
			if len(clause) < h.cfg.MinClauseLen || len(clause) > h.cfg.MaxClauseLen {
				continue
			}
			c := newChunk(clause, "clause")
			c.Metadata[MetaSection] = sec.heading
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// splitClauses cuts body text at each list-item marker.
func splitClauses(body string) []string {
	locs := clauseRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}
	clauses := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		clause := strings.TrimSpace(body[loc[0]:end])
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return clauses
}

// semanticChunks groups sentences into fixed-size chunks. Fallback for
// documents with no recognizable structure.
func (h *HierarchicalChunker) semanticChunks(text string) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}

	var chunks []Chunk
	for i := 0; i < len(sentences); i += h.cfg.SentencesPerChunk {
		end := i + h.cfg.SentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		content := strings.TrimSpace(strings.Join(sentences[i:end], " "))
		if content == "" {
			continue
		}
		c := newChunk(content, "semantic")
		c.Metadata[MetaSection] = fmt.Sprintf("chunk-%d", len(chunks)+1)
		chunks = append(chunks, c)
	}
	return chunks
}

func splitSentences(text string) []string {
	matches := sentenceEndRe.FindAllStringSubmatch(text, -1)
	sentences := make([]string, 0, len(matches))
	consumed := 0
	for _, m := range matches {
		s := strings.TrimSpace(m[1])
		if s != "" {
			sentences = append(sentences, s)
		}
		consumed += len(m[0])
	}
	// Keep any trailing text without terminal punctuation.
	if rest := strings.TrimSpace(text[min(consumed, len(text)):]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
