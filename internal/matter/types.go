// Package matter defines the unit of work for a document review and
// its persistence contract.
package matter

import (
	"time"

	"github.com/google/uuid"
)

// StageID identifies one pipeline stage.
type StageID string

// Pipeline stages, in execution order.
const (
	StageIntake       StageID = "intake"
	StageParsing      StageID = "parsing"
	StageIssues       StageID = "issue_analysis"
	StageResearch     StageID = "research"
	StageSynthesis    StageID = "synthesis"
	StageDrafting     StageID = "drafting"
	StageAdversarial  StageID = "adversarial_review"
	StageGuardrails   StageID = "guardrails"
	StageDeliverables StageID = "deliverables"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []StageID{
	StageIntake,
	StageParsing,
	StageIssues,
	StageResearch,
	StageSynthesis,
	StageDrafting,
	StageAdversarial,
	StageGuardrails,
	StageDeliverables,
}

var stageLabels = map[StageID]string{
	StageIntake:       "Intake & Conflict Check",
	StageParsing:      "Document Parsing",
	StageIssues:       "Issue Analysis",
	StageResearch:     "Legal Research",
	StageSynthesis:    "Synthesis",
	StageDrafting:     "Redline Drafting",
	StageAdversarial:  "Adversarial Review",
	StageGuardrails:   "Guardrails",
	StageDeliverables: "Deliverables",
}

// Label returns the human-readable stage name.
func (s StageID) Label() string { return stageLabels[s] }

// StageStatus is the lifecycle state of one StageInfo.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
	StageWarning  StageStatus = "warning"
	StageBlocked  StageStatus = "blocked"
)

// Status is the terminal state of a Matter.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Severity ranks a legal issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank returns the sort rank of a severity, critical first. Unknown
// severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// RiskTolerance is the user-selected risk posture for a matter.
type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// Audience selects the redline drafting style.
type Audience string

const (
	AudiencePlain Audience = "plain_english"
	AudienceLegal Audience = "legal_technical"
)

// StageInfo tracks one stage's lifecycle on a Matter.
type StageInfo struct {
	ID          StageID     `json:"id"`
	Label       string      `json:"label"`
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`

	// Data is the stage's own output, echoed for UI consumption.
	Data any `json:"data,omitempty"`
}

// AuditEntry records one pipeline event.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     StageID   `json:"stage"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// ParsedSection is one structural unit of the source document.
type ParsedSection struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Text    string `json:"text"`
	Index   int    `json:"index"`
}

// Research holds the three research fields added to an issue.
type Research struct {
	MarketNorms         string `json:"marketNorms"`
	RiskImpact          string `json:"riskImpact"`
	NegotiationLeverage string `json:"negotiationLeverage"`
}

// Synthesis holds the synthesized recommendation for an issue.
type Synthesis struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Issue is one legal concern found in the source document. Created by
// issue analysis; research, synthesis and drafting each add a field by
// ID and never remove one.
type Issue struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Severity           Severity   `json:"severity"`
	ClauseRef          string     `json:"clauseRef"`
	Explanation        string     `json:"explanation"`
	Category           string     `json:"category"`
	InteractionEffects string     `json:"interactionEffects,omitempty"`
	StatutoryBasis     string     `json:"statutoryBasis,omitempty"`
	DeviationNote      string     `json:"deviationNote,omitempty"`
	Confidence         float64    `json:"confidence"`
	Research           *Research  `json:"research,omitempty"`
	Synthesis          *Synthesis `json:"synthesis,omitempty"`
	Redline            string     `json:"redline,omitempty"`
}

// CheckResult is one guardrail check outcome.
type CheckResult struct {
	Pass  bool   `json:"pass"`
	Notes string `json:"notes,omitempty"`
}

// ConfidenceThreshold is the deterministically computed confidence
// check; the model's arithmetic is never trusted for this.
type ConfidenceThreshold struct {
	Score    float64 `json:"score"`
	Required float64 `json:"required"`
	Pass     bool    `json:"pass"`
}

// GuardrailResult is set exactly once by the guardrails stage and is
// immutable for the remainder of the run.
type GuardrailResult struct {
	JurisdictionCheck    CheckResult         `json:"jurisdictionCheck"`
	CitationCompleteness CheckResult         `json:"citationCompleteness"`
	ConfidenceThreshold  ConfidenceThreshold `json:"confidenceThreshold"`
	EscalationRequired   bool                `json:"escalationRequired"`
	EscalationReason     string              `json:"escalationReason,omitempty"`
}

// Deliverable is one final artifact produced by the last stage.
type Deliverable struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Format      string `json:"format"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

// Matter is the unit of work driven through the pipeline.
type Matter struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// User-supplied configuration.
	DocType       string        `json:"docType"`
	Jurisdiction  string        `json:"jurisdiction"`
	RiskTolerance RiskTolerance `json:"riskTolerance"`
	Audience      Audience      `json:"audience"`
	DocumentText  string        `json:"documentText"`

	// Pipeline-owned state, accumulated monotonically.
	Status               Status           `json:"status"`
	CurrentStage         *StageID         `json:"currentStage,omitempty"`
	Stages               []StageInfo      `json:"stages"`
	ParsedSections       []ParsedSection  `json:"parsedSections,omitempty"`
	Issues               []Issue          `json:"issues,omitempty"`
	Guardrails           *GuardrailResult `json:"guardrails,omitempty"`
	Deliverables         []Deliverable    `json:"deliverables,omitempty"`
	AuditLog             []AuditEntry     `json:"auditLog"`
	AdversarialCritiques []string         `json:"adversarialCritiques,omitempty"`
	DraftRevised         bool             `json:"draftRevised"`
	OverallConfidence    float64          `json:"overallConfidence"`
}

// Request holds the user-supplied fields needed to open a matter.
type Request struct {
	DocType       string        `json:"docType"`
	Jurisdiction  string        `json:"jurisdiction"`
	RiskTolerance RiskTolerance `json:"riskTolerance"`
	Audience      Audience      `json:"audience"`
	DocumentText  string        `json:"documentText"`
}

// New creates a Matter with all nine stages pending, in fixed order.
func New(req Request) *Matter {
	now := time.Now().UTC()
	stages := make([]StageInfo, 0, len(StageOrder))
	for _, id := range StageOrder {
		stages = append(stages, StageInfo{
			ID:     id,
			Label:  id.Label(),
			Status: StagePending,
		})
	}
	return &Matter{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		DocType:       req.DocType,
		Jurisdiction:  req.Jurisdiction,
		RiskTolerance: req.RiskTolerance,
		Audience:      req.Audience,
		DocumentText:  req.DocumentText,
		Status:        StatusProcessing,
		Stages:        stages,
		AuditLog: []AuditEntry{{
			Timestamp: now,
			Event:     "created",
		}},
	}
}

// Stage returns a pointer to the StageInfo with the given ID, or nil.
func (m *Matter) Stage(id StageID) *StageInfo {
	for i := range m.Stages {
		if m.Stages[i].ID == id {
			return &m.Stages[i]
		}
	}
	return nil
}

// Issue returns a pointer to the issue with the given ID, or nil.
func (m *Matter) Issue(id string) *Issue {
	for i := range m.Issues {
		if m.Issues[i].ID == id {
			return &m.Issues[i]
		}
	}
	return nil
}

// Audit appends an audit entry.
func (m *Matter) Audit(stage StageID, event, detail string) {
	m.AuditLog = append(m.AuditLog, AuditEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Event:     event,
		Detail:    detail,
	})
}

// Update is a partial Matter. Nil fields are left untouched when the
// update is applied; non-nil fields overwrite wholesale, matching the
// store's last-writer-wins contract.
type Update struct {
	ParsedSections       []ParsedSection  `json:"parsedSections,omitempty"`
	Issues               []Issue          `json:"issues,omitempty"`
	Guardrails           *GuardrailResult `json:"guardrails,omitempty"`
	Deliverables         []Deliverable    `json:"deliverables,omitempty"`
	AdversarialCritiques []string         `json:"adversarialCritiques,omitempty"`
	DraftRevised         *bool            `json:"draftRevised,omitempty"`
	OverallConfidence    *float64         `json:"overallConfidence,omitempty"`
}

// Apply shallow-merges the update onto the matter.
func (u Update) Apply(m *Matter) {
	if u.ParsedSections != nil {
		m.ParsedSections = u.ParsedSections
	}
	if u.Issues != nil {
		m.Issues = u.Issues
	}
	if u.Guardrails != nil {
		m.Guardrails = u.Guardrails
	}
	if u.Deliverables != nil {
		m.Deliverables = u.Deliverables
	}
	if u.AdversarialCritiques != nil {
		m.AdversarialCritiques = u.AdversarialCritiques
	}
	if u.DraftRevised != nil {
		m.DraftRevised = *u.DraftRevised
	}
	if u.OverallConfidence != nil {
		m.OverallConfidence = *u.OverallConfidence
	}
}
