package workflow

import "strings"

// CheckLevel selects how deep a compliance check goes.
type CheckLevel string

const (
	CheckLevelBasic    CheckLevel = "basic"    // Static rules only
	CheckLevelStandard CheckLevel = "standard" // Rules + SDI transmission patterns
	CheckLevelFull     CheckLevel = "full"     // Rules + SDI patterns + AI analysis
)

// BlockingSDIPrefix marks an SDI warning that vetoes compliance outright;
// warnings without it are advisory.
const BlockingSDIPrefix = "critical:"

// ComplianceCheckState accumulates the outcome of the three independent
// compliance stages for one invoice. Every check field keeps its zero value
// until the corresponding stage has actually run.
type ComplianceCheckState struct {
	BaseState

	InvoiceID  string     `json:"invoice_id"`
	CheckLevel CheckLevel `json:"check_level"`

	RulesPassed bool     `json:"rules_passed"`
	RulesIssues []string `json:"rules_issues"`

	SDIPatternsChecked bool     `json:"sdi_patterns_checked"`
	SDIWarnings        []string `json:"sdi_warnings"`

	AIAnalysisPerformed bool `json:"ai_analysis_performed"`

	IsCompliant     bool    `json:"is_compliant"`
	ComplianceScore float64 `json:"compliance_score"`
	RiskScore       float64 `json:"risk_score"`
}

// NewComplianceCheckState creates a pending compliance check for an invoice.
func NewComplianceCheckState(correlationID, invoiceID string, level CheckLevel) *ComplianceCheckState {
	return &ComplianceCheckState{
		BaseState:   NewBaseState(correlationID, StatusPending),
		InvoiceID:   invoiceID,
		CheckLevel:  level,
		RulesIssues: []string{},
		SDIWarnings: []string{},
	}
}

// HasBlockingSDIWarnings reports whether any recorded SDI warning vetoes
// compliance regardless of the aggregate score.
func (s *ComplianceCheckState) HasBlockingSDIWarnings() bool {
	for _, w := range s.SDIWarnings {
		if strings.HasPrefix(w, BlockingSDIPrefix) {
			return true
		}
	}
	return false
}
