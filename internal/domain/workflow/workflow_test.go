package workflow

import (
	"testing"

	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/review"
)

func TestNewBaseState(t *testing.T) {
	s := NewBaseState("corr-1", "")
	if s.WorkflowID == "" {
		t.Fatal("expected a generated workflow id")
	}
	if s.Status != StatusPending {
		t.Errorf("expected pending default, got %s", s.Status)
	}
	if s.CompletedAt != nil {
		t.Error("completed_at must be unset on a fresh state")
	}
	if s.Errors == nil || s.Warnings == nil {
		t.Error("error and warning slices must be initialized")
	}
}

func TestAddErrorForcesFailed(t *testing.T) {
	s := NewBaseState("", StatusInProgress)
	s.AddError("agent blew up")

	if s.Status != StatusFailed {
		t.Errorf("expected failed, got %s", s.Status)
	}
	if s.CompletedAt == nil {
		t.Error("terminal transition must stamp completed_at")
	}
	if len(s.Errors) != 1 || s.Errors[0] != "agent blew up" {
		t.Errorf("unexpected errors: %v", s.Errors)
	}

	// A second error accumulates; status stays failed.
	s.AddError("second")
	if len(s.Errors) != 2 || s.Status != StatusFailed {
		t.Errorf("errors must accumulate: %v, %s", s.Errors, s.Status)
	}
}

func TestAddWarningKeepsStatus(t *testing.T) {
	s := NewBaseState("", StatusInProgress)
	s.AddWarning("something advisory")

	if s.Status != StatusInProgress {
		t.Errorf("warning must not change status, got %s", s.Status)
	}
	if s.CompletedAt != nil {
		t.Error("warning must not stamp completed_at")
	}
}

func TestMarkCompleted(t *testing.T) {
	s := NewBaseState("", StatusInProgress)
	s.MarkCompleted()

	if s.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", s.Status)
	}
	if s.CompletedAt == nil {
		t.Error("completed_at must be set")
	}
	if !s.Status.IsTerminal() {
		t.Error("completed must be terminal")
	}
}

func TestStatusClassification(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusPendingReview} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
		if !s.IsValid() {
			t.Errorf("%s must be valid", s)
		}
	}
	if Status("paused").IsValid() {
		t.Error("unknown status must be invalid")
	}
}

func TestApprovalGates(t *testing.T) {
	approve := &review.HumanReview{Decision: review.DecisionApprove}
	reject := &review.HumanReview{Decision: review.DecisionReject}

	cases := []struct {
		name     string
		required bool
		rv       *review.HumanReview
		want     bool
	}{
		{"not required, no review", false, nil, true},
		{"not required, rejected review still passes", false, reject, true},
		{"required, no review", true, nil, false},
		{"required, approved", true, approve, true},
		{"required, rejected", true, reject, false},
		{"required, changes requested", true, &review.HumanReview{Decision: review.DecisionRequestChanges}, false},
	}

	for _, tc := range cases {
		st := NewInvoiceCreationState("", "input")
		st.RequireDescriptionApproval = tc.required
		st.DescriptionReview = tc.rv
		if got := st.IsDescriptionApproved(); got != tc.want {
			t.Errorf("description gate %s: expected %v, got %v", tc.name, tc.want, got)
		}

		st2 := NewInvoiceCreationState("", "input")
		st2.RequireTaxApproval = tc.required
		st2.TaxReview = tc.rv
		if got := st2.IsTaxApproved(); got != tc.want {
			t.Errorf("tax gate %s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsCompliant(t *testing.T) {
	st := NewInvoiceCreationState("", "input")
	if st.IsCompliant() {
		t.Fatal("no compliance result means not compliant")
	}

	set := func(success bool, confidence float64) {
		st.ComplianceResult = &agent.Result{
			AgentType:  agent.TypeCompliance,
			Success:    success,
			Confidence: confidence,
		}
	}

	set(true, 0.79)
	if st.IsCompliant() {
		t.Error("confidence below threshold must not be compliant")
	}

	set(true, 0.8)
	if !st.IsCompliant() {
		t.Error("boundary confidence 0.80 must pass, the threshold is inclusive")
	}

	set(false, 0.99)
	if st.IsCompliant() {
		t.Error("unsuccessful result must not be compliant regardless of confidence")
	}

	// Replacing the result takes effect without any invalidation step.
	set(true, 0.95)
	if !st.IsCompliant() {
		t.Error("replaced result must be re-evaluated")
	}
}

func TestGatesAreIndependent(t *testing.T) {
	st := NewInvoiceCreationState("", "fattura per consulenza")
	st.RequireTaxApproval = true

	st.ComplianceResult = &agent.Result{
		AgentType:  agent.TypeCompliance,
		Success:    true,
		Confidence: 0.9,
	}
	if !st.IsCompliant() {
		t.Fatal("compliance gate should be open")
	}

	st.TaxReview = &review.HumanReview{Decision: review.DecisionReject}
	if st.IsTaxApproved() {
		t.Error("rejected tax review must close its gate even when compliance passes")
	}
	if !st.IsCompliant() {
		t.Error("tax rejection must not affect the compliance gate")
	}
}

func TestHasBlockingSDIWarnings(t *testing.T) {
	st := NewComplianceCheckState("", "inv-1", CheckLevelFull)
	if st.HasBlockingSDIWarnings() {
		t.Fatal("fresh check must have no blocking warnings")
	}

	st.SDIWarnings = append(st.SDIWarnings, "description exceeds recommended length")
	if st.HasBlockingSDIWarnings() {
		t.Error("advisory warning must not block")
	}

	st.SDIWarnings = append(st.SDIWarnings, "critical: missing recipient codice destinatario")
	if !st.HasBlockingSDIWarnings() {
		t.Error("critical-prefixed warning must block")
	}
}
