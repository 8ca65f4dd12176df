package service

import (
	"context"
	"strings"
	"testing"

	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
)

func draftedInvoice() *workflow.InvoiceCreationState {
	st := workflow.NewInvoiceCreationState("corr-1", "two days of consulting")
	st.ClientID = "client-7"
	st.LineItems = []workflow.LineItem{
		{Description: "Consulting", Quantity: 2, UnitPrice: 100, VATRate: 22},
	}
	st.TaxDetails = map[string]any{"partita_iva": "12345678901"}
	st.NetAmount = 200
	st.VATAmount = 44
	st.TotalAmount = 244
	return st
}

func complianceAgent(confidence float64) *mockInvoker {
	return &mockInvoker{
		agentType: agent.TypeCompliance,
		result: &agent.Result{
			AgentType: agent.TypeCompliance, Success: true, Confidence: confidence,
			Content: "analysis done",
		},
	}
}

func TestRunCheckFullLevelCompliant(t *testing.T) {
	store := newMockStore()
	queue := &mockQueue{}
	svc := NewComplianceService(store, buildRegistry(t, complianceAgent(0.9)), queue)

	st, ai, err := svc.RunCheck(context.Background(), draftedInvoice(), sharedctx.SharedContext{}, nil, workflow.CheckLevelFull)
	if err != nil {
		t.Fatal(err)
	}

	if !st.RulesPassed || len(st.RulesIssues) != 0 {
		t.Errorf("rules should pass: %v", st.RulesIssues)
	}
	if !st.SDIPatternsChecked || len(st.SDIWarnings) != 0 {
		t.Errorf("sdi should be clean: checked=%v warnings=%v", st.SDIPatternsChecked, st.SDIWarnings)
	}
	if !st.AIAnalysisPerformed {
		t.Error("ai stage should have run at full level")
	}

	// rules 1.0*0.4 + sdi 1.0*0.3 + ai 0.9*0.3
	if st.ComplianceScore < 0.969 || st.ComplianceScore > 0.971 {
		t.Errorf("unexpected score %v", st.ComplianceScore)
	}
	if st.RiskScore < 0.029 || st.RiskScore > 0.031 {
		t.Errorf("risk must mirror the score: %v", st.RiskScore)
	}
	if !st.IsCompliant {
		t.Error("expected compliant verdict")
	}
	if st.Status != workflow.StatusCompleted {
		t.Errorf("check must end completed, got %s", st.Status)
	}
	if ai == nil || ai.Confidence != 0.9 {
		t.Errorf("expected the ai result back, got %+v", ai)
	}
	if !queue.published("workflows.compliance_checked") {
		t.Error("expected compliance event")
	}
}

func TestRunCheckBasicLevelSkipsStages(t *testing.T) {
	store := newMockStore()
	svc := NewComplianceService(store, buildRegistry(t, complianceAgent(0.9)), nil)

	st, ai, err := svc.RunCheck(context.Background(), draftedInvoice(), sharedctx.SharedContext{}, nil, workflow.CheckLevelBasic)
	if err != nil {
		t.Fatal(err)
	}

	if st.SDIPatternsChecked || st.AIAnalysisPerformed {
		t.Error("basic level must run rules only")
	}
	// Skipped stage weights redistribute: clean rules alone score 1.0.
	if st.ComplianceScore != 1.0 {
		t.Errorf("expected full score from rules alone, got %v", st.ComplianceScore)
	}
	if !st.IsCompliant {
		t.Error("clean basic check must be compliant")
	}
	if ai == nil || !ai.Failed() {
		t.Error("skipped ai stage must yield a synthesized failure result")
	}
}

func TestRunCheckRuleIssues(t *testing.T) {
	store := newMockStore()
	svc := NewComplianceService(store, buildRegistry(t, complianceAgent(0.9)), nil)

	inv := draftedInvoice()
	inv.ClientID = ""
	inv.LineItems[0].VATRate = 13 // not an Italian VAT rate

	st, _, err := svc.RunCheck(context.Background(), inv, sharedctx.SharedContext{}, nil, workflow.CheckLevelBasic)
	if err != nil {
		t.Fatal(err)
	}

	if st.RulesPassed {
		t.Fatal("rules must fail")
	}
	if len(st.RulesIssues) != 2 {
		t.Fatalf("expected 2 issues, got %v", st.RulesIssues)
	}
	// Two issues at 0.25 each off a rules-only score.
	if st.ComplianceScore != 0.5 {
		t.Errorf("expected 0.5, got %v", st.ComplianceScore)
	}
	if st.IsCompliant {
		t.Error("failed rules veto compliance regardless of score")
	}
}

func TestRunCheckBlockingSDIWarningVetoes(t *testing.T) {
	store := newMockStore()
	svc := NewComplianceService(store, buildRegistry(t, complianceAgent(1.0)), nil)

	inv := draftedInvoice()
	inv.TaxDetails["partita_iva"] = "12AB"

	st, _, err := svc.RunCheck(context.Background(), inv, sharedctx.SharedContext{}, nil, workflow.CheckLevelFull)
	if err != nil {
		t.Fatal(err)
	}

	if !st.HasBlockingSDIWarnings() {
		t.Fatalf("malformed partita IVA must be blocking: %v", st.SDIWarnings)
	}
	if st.IsCompliant {
		t.Error("blocking sdi warning vetoes compliance")
	}
}

func TestRunCheckZeroRatedNeedsNatura(t *testing.T) {
	store := newMockStore()
	svc := NewComplianceService(store, buildRegistry(t, complianceAgent(1.0)), nil)

	inv := draftedInvoice()
	inv.LineItems[0].VATRate = 0

	st, _, err := svc.RunCheck(context.Background(), inv, sharedctx.SharedContext{}, nil, workflow.CheckLevelStandard)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, w := range st.SDIWarnings {
		if strings.Contains(w, "natura") && strings.HasPrefix(w, workflow.BlockingSDIPrefix) {
			found = true
		}
	}
	if !found {
		t.Fatalf("zero-rated line without natura must produce a blocking warning: %v", st.SDIWarnings)
	}
}

func TestRunCheckAIFaultScoredAsZero(t *testing.T) {
	store := newMockStore()
	broken := &mockInvoker{agentType: agent.TypeCompliance, err: context.DeadlineExceeded}
	svc := NewComplianceService(store, buildRegistry(t, broken), nil)

	st, ai, err := svc.RunCheck(context.Background(), draftedInvoice(), sharedctx.SharedContext{}, nil, workflow.CheckLevelFull)
	if err != nil {
		t.Fatal(err)
	}

	if ai == nil || !ai.Failed() {
		t.Fatal("agent fault must fold into a failed result, never an error return")
	}
	// rules 1.0*0.4 + sdi 1.0*0.3 + ai 0*0.3 = 0.7
	if st.ComplianceScore < 0.699 || st.ComplianceScore > 0.701 {
		t.Errorf("expected 0.7, got %v", st.ComplianceScore)
	}
	if st.IsCompliant {
		t.Error("0.7 is below the threshold")
	}
}
