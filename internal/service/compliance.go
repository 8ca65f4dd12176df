package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fatturaflow/fatturaflow/internal/adapter/otel"
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
	"github.com/fatturaflow/fatturaflow/internal/port/agentcap"
	"github.com/fatturaflow/fatturaflow/internal/port/messagequeue"
	"github.com/fatturaflow/fatturaflow/internal/port/workflowstore"
)

// Stage weights for the aggregate compliance score. Weights of stages that
// did not run are redistributed over the stages that did.
const (
	weightRules = 0.4
	weightSDI   = 0.3
	weightAI    = 0.3
)

// Allowed Italian VAT rates (percent) for static rule checking.
var allowedVATRates = map[float64]bool{0: true, 4: true, 5: true, 10: true, 22: true}

// partitaIVAPattern matches an 11-digit Italian VAT number.
var partitaIVAPattern = regexp.MustCompile(`^\d{11}$`)

// sdiDescriptionLimit is the maximum line description length accepted by
// the SDI transmission format.
const sdiDescriptionLimit = 1000

// ComplianceService runs the three independent compliance stages for a
// drafted invoice and aggregates them into one ComplianceCheckState.
type ComplianceService struct {
	store    workflowstore.Store
	registry *agentcap.Registry
	queue    messagequeue.Queue // optional
}

// NewComplianceService creates a ComplianceService.
func NewComplianceService(store workflowstore.Store, registry *agentcap.Registry, queue messagequeue.Queue) *ComplianceService {
	return &ComplianceService{store: store, registry: registry, queue: queue}
}

// RunCheck evaluates the drafted invoice at the given level and persists the
// resulting check state. The returned agent result is the AI stage's output
// (a synthesized failure when the AI stage did not run or misbehaved) so the
// caller can store it as the workflow's compliance result.
func (s *ComplianceService) RunCheck(
	ctx context.Context,
	inv *workflow.InvoiceCreationState,
	sc sharedctx.SharedContext,
	history []conversation.Message,
	level workflow.CheckLevel,
) (*workflow.ComplianceCheckState, *agent.Result, error) {
	st := workflow.NewComplianceCheckState(inv.CorrelationID, inv.WorkflowID, level)
	st.Status = workflow.StatusInProgress

	// Stage 1: static rules. Always runs.
	func() {
		_, span := otel.StartComplianceSpan(ctx, inv.WorkflowID, "rules")
		defer span.End()
		st.RulesIssues = checkRules(inv)
		st.RulesPassed = len(st.RulesIssues) == 0
	}()

	// Stage 2: SDI transmission patterns.
	if level == workflow.CheckLevelStandard || level == workflow.CheckLevelFull {
		_, span := otel.StartComplianceSpan(ctx, inv.WorkflowID, "sdi")
		st.SDIWarnings = checkSDIPatterns(inv)
		st.SDIPatternsChecked = true
		span.End()
	}

	// Stage 3: AI analysis.
	var aiResult *agent.Result
	if level == workflow.CheckLevelFull {
		aiCtx, span := otel.StartComplianceSpan(ctx, inv.WorkflowID, "ai")
		aiResult = s.invokeAI(aiCtx, sc, history)
		st.AIAnalysisPerformed = true
		span.End()
	} else {
		aiResult = agent.Failure(agent.TypeCompliance, fmt.Errorf("ai analysis skipped at level %s", level))
	}

	s.aggregate(st, aiResult)
	st.MarkCompleted()

	if err := s.store.SaveComplianceCheck(ctx, st); err != nil {
		return nil, nil, fmt.Errorf("save compliance check: %w", err)
	}
	s.publish(ctx, st)

	slog.Info("compliance check finished",
		"invoice_workflow_id", inv.WorkflowID,
		"level", level,
		"compliant", st.IsCompliant,
		"score", st.ComplianceScore,
		"risk", st.RiskScore,
	)

	return st, aiResult, nil
}

// invokeAI calls the compliance agent, folding every fault into a failed result.
func (s *ComplianceService) invokeAI(ctx context.Context, sc sharedctx.SharedContext, history []conversation.Message) *agent.Result {
	inv, err := s.registry.Get(agent.TypeCompliance)
	if err != nil {
		return agent.Failure(agent.TypeCompliance, err)
	}
	result, err := inv.Invoke(ctx, sc, history)
	if err != nil {
		return agent.Failure(agent.TypeCompliance, err)
	}
	return result
}

// aggregate folds the three stage outcomes into the numeric verdict.
// Weights of skipped stages are redistributed so a standard-level check can
// still reach a full score.
func (s *ComplianceService) aggregate(st *workflow.ComplianceCheckState, ai *agent.Result) {
	rulesScore := 1.0
	for range st.RulesIssues {
		rulesScore -= 0.25
	}
	if rulesScore < 0 {
		rulesScore = 0
	}

	weightSum := weightRules
	weighted := weightRules * rulesScore

	if st.SDIPatternsChecked {
		sdiScore := 1.0
		for _, w := range st.SDIWarnings {
			if strings.HasPrefix(w, workflow.BlockingSDIPrefix) {
				sdiScore -= 0.5
			} else {
				sdiScore -= 0.1
			}
		}
		if sdiScore < 0 {
			sdiScore = 0
		}
		weightSum += weightSDI
		weighted += weightSDI * sdiScore
	}

	if st.AIAnalysisPerformed {
		aiScore := 0.0
		if ai != nil && !ai.Failed() {
			aiScore = ai.Confidence
		}
		weightSum += weightAI
		weighted += weightAI * aiScore
	}

	st.ComplianceScore = weighted / weightSum
	st.RiskScore = 1 - st.ComplianceScore
	st.IsCompliant = st.ComplianceScore >= workflow.ComplianceThreshold &&
		st.RulesPassed &&
		!st.HasBlockingSDIWarnings()
}

// checkRules applies the static FatturaPA field rules.
func checkRules(inv *workflow.InvoiceCreationState) []string {
	issues := []string{}
	if inv.ClientID == "" {
		issues = append(issues, "client is not identified")
	}
	if len(inv.LineItems) == 0 {
		issues = append(issues, "invoice has no line items")
	}
	for i, li := range inv.LineItems {
		if strings.TrimSpace(li.Description) == "" {
			issues = append(issues, fmt.Sprintf("line %d has no description", i+1))
		}
		if li.Quantity <= 0 {
			issues = append(issues, fmt.Sprintf("line %d has non-positive quantity", i+1))
		}
		if li.UnitPrice < 0 {
			issues = append(issues, fmt.Sprintf("line %d has negative unit price", i+1))
		}
		if !allowedVATRates[li.VATRate] {
			issues = append(issues, fmt.Sprintf("line %d has invalid VAT rate %.1f", i+1, li.VATRate))
		}
	}
	if inv.TotalAmount < 0 {
		issues = append(issues, "total amount is negative")
	}
	return issues
}

// checkSDIPatterns applies the transmission-format checks. Warnings that
// would cause SDI to reject the file outright carry the blocking prefix.
func checkSDIPatterns(inv *workflow.InvoiceCreationState) []string {
	warnings := []string{}

	for i, li := range inv.LineItems {
		if len(li.Description) > sdiDescriptionLimit {
			warnings = append(warnings, fmt.Sprintf(
				"%sline %d description exceeds %d characters", workflow.BlockingSDIPrefix, i+1, sdiDescriptionLimit))
		}
		if strings.ContainsAny(li.Description, "\x00\x08\x0b") {
			warnings = append(warnings, fmt.Sprintf(
				"%sline %d description contains control characters", workflow.BlockingSDIPrefix, i+1))
		}
	}

	if piva, ok := inv.TaxDetails["partita_iva"].(string); ok && piva != "" {
		if !partitaIVAPattern.MatchString(piva) {
			warnings = append(warnings, workflow.BlockingSDIPrefix+"partita IVA is not 11 digits")
		}
	} else {
		warnings = append(warnings, "partita IVA missing from tax details")
	}

	if nature, ok := inv.TaxDetails["natura"].(string); ok {
		if zeroRated(inv) && nature == "" {
			warnings = append(warnings, workflow.BlockingSDIPrefix+"zero-rated lines require a natura code")
		}
	} else if zeroRated(inv) {
		warnings = append(warnings, workflow.BlockingSDIPrefix+"zero-rated lines require a natura code")
	}

	return warnings
}

// zeroRated reports whether any line carries a 0% VAT rate.
func zeroRated(inv *workflow.InvoiceCreationState) bool {
	for _, li := range inv.LineItems {
		if li.VATRate == 0 {
			return true
		}
	}
	return false
}

// publish emits the compliance event, if a queue is wired.
func (s *ComplianceService) publish(ctx context.Context, st *workflow.ComplianceCheckState) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.WorkflowEventPayload{
		WorkflowID:    st.WorkflowID,
		CorrelationID: st.CorrelationID,
		Status:        st.Status.String(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectComplianceChecked, data); err != nil {
		slog.Warn("publish compliance event failed", "workflow_id", st.WorkflowID, "error", err)
	}
}
