package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fatturaflow/fatturaflow/internal/adapter/otel"
	"github.com/fatturaflow/fatturaflow/internal/config"
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/review"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/domain/workflow"
	"github.com/fatturaflow/fatturaflow/internal/port/agentcap"
	"github.com/fatturaflow/fatturaflow/internal/port/broadcast"
	"github.com/fatturaflow/fatturaflow/internal/port/messagequeue"
	"github.com/fatturaflow/fatturaflow/internal/port/notifier"
	"github.com/fatturaflow/fatturaflow/internal/port/workflowstore"
)

// Checkpoint names accepted by the human-review channel.
const (
	CheckpointDescription = "description"
	CheckpointTax         = "tax"
	CheckpointCompliance  = "compliance"
)

// Orchestrator drives invoice-creation workflows through agent stages,
// confidence gates and human-review checkpoints. Each state is owned by one
// in-flight run; the fan-out stage is the only concurrency inside a run and
// its results are merged into the state sequentially after the wait.
type Orchestrator struct {
	store      workflowstore.Store
	registry   *agentcap.Registry
	compliance *ComplianceService
	cache      *ResultCache          // optional
	queue      messagequeue.Queue    // optional
	hub        broadcast.Broadcaster // optional
	notifiers  []notifier.Notifier   // optional
	metrics    *otel.Metrics         // optional
	cfg        config.Workflow
}

// NewOrchestrator creates an Orchestrator with all dependencies. The
// registry is an explicit value; there is no process-wide agent registry.
func NewOrchestrator(
	store workflowstore.Store,
	registry *agentcap.Registry,
	compliance *ComplianceService,
	cache *ResultCache,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	cfg config.Workflow,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		registry:   registry,
		compliance: compliance,
		cache:      cache,
		queue:      queue,
		hub:        hub,
		cfg:        cfg,
	}
}

// SetMetrics attaches metric instruments.
func (s *Orchestrator) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// AddNotifier appends a notifier called at review checkpoints and terminal states.
func (s *Orchestrator) AddNotifier(n notifier.Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// StartRequest holds the fields needed to start an invoice-creation workflow.
type StartRequest struct {
	CorrelationID              string                  `json:"correlation_id,omitempty"`
	UserInput                  string                  `json:"user_input"`
	ClientID                   string                  `json:"client_id,omitempty"`
	RequireDescriptionApproval bool                    `json:"require_description_approval"`
	RequireTaxApproval         bool                    `json:"require_tax_approval"`
	Context                    sharedctx.SharedContext `json:"context"`
}

// Validate checks the request fields.
func (r *StartRequest) Validate() error {
	if strings.TrimSpace(r.UserInput) == "" {
		return fmt.Errorf("user_input is required")
	}
	return nil
}

// StartInvoiceWorkflow creates a new workflow state and advances it until it
// completes, fails or suspends at a checkpoint. The returned state reflects
// the point reached; workflow-level failures are recorded in the state, not
// returned as errors.
func (s *Orchestrator) StartInvoiceWorkflow(ctx context.Context, req StartRequest) (*workflow.InvoiceCreationState, error) {
	st, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	return st, s.run(ctx, st, req.Context.Clone())
}

// StartInvoiceWorkflowAsync creates and persists the workflow, then runs the
// stages in the background. The returned state is the freshly created one;
// callers poll or subscribe for progress. The background run is detached
// from the caller's cancellation.
func (s *Orchestrator) StartInvoiceWorkflowAsync(ctx context.Context, req StartRequest) (*workflow.InvoiceCreationState, error) {
	st, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	// The caller gets a snapshot; the background run owns the live state.
	snap := snapshotState(st)
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.run(bg, st, req.Context.Clone()); err != nil {
			slog.Error("background workflow run failed", "workflow_id", st.WorkflowID, "error", err)
		}
	}()
	return snap, nil
}

func snapshotState(st *workflow.InvoiceCreationState) *workflow.InvoiceCreationState {
	data, err := json.Marshal(st)
	if err != nil {
		return st
	}
	var snap workflow.InvoiceCreationState
	if err := json.Unmarshal(data, &snap); err != nil {
		return st
	}
	return &snap
}

func (s *Orchestrator) create(ctx context.Context, req StartRequest) (*workflow.InvoiceCreationState, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate start request: %w", err)
	}

	st := workflow.NewInvoiceCreationState(req.CorrelationID, req.UserInput)
	st.ClientID = req.ClientID
	st.RequireDescriptionApproval = req.RequireDescriptionApproval
	st.RequireTaxApproval = req.RequireTaxApproval
	st.Status = workflow.StatusInProgress

	if err := s.store.SaveInvoiceWorkflow(ctx, st); err != nil {
		return nil, fmt.Errorf("save new workflow: %w", err)
	}
	s.publish(ctx, messagequeue.SubjectWorkflowCreated, st, "")
	if s.metrics != nil {
		s.metrics.WorkflowsStarted.Add(ctx, 1)
	}
	return st, nil
}

func (s *Orchestrator) run(ctx context.Context, st *workflow.InvoiceCreationState, sc sharedctx.SharedContext) error {
	ctx, span := otel.StartWorkflowSpan(ctx, st.WorkflowID, st.CorrelationID)
	defer span.End()

	start := time.Now()
	err := s.advance(ctx, st, sc)
	if s.metrics != nil {
		s.metrics.WorkflowDuration.Record(ctx, time.Since(start).Seconds())
	}
	return err
}

// advance runs the remaining stages for the state. Cancellation is checked
// between stages only; an in-flight agent call runs to its own timeout.
func (s *Orchestrator) advance(ctx context.Context, st *workflow.InvoiceCreationState, sc sharedctx.SharedContext) error {
	if sc.DefaultVATRate == 0 {
		sc.DefaultVATRate = s.cfg.DefaultVATRate
	}
	history := s.buildHistory(st, sc)

	// Stage 1: extraction. Required to succeed; a failed extraction is a
	// workflow-level error.
	if len(st.LineItems) == 0 {
		result := s.invoke(ctx, agent.TypeExtraction, sc, history.Messages(true))
		if result.Failed() {
			return s.fail(ctx, st, fmt.Sprintf("extraction agent failed: %s", result.Error))
		}
		if err := applyExtraction(st, result); err != nil {
			return s.fail(ctx, st, fmt.Sprintf("extraction output rejected: %v", err))
		}
		history.AddAssistant(result.Content)
	}

	if err := s.checkCancelled(ctx, st); err != nil {
		return err
	}

	// Stage 2: description + tax suggestion fan out against the same
	// snapshot. Results are collected first and merged one assignment at a
	// time after the wait; the group is the only mutual-exclusion boundary.
	if !hasDraft(st) {
		var descResult, taxResult *agent.Result
		slice := history.Messages(true)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			descResult = s.invoke(gctx, agent.TypeDescription, sc, slice)
			return nil
		})
		g.Go(func() error {
			taxResult = s.invoke(gctx, agent.TypeTaxSuggestion, sc, slice)
			return nil
		})
		_ = g.Wait()

		mergeDescription(st, descResult)
		mergeTaxDetails(st, taxResult)
		if !descResult.Failed() {
			history.AddAssistant(descResult.Content)
		}
		if !taxResult.Failed() {
			history.AddAssistant(taxResult.Content)
		}
		history.TrimToTokenBudget()
	}

	if err := s.checkCancelled(ctx, st); err != nil {
		return err
	}

	// Stage 3: approval gates. The required flag is evaluated first; an
	// explicit rejection on resume is terminal.
	if done, err := s.applyGate(ctx, st, CheckpointDescription, st.RequireDescriptionApproval, st.DescriptionReview, st.IsDescriptionApproved()); done {
		return err
	}
	if done, err := s.applyGate(ctx, st, CheckpointTax, st.RequireTaxApproval, st.TaxReview, st.IsTaxApproved()); done {
		return err
	}

	if err := s.checkCancelled(ctx, st); err != nil {
		return err
	}

	// Stage 4: compliance.
	if st.ComplianceResult == nil {
		level := workflow.CheckLevel(s.cfg.DefaultCheckLevel)
		_, aiResult, err := s.compliance.RunCheck(ctx, st, sc, history.Messages(true), level)
		if err != nil {
			return s.fail(ctx, st, fmt.Sprintf("compliance check: %v", err))
		}
		st.ComplianceResult = aiResult
	}
	if !st.IsCompliant() && !overridden(st.ComplianceReview) {
		if st.ComplianceReview != nil && st.ComplianceReview.Decision == review.DecisionReject {
			return s.fail(ctx, st, "compliance rejected by reviewer")
		}
		st.AddWarning(complianceWarning(st.ComplianceResult))
		return s.suspend(ctx, st, CheckpointCompliance)
	}
	if overridden(st.ComplianceReview) && !st.IsCompliant() {
		st.AddWarning("compliance gate overridden by reviewer")
	}

	// Stage 5: done.
	st.MarkCompleted()
	if err := s.store.SaveInvoiceWorkflow(ctx, st); err != nil {
		return fmt.Errorf("save completed workflow: %w", err)
	}
	s.publish(ctx, messagequeue.SubjectWorkflowCompleted, st, "")
	s.broadcastStatus(ctx, st)
	s.notify(ctx, "Invoice workflow completed",
		fmt.Sprintf("workflow %s completed for client %s", st.WorkflowID, st.ClientID),
		"success", "workflow.completed")
	if s.metrics != nil {
		s.metrics.WorkflowsCompleted.Add(ctx, 1)
	}
	slog.Info("workflow completed", "workflow_id", st.WorkflowID, "total", st.TotalAmount)
	return nil
}

// applyGate evaluates one approval checkpoint. Returns done=true when the
// workflow must stop advancing (suspended, failed, or a store error).
func (s *Orchestrator) applyGate(ctx context.Context, st *workflow.InvoiceCreationState, checkpoint string, required bool, rv *review.HumanReview, open bool) (bool, error) {
	if open {
		return false, nil
	}
	if required && rv != nil && rv.Decision == review.DecisionReject {
		return true, s.fail(ctx, st, fmt.Sprintf("%s rejected by reviewer", checkpoint))
	}
	if required && rv != nil && rv.Decision == review.DecisionRequestChanges {
		st.AddWarning(fmt.Sprintf("%s checkpoint: reviewer requested changes", checkpoint))
	}
	return true, s.suspend(ctx, st, checkpoint)
}

// invoke runs one agent capability with cache lookup, timeout wrapping and
// span/metric instrumentation. It always returns a well-formed result.
func (s *Orchestrator) invoke(ctx context.Context, t agent.Type, sc sharedctx.SharedContext, history []conversation.Message) *agent.Result {
	key := ""
	if s.cache.Enabled() {
		key = s.cache.Key(t, sc, keyTail(history, s.cfg.HistoryTailForKey))
		if cached, ok := s.cache.Get(ctx, key); ok {
			if s.metrics != nil {
				s.metrics.CacheHits.Add(ctx, 1)
			}
			slog.Debug("agent result served from cache", "agent_type", t)
			return cached
		}
	}

	inv, err := s.registry.Get(t)
	if err != nil {
		return agent.Failure(t, err)
	}

	ctx, span := otel.StartAgentSpan(ctx, "", t.String())
	defer span.End()

	callCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.AgentTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.AgentTimeout)
		defer cancel()
	}

	if s.metrics != nil {
		s.metrics.AgentInvocations.Add(ctx, 1)
	}

	result, err := inv.Invoke(callCtx, sc, history)
	if err != nil {
		return agent.Failure(t, err)
	}
	if result == nil {
		return agent.Failure(t, fmt.Errorf("invoker returned no result"))
	}

	if key != "" {
		s.cache.Put(ctx, key, result)
	}
	return result
}

// checkCancelled implements cooperative cancellation between stages. The
// state is saved as-is so the run can be inspected or resumed later.
func (s *Orchestrator) checkCancelled(ctx context.Context, st *workflow.InvoiceCreationState) error {
	if err := ctx.Err(); err == nil {
		return nil
	}
	st.AddWarning("run cancelled between stages")
	if saveErr := s.store.SaveInvoiceWorkflow(context.WithoutCancel(ctx), st); saveErr != nil {
		slog.Error("save cancelled workflow failed", "workflow_id", st.WorkflowID, "error", saveErr)
	}
	return ctx.Err()
}

// fail records a workflow-level error (terminal) and persists the state.
func (s *Orchestrator) fail(ctx context.Context, st *workflow.InvoiceCreationState, msg string) error {
	st.AddError(msg)
	if err := s.store.SaveInvoiceWorkflow(ctx, st); err != nil {
		return fmt.Errorf("save failed workflow: %w", err)
	}
	s.publish(ctx, messagequeue.SubjectWorkflowFailed, st, "")
	s.broadcastStatus(ctx, st)
	s.notify(ctx, "Invoice workflow failed", msg, "error", "workflow.failed")
	if s.metrics != nil {
		s.metrics.WorkflowsFailed.Add(ctx, 1)
	}
	slog.Warn("workflow failed", "workflow_id", st.WorkflowID, "error", msg)
	return nil
}

// suspend parks the workflow at a review checkpoint.
func (s *Orchestrator) suspend(ctx context.Context, st *workflow.InvoiceCreationState, checkpoint string) error {
	st.Status = workflow.StatusPendingReview
	if err := s.store.SaveInvoiceWorkflow(ctx, st); err != nil {
		return fmt.Errorf("save suspended workflow: %w", err)
	}
	s.publish(ctx, messagequeue.SubjectWorkflowReviewRequested, st, checkpoint)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "workflow.review_requested", map[string]string{
			"workflow_id": st.WorkflowID,
			"checkpoint":  checkpoint,
		})
	}
	s.notify(ctx, "Invoice workflow needs review",
		fmt.Sprintf("workflow %s is waiting for %s review", st.WorkflowID, checkpoint),
		"warning", "workflow.review_requested")
	if s.metrics != nil {
		s.metrics.WorkflowsSuspended.Add(ctx, 1)
	}
	slog.Info("workflow suspended for review", "workflow_id", st.WorkflowID, "checkpoint", checkpoint)
	return nil
}

// GetWorkflow loads one workflow state.
func (s *Orchestrator) GetWorkflow(ctx context.Context, workflowID string) (*workflow.InvoiceCreationState, error) {
	return s.store.GetInvoiceWorkflow(ctx, workflowID)
}

// ListPendingReview returns all suspended workflows, oldest first.
func (s *Orchestrator) ListPendingReview(ctx context.Context) ([]workflow.InvoiceCreationState, error) {
	return s.store.ListInvoiceWorkflowsPendingReview(ctx)
}

// GetComplianceCheck loads the compliance check recorded for a workflow.
func (s *Orchestrator) GetComplianceCheck(ctx context.Context, workflowID string) (*workflow.ComplianceCheckState, error) {
	return s.store.GetComplianceCheck(ctx, workflowID)
}

// buildHistory reconstructs the grounding conversation for a run. The
// history is rebuilt deterministically from the state so a resumed run sees
// the same context a fresh one would.
func (s *Orchestrator) buildHistory(st *workflow.InvoiceCreationState, sc sharedctx.SharedContext) *conversation.History {
	history, err := conversation.NewHistoryWithLimits(s.cfg.HistoryMaxMessages, s.cfg.HistoryMaxTokens)
	if err != nil {
		history = conversation.NewHistory()
	}
	history.AddSystem(fmt.Sprintf(
		"You assist with Italian electronic invoicing. Default VAT rate %.1f%%.", sc.DefaultVATRate))
	history.AddUser(st.UserInput)
	if len(st.LineItems) > 0 {
		if data, err := json.Marshal(st.LineItems); err == nil {
			history.AddAssistant("Drafted line items: " + string(data))
		}
	}
	if len(st.TaxDetails) > 0 {
		if data, err := json.Marshal(st.TaxDetails); err == nil {
			history.AddAssistant("Tax details: " + string(data))
		}
	}
	return history
}

// extractionPayload is the JSON contract of the extraction agent's content.
type extractionPayload struct {
	ClientID  string              `json:"client_id"`
	LineItems []workflow.LineItem `json:"line_items"`
}

// applyExtraction parses the extraction content and fills the invoice fields.
func applyExtraction(st *workflow.InvoiceCreationState, result *agent.Result) error {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		return fmt.Errorf("unmarshal extraction content: %w", err)
	}
	if len(payload.LineItems) == 0 {
		return fmt.Errorf("extraction produced no line items")
	}

	if st.ClientID == "" {
		st.ClientID = payload.ClientID
	}
	st.LineItems = payload.LineItems

	var net, vat float64
	for _, li := range payload.LineItems {
		line := li.Quantity * li.UnitPrice
		net += line
		vat += line * li.VATRate / 100
	}
	st.NetAmount = net
	st.VATAmount = vat
	st.TotalAmount = net + vat
	return nil
}

// mergeDescription fills empty line descriptions from the description agent.
// A failed draft is a warning; the checkpoint gate decides what happens next.
func mergeDescription(st *workflow.InvoiceCreationState, result *agent.Result) {
	if result.Failed() {
		st.AddWarning(fmt.Sprintf("description agent failed: %s", result.Error))
		return
	}
	for i := range st.LineItems {
		if strings.TrimSpace(st.LineItems[i].Description) == "" {
			st.LineItems[i].Description = result.Content
		}
	}
}

// mergeTaxDetails folds the tax agent's JSON content into the tax details map.
func mergeTaxDetails(st *workflow.InvoiceCreationState, result *agent.Result) {
	if result.Failed() {
		st.AddWarning(fmt.Sprintf("tax suggestion agent failed: %s", result.Error))
		return
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(result.Content), &details); err != nil {
		st.AddWarning(fmt.Sprintf("tax suggestion unparseable: %v", err))
		return
	}
	if st.TaxDetails == nil {
		st.TaxDetails = map[string]any{}
	}
	for k, v := range details {
		st.TaxDetails[k] = v
	}
}

// hasDraft reports whether the drafting fan-out already ran for this state.
// Resumed runs skip straight to the gates instead of redrafting; a run whose
// tax agent failed drafts again, which amounts to a retry.
// keyTail limits how much conversation participates in the cache
// fingerprint, so the key stays stable when older messages are truncated.
func keyTail(history []conversation.Message, n int) []conversation.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func hasDraft(st *workflow.InvoiceCreationState) bool {
	return len(st.TaxDetails) > 0
}

// overridden reports whether a reviewer explicitly approved past the
// compliance gate.
func overridden(rv *review.HumanReview) bool {
	return rv != nil && rv.Approved()
}

// complianceWarning summarizes why the compliance gate is closed.
func complianceWarning(r *agent.Result) string {
	if r == nil {
		return "compliance result missing"
	}
	if r.Error != "" {
		return fmt.Sprintf("compliance analysis failed: %s", r.Error)
	}
	if !r.Success {
		return "compliance analysis reported non-compliance"
	}
	return fmt.Sprintf("compliance confidence %.2f below threshold %.2f", r.Confidence, workflow.ComplianceThreshold)
}

// publish emits a workflow lifecycle event, if a queue is wired.
func (s *Orchestrator) publish(ctx context.Context, subject string, st *workflow.InvoiceCreationState, checkpoint string) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.WorkflowEventPayload{
		WorkflowID:    st.WorkflowID,
		CorrelationID: st.CorrelationID,
		Status:        st.Status.String(),
		Checkpoint:    checkpoint,
	}
	if len(st.Errors) > 0 {
		payload.Error = st.Errors[len(st.Errors)-1]
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish workflow event failed", "subject", subject, "workflow_id", st.WorkflowID, "error", err)
	}
}

// broadcastStatus pushes the current status to connected UI clients.
func (s *Orchestrator) broadcastStatus(ctx context.Context, st *workflow.InvoiceCreationState) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, "workflow.status", map[string]string{
		"workflow_id": st.WorkflowID,
		"status":      st.Status.String(),
	})
}

// notify fans a notification out to all configured notifiers.
func (s *Orchestrator) notify(ctx context.Context, title, message, level, source string) {
	for _, n := range s.notifiers {
		if err := n.Send(ctx, notifier.Notification{
			Title:   title,
			Message: message,
			Level:   level,
			Source:  source,
		}); err != nil {
			slog.Warn("notifier failed", "notifier", n.Name(), "error", err)
		}
	}
}
