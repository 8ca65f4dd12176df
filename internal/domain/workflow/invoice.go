package workflow

import (
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/review"
)

// ComplianceThreshold is the minimum confidence a successful compliance
// result needs for the automated verdict to be trusted. The boundary is
// inclusive: a confidence of exactly 0.80 passes. Fixed by design, not
// configurable per call.
const ComplianceThreshold = 0.8

// LineItem is one pending invoice line produced by the extraction stage.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	VATRate     float64 `json:"vat_rate"`
}

// InvoiceCreationState tracks one invoice-creation run from natural-language
// input through agent drafting, approval checkpoints and compliance gating.
type InvoiceCreationState struct {
	BaseState

	UserInput   string  `json:"user_input"`
	ClientID    string  `json:"client_id,omitempty"`
	NetAmount   float64 `json:"net_amount"`
	VATAmount   float64 `json:"vat_amount"`
	TotalAmount float64 `json:"total_amount"`

	LineItems  []LineItem     `json:"line_items"`
	TaxDetails map[string]any `json:"tax_details"`

	RequireDescriptionApproval bool `json:"require_description_approval"`
	RequireTaxApproval         bool `json:"require_tax_approval"`

	DescriptionReview *review.HumanReview `json:"description_review,omitempty"`
	TaxReview         *review.HumanReview `json:"tax_review,omitempty"`
	ComplianceResult  *agent.Result       `json:"compliance_result,omitempty"`
	ComplianceReview  *review.HumanReview `json:"compliance_review,omitempty"`
}

// NewInvoiceCreationState creates a pending invoice workflow for the given input.
func NewInvoiceCreationState(correlationID, userInput string) *InvoiceCreationState {
	return &InvoiceCreationState{
		BaseState:  NewBaseState(correlationID, StatusPending),
		UserInput:  userInput,
		LineItems:  []LineItem{},
		TaxDetails: map[string]any{},
	}
}

// IsDescriptionApproved reports whether the description checkpoint gate is
// open. The required flag is evaluated first: when approval is not required
// the gate is open regardless of any stored review, even a rejection.
func (s *InvoiceCreationState) IsDescriptionApproved() bool {
	if !s.RequireDescriptionApproval {
		return true
	}
	return s.DescriptionReview != nil && s.DescriptionReview.Approved()
}

// IsTaxApproved reports whether the tax checkpoint gate is open.
func (s *InvoiceCreationState) IsTaxApproved() bool {
	if !s.RequireTaxApproval {
		return true
	}
	return s.TaxReview != nil && s.TaxReview.Approved()
}

// IsCompliant reports whether the stored compliance result clears the
// automated gate. Always recomputed from the current field values so a
// replaced result takes effect without an invalidation step.
func (s *InvoiceCreationState) IsCompliant() bool {
	r := s.ComplianceResult
	return r != nil && r.Success && r.Confidence >= ComplianceThreshold
}
