// Package sharedctx defines the read-only business snapshot passed to agents.
package sharedctx

// InvoiceSummary is a compact view of a recently issued invoice, used to
// ground agent suggestions in the caller's actual billing history.
type InvoiceSummary struct {
	Number      string  `json:"number"`
	ClientName  string  `json:"client_name"`
	TotalAmount float64 `json:"total_amount"`
	Description string  `json:"description,omitempty"`
}

// SharedContext is a snapshot of cross-cutting business facts handed to every
// agent invocation of one workflow run. It is constructed by the driver's
// caller and never mutated inside the engine; fan-out stages share a single
// snapshot by value.
type SharedContext struct {
	TotalInvoices   int              `json:"total_invoices"`
	TotalClients    int              `json:"total_clients"`
	RevenueYTD      float64          `json:"revenue_ytd"`
	RecentInvoices  []InvoiceSummary `json:"recent_invoices,omitempty"`
	RecentClients   []string         `json:"recent_clients,omitempty"`
	DefaultVATRate  float64          `json:"default_vat_rate"`
	DefaultPayTerms string           `json:"default_payment_terms,omitempty"`
}

// Clone returns a deep copy so callers can hand the engine a snapshot without
// sharing slice backing arrays.
func (c SharedContext) Clone() SharedContext {
	out := c
	if c.RecentInvoices != nil {
		out.RecentInvoices = make([]InvoiceSummary, len(c.RecentInvoices))
		copy(out.RecentInvoices, c.RecentInvoices)
	}
	if c.RecentClients != nil {
		out.RecentClients = make([]string, len(c.RecentClients))
		copy(out.RecentClients, c.RecentClients)
	}
	return out
}
