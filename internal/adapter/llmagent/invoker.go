// Package llmagent implements the agent capability port on top of an
// OpenAI-compatible LLM proxy. Each invoker owns one agent type and renders
// the shared business snapshot plus the relevant conversation slice into a
// chat completion call.
package llmagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatturaflow/fatturaflow/internal/adapter/litellm"
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
)

// instructions holds the system preamble per agent type. The reply contract
// is shared: a JSON object with "content" and "confidence".
var instructions = map[agent.Type]string{
	agent.TypeExtraction: "Extract invoice fields (client, line items with quantity, " +
		"unit price and VAT rate) from the user's request.",
	agent.TypeDescription: "Draft a concise professional line-item description in the " +
		"language of the user's request.",
	agent.TypeTaxSuggestion: "Suggest the VAT treatment (rate, nature code, reverse " +
		"charge) for the drafted invoice under Italian rules.",
	agent.TypeCompliance: "Assess whether the drafted invoice satisfies FatturaPA " +
		"formal requirements and is ready for SDI transmission.",
}

const replyContract = ` Reply with a single JSON object: {"content": "...", "confidence": 0.0-1.0}.`

// Invoker calls the LLM proxy for one agent type.
type Invoker struct {
	agentType agent.Type
	llm       *litellm.Client
	model     string
}

// New creates an invoker for the given agent type.
func New(agentType agent.Type, llm *litellm.Client, model string) (*Invoker, error) {
	if _, ok := instructions[agentType]; !ok {
		return nil, fmt.Errorf("llmagent: unsupported agent type %q", agentType)
	}
	return &Invoker{agentType: agentType, llm: llm, model: model}, nil
}

// AgentType returns the capability this invoker implements.
func (i *Invoker) AgentType() agent.Type {
	return i.agentType
}

// Invoke runs the chat completion. Transport faults and malformed replies
// become failed results, never Go errors, so gating logic always has a
// well-formed value to evaluate.
func (i *Invoker) Invoke(ctx context.Context, sc sharedctx.SharedContext, history []conversation.Message) (*agent.Result, error) {
	messages := make([]litellm.ChatMessage, 0, len(history)+2)
	messages = append(messages, litellm.ChatMessage{
		Role:    "system",
		Content: instructions[i.agentType] + replyContract,
	})
	messages = append(messages, litellm.ChatMessage{
		Role:    "system",
		Content: renderContext(sc),
	})
	for _, m := range history {
		messages = append(messages, litellm.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	resp, err := i.llm.ChatCompletion(ctx, litellm.ChatCompletionRequest{
		Model:       i.model,
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Warn("agent invocation failed",
			"agent_type", i.agentType,
			"error", err,
		)
		return agent.Failure(i.agentType, err), nil
	}

	result, err := parseReply(i.agentType, resp.Content)
	if err != nil {
		slog.Warn("agent reply unparseable",
			"agent_type", i.agentType,
			"error", err,
		)
		return agent.Failure(i.agentType, err), nil
	}
	return result.WithMetadata("model", resp.Model), nil
}

// renderContext flattens the business snapshot into a grounding message.
func renderContext(sc sharedctx.SharedContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business context: %d invoices issued to %d clients, %.2f EUR revenue YTD. ",
		sc.TotalInvoices, sc.TotalClients, sc.RevenueYTD)
	fmt.Fprintf(&b, "Default VAT rate %.1f%%.", sc.DefaultVATRate)
	if sc.DefaultPayTerms != "" {
		fmt.Fprintf(&b, " Default payment terms: %s.", sc.DefaultPayTerms)
	}
	for _, inv := range sc.RecentInvoices {
		fmt.Fprintf(&b, "\nRecent invoice %s to %s for %.2f EUR.", inv.Number, inv.ClientName, inv.TotalAmount)
	}
	return b.String()
}

// parseReply extracts the {content, confidence} object from the model output.
// An out-of-range confidence is malformed output, not something to clamp.
func parseReply(t agent.Type, content string) (*agent.Result, error) {
	var reply struct {
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &reply); err != nil {
		return nil, fmt.Errorf("unmarshal agent reply: %w", err)
	}
	return agent.NewResult(t, true, reply.Content, reply.Confidence)
}

// extractJSON returns the first top-level JSON object in s, tolerating
// markdown fences and prose around it.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
