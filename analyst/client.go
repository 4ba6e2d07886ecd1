package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel      = "claude-sonnet-4-5"
	maxContextRecords = 10
	maxListedSkus     = 20
	answerMaxTokens   = 2048
)

// Response is the analyst answer plus follow-up prompts for the chat UI.
type Response struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

// Client answers procurement questions with an LLM, grounded in the
// caller's current batch and historical summary.
type Client struct {
	api   *anthropic.Client
	model string
}

// NewClient configures the analyst from the environment. The feature is
// optional: without an API key the caller runs without it.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not set")
	}
	model := os.Getenv("ANALYST_MODEL")
	if model == "" {
		model = defaultModel
	}
	api := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{api: &api, model: model}, nil
}

// Query sends one question with the batch context inlined. An LLM
// failure is reported inside the answer body so the chat stays usable.
func (c *Client) Query(ctx context.Context, query string, records []*models.QuotationRecord, summary map[string]any) Response {
	prompt := buildPrompt(query, records, summary)
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: answerMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{
			Response:    "I encountered an error processing your question: " + err.Error(),
			Suggestions: []string{"Try rephrasing your question", "Check the analyst configuration"},
			Confidence:  0,
		}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Response{
		Response:    text.String(),
		Suggestions: suggestionsFor(query),
		Confidence:  0.85,
	}
}

// buildPrompt inlines a sample of the batch and the historical summary
// ahead of the question. Large batches are truncated to a sample plus
// the SKU list so the prompt stays bounded.
func buildPrompt(query string, records []*models.QuotationRecord, summary map[string]any) string {
	var b strings.Builder
	b.WriteString("You are a procurement analyst assistant. " +
		"You help analyze procurement data, compare pricing, identify trends, " +
		"and provide actionable recommendations for procurement decisions.")

	if len(records) > 0 {
		fmt.Fprintf(&b, "\n\nCurrent Records (%d items):\n", len(records))
		sample := records
		if len(sample) > maxContextRecords {
			sample = sample[:maxContextRecords]
		}
		if raw, err := json.MarshalIndent(sample, "", "  "); err == nil {
			b.Write(raw)
		}
		if rest := len(records) - maxContextRecords; rest > 0 {
			fmt.Fprintf(&b, "\n... and %d more records. All SKUs: %s",
				rest, strings.Join(batchSkus(records), ", "))
		}
	}

	if len(summary) > 0 {
		b.WriteString("\n\nHistorical Summary:\n")
		if raw, err := json.MarshalIndent(summary, "", "  "); err == nil {
			b.Write(raw)
		}
	}

	b.WriteString("\n\nUser Question: ")
	b.WriteString(query)
	return b.String()
}

// batchSkus lists the distinct SKUs in batch order, capped.
func batchSkus(records []*models.QuotationRecord) []string {
	seen := map[string]bool{}
	skus := []string{}
	for _, r := range records {
		if r == nil || r.Sku == nil {
			continue
		}
		sku := strings.TrimSpace(*r.Sku)
		if sku == "" || seen[sku] {
			continue
		}
		seen[sku] = true
		skus = append(skus, sku)
		if len(skus) == maxListedSkus {
			break
		}
	}
	return skus
}

// suggestionsFor offers follow-up questions keyed off the topic of the
// one just asked.
func suggestionsFor(query string) []string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "price", "cost", "expensive", "cheap"):
		return []string{
			"Which SKUs have the highest price variance?",
			"Compare prices across distributors",
			"What's the overall price trend over the past year?",
		}
	case containsAny(q, "trend", "history", "historical"):
		return []string{
			"Are there any seasonal pricing patterns?",
			"Which items have increased in price the most?",
			"Show price stability analysis",
		}
	case containsAny(q, "valid", "error", "warning", "issue"):
		return []string{
			"What are the most common validation errors?",
			"Which records need immediate attention?",
			"Summarize data quality issues",
		}
	default:
		return []string{
			"Is this quotation competitive compared to history?",
			"Which items should I negotiate on?",
			"Summarize pricing trends for top SKUs",
			"What's the total spend impact?",
		}
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
