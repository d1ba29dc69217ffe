// Package extract turns free-text review comments into structured concept
// drafts by calling an external language-generation service.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/pkg/xmlutil"
)

// Extractor produces concept drafts from one review's text. A review with no
// extractable concepts yields an empty slice, not an error; service failures
// are returned as errors so the caller can retry the review later.
type Extractor interface {
	Extract(ctx context.Context, review models.Review, biz models.BusinessContext) ([]models.ConceptDraft, error)
}

// extractionPromptTemplate is the base prompt; review content is injected via
// XML tags to prevent prompt injection from review text.
const extractionPromptTemplate = `You are a review analysis system for a business. Extract the discrete concepts a customer expresses in the review below.

For each concept provide:
- aspect: The subject being evaluated (e.g., "service speed", "cleanliness")
- entity: The concrete noun referenced (e.g., "coffee", "wifi", "staff")
- sentiment: One of "positive", "neutral", "negative", "mixed"
- relevance: 0.0-1.0 how central this concept is to the review
- implied_rating: 1-5, the star rating this concept alone would imply

Only extract concepts actually present in the review text; never invent
aspects or entities the customer did not mention. If the review contains no
extractable concepts, return an empty array [].

<business name="%s" category="%s"/>

<review rating="%d">%s</review>

Extract concepts as JSON array:`

// extractionResponse is the wrapped object shape some responses use instead
// of a bare array.
type extractionResponse struct {
	Concepts []models.ConceptDraft `json:"concepts"`
}

// ClaudeExtractor uses Claude to extract concepts from review text.
type ClaudeExtractor struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeExtractor creates a new Claude-based concept extractor.
func NewClaudeExtractor(apiKey, model string, logger *slog.Logger) *ClaudeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeExtractor{
		client: &client,
		model:  model,
		logger: logger,
	}
}

// Extract calls the language service and returns validated concept drafts.
func (e *ClaudeExtractor) Extract(ctx context.Context, review models.Review, biz models.BusinessContext) ([]models.ConceptDraft, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate,
		xmlutil.Escape(biz.Name), xmlutil.Escape(biz.Category),
		review.Rating, xmlutil.Escape(review.Comment))

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise review concept extraction system. Output only valid JSON."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = resp.Content[i].Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("empty response from Claude")
	}

	e.logger.Debug("claude extraction response", "review_id", review.ID, "response", responseText)

	drafts, err := ParseDrafts(responseText)
	if err != nil {
		return nil, err
	}

	e.logger.Info("extracted concepts", "review_id", review.ID, "count", len(drafts))
	return drafts, nil
}

// ParseDrafts decodes the service response (bare array or wrapped object)
// and validates every draft, dropping malformed entries rather than letting
// loosely-typed payloads cross the stage boundary.
func ParseDrafts(responseText string) ([]models.ConceptDraft, error) {
	var drafts []models.ConceptDraft
	if err := json.Unmarshal([]byte(responseText), &drafts); err != nil {
		var wrapped extractionResponse
		if err2 := json.Unmarshal([]byte(responseText), &wrapped); err2 != nil {
			return nil, fmt.Errorf("parsing extraction response: %w (raw: %s)", err, responseText)
		}
		drafts = wrapped.Concepts
	}

	valid := make([]models.ConceptDraft, 0, len(drafts))
	for _, d := range drafts {
		d, ok := sanitizeDraft(d)
		if !ok {
			continue
		}
		valid = append(valid, d)
	}
	return valid, nil
}

// sanitizeDraft normalizes one draft's fields and reports whether it is
// usable. Drafts missing both labels are dropped.
func sanitizeDraft(d models.ConceptDraft) (models.ConceptDraft, bool) {
	if d.Aspect == "" && d.Entity == "" {
		return d, false
	}
	if !d.Sentiment.IsValid() {
		d.Sentiment = models.SentimentNeutral
	}
	if d.Relevance < 0 {
		d.Relevance = 0
	}
	if d.Relevance > 1 {
		d.Relevance = 1
	}
	if d.ImpliedRating < 1 {
		d.ImpliedRating = 1
	}
	if d.ImpliedRating > 5 {
		d.ImpliedRating = 5
	}
	return d, true
}
