// Package topics organizes normalized concepts into cross-review topics and
// generates customer-facing topic descriptions.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/pkg/xmlutil"
)

// Grouper proposes topic assignments for a batch of normalized concepts.
// Every concept id in a proposal must come from the input batch; proposals
// referencing unknown ids are discarded at the service boundary.
type Grouper interface {
	GroupConcepts(ctx context.Context, concepts []models.Concept, existing []models.Topic) ([]models.TopicProposal, error)
}

// Describer generates a short prose description of a topic from its member
// concepts and excerpts of the reviews they came from.
type Describer interface {
	DescribeTopic(ctx context.Context, topic models.Topic, concepts []models.Concept, excerpts []string) (string, error)
}

const groupingPromptTemplate = `You are a review analysis system. Group the customer review concepts below into a small number of coherent topics.

Rules:
- A topic label is a short noun phrase (2-4 words) in sentence case.
- Reuse an existing topic label when the concepts clearly belong to it.
- Every concept id you reference must come from the list below.
- A concept belongs to at most one topic; leave a concept out if it fits nowhere.

<existing_topics>
%s</existing_topics>

<concepts>
%s</concepts>

Respond with a JSON array of objects: [{"label": "...", "concept_ids": ["..."]}]`

const describePromptTemplate = `You are a review analysis system. Write a short description (2-3 sentences) of the review topic below, summarizing what customers say about it. Write in neutral third person; do not address the reader.

<topic label="%s"/>

<concepts>
%s</concepts>

<review_excerpts>
%s</review_excerpts>

Respond with the description text only, no JSON, no preamble.`

// groupingResponse is the wrapped object shape some responses use instead of
// a bare array.
type groupingResponse struct {
	Topics []models.TopicProposal `json:"topics"`
}

// ClaudeGrouper uses Claude for topic grouping and description.
type ClaudeGrouper struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeGrouper creates a Claude-backed topic grouper and describer.
func NewClaudeGrouper(apiKey, model string, logger *slog.Logger) *ClaudeGrouper {
	if logger == nil {
		logger = slog.Default()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeGrouper{
		client: &client,
		model:  model,
		logger: logger,
	}
}

// GroupConcepts asks the language service to partition the batch into topics.
func (g *ClaudeGrouper) GroupConcepts(ctx context.Context, concepts []models.Concept, existing []models.Topic) ([]models.TopicProposal, error) {
	if len(concepts) == 0 {
		return nil, nil
	}

	var topicLines strings.Builder
	for _, t := range existing {
		fmt.Fprintf(&topicLines, "<topic label=\"%s\"/>\n", xmlutil.Escape(t.Label))
	}
	var conceptLines strings.Builder
	for _, c := range concepts {
		fmt.Fprintf(&conceptLines, "<concept id=\"%s\" aspect=\"%s\" entity=\"%s\" sentiment=\"%s\"/>\n",
			c.ID, xmlutil.Escape(c.Aspect), xmlutil.Escape(c.Entity), c.Sentiment)
	}

	prompt := fmt.Sprintf(groupingPromptTemplate, topicLines.String(), conceptLines.String())

	responseText, err := g.complete(ctx, prompt, "You are a precise review topic grouping system. Output only valid JSON.")
	if err != nil {
		return nil, err
	}
	g.logger.Debug("claude grouping response", "response", responseText)

	known := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		known[c.ID] = true
	}
	proposals, err := ParseProposals(responseText, known)
	if err != nil {
		return nil, err
	}

	g.logger.Info("grouped concepts", "concepts", len(concepts), "proposals", len(proposals))
	return proposals, nil
}

// DescribeTopic asks the language service for a short topic summary.
func (g *ClaudeGrouper) DescribeTopic(ctx context.Context, topic models.Topic, concepts []models.Concept, excerpts []string) (string, error) {
	var conceptLines strings.Builder
	for _, c := range concepts {
		fmt.Fprintf(&conceptLines, "<concept aspect=\"%s\" entity=\"%s\" sentiment=\"%s\"/>\n",
			xmlutil.Escape(c.Aspect), xmlutil.Escape(c.Entity), c.Sentiment)
	}
	var excerptLines strings.Builder
	for _, ex := range excerpts {
		fmt.Fprintf(&excerptLines, "<excerpt>%s</excerpt>\n", xmlutil.Escape(ex))
	}

	prompt := fmt.Sprintf(describePromptTemplate,
		xmlutil.Escape(topic.Label), conceptLines.String(), excerptLines.String())

	responseText, err := g.complete(ctx, prompt, "You summarize customer review topics in plain prose.")
	if err != nil {
		return "", err
	}

	description := strings.TrimSpace(responseText)
	if description == "" {
		return "", fmt.Errorf("empty description from Claude")
	}
	return description, nil
}

func (g *ClaudeGrouper) complete(ctx context.Context, prompt, system string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			return resp.Content[i].Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Claude")
}

// ParseProposals decodes the grouping response (bare array or wrapped object)
// and filters proposals down to known concept ids. Proposals left with no
// valid ids, and proposals with a blank label, are dropped. A concept id
// claimed by several proposals stays with the first.
func ParseProposals(responseText string, known map[string]bool) ([]models.TopicProposal, error) {
	var proposals []models.TopicProposal
	if err := json.Unmarshal([]byte(responseText), &proposals); err != nil {
		var wrapped groupingResponse
		if err2 := json.Unmarshal([]byte(responseText), &wrapped); err2 != nil {
			return nil, fmt.Errorf("parsing grouping response: %w (raw: %s)", err, responseText)
		}
		proposals = wrapped.Topics
	}

	claimed := make(map[string]bool)
	valid := make([]models.TopicProposal, 0, len(proposals))
	for _, p := range proposals {
		p.Label = strings.TrimSpace(p.Label)
		if p.Label == "" {
			continue
		}
		ids := make([]string, 0, len(p.ConceptIDs))
		for _, id := range p.ConceptIDs {
			if known[id] && !claimed[id] {
				claimed[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		p.ConceptIDs = ids
		valid = append(valid, p)
	}
	return valid, nil
}
