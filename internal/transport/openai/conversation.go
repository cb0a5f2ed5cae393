package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/metrics"
)

const maxParseAttempts = 2

const conversationPrompt = `You help organisations describe themselves so they can be matched with grant opportunities.
Read the user's message and answer with ONLY a JSON object of the form:

{
  "reply": "<one or two sentences acknowledging what you understood>",
  "extracted": {
    "categories": ["<organisation type, lowercase, e.g. nonprofit, school, tribal>"],
    "location": "<two-letter US state code or empty>",
    "funding_categories": ["<lowercase funding area, e.g. education, environment>"],
    "typical_budget": <typical project budget in USD or null>,
    "annual_budget": <annual operating budget in USD or null>,
    "summary": "<short mission summary or empty>"
  }
}

Only include facts stated or clearly implied by the message. Use empty values when unsure.
No preamble, no code fences, no trailing text.`

// Conversation extracts applicant attributes from free text with a chat model.
type Conversation struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewConversation creates an OpenAI-compatible conversation provider.
func NewConversation(cfg *Config) *Conversation {
	return &Conversation{
		client:   newClient(cfg),
		model:    cfg.Model,
		provider: providerName(cfg),
		logger:   loggerOrNop(cfg.Logger),
	}
}

type conversationPayload struct {
	Reply     string                     `json:"reply"`
	Extracted domain.ExtractedAttributes `json:"extracted"`
}

// Converse implements domain.Conversation. Malformed model output is retried once.
func (c *Conversation) Converse(ctx context.Context, text string) (domain.ConversationReply, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: conversationPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		hint := &retryHint{}
		resp, err := c.client.CreateChatCompletion(withRetryHint(ctx, hint), req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.ConversationReply{}, ctxErr
			}
			c.count("error")
			return domain.ConversationReply{}, mapConversationError(err, hint.get())
		}
		if len(resp.Choices) == 0 {
			c.count("error")
			return domain.ConversationReply{}, fmt.Errorf("empty completion: %w", domain.ErrConversationUnavailable)
		}

		payload, err := parseConversation(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			c.logger.Warn("malformed conversation response",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		c.count("success")
		return domain.ConversationReply{Reply: payload.Reply, Extracted: payload.Extracted}, nil
	}

	c.count("malformed")
	return domain.ConversationReply{}, fmt.Errorf("%w: %w", domain.ErrConversationUnavailable, lastErr)
}

func (c *Conversation) count(status string) {
	metrics.ConversationRequestsTotal.WithLabelValues(c.provider, c.model, status).Inc()
}

// parseConversation tolerates markdown code fences around the JSON object.
func parseConversation(content string) (conversationPayload, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var p conversationPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return conversationPayload{}, fmt.Errorf("decode conversation response: %w", err)
	}
	return p, nil
}

func mapConversationError(err error, retryAfter time.Duration) error {
	status := 0
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return domain.NewRateLimited("conversation", retryAfter)
	}
	return fmt.Errorf("%w: %w", domain.ErrConversationUnavailable, err)
}
