package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/replypilot/replypilot/internal/models"
)

// Draft is one generated reply candidate plus token usage.
type Draft struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces reply drafts for reviews. Treated as an unreliable
// remote call; the engine wraps it in retry.
type Generator interface {
	GenerateReply(ctx context.Context, review *models.ReviewRecord, policy *models.StorePolicy) (*Draft, error)
}

// Client wraps the Anthropic API for reply generation.
type Client struct {
	api         *anthropic.Client
	model       anthropic.Model
	temperature float64
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:         &client,
		model:       anthropic.Model(model),
		temperature: 0.7,
	}
}

// buildPrompt constructs the system and user prompts for reply generation.
func buildPrompt(review *models.ReviewRecord, policy *models.StorePolicy) (system string, user string) {
	role := policy.Role
	if role == "" {
		role = "friendly store owner"
	}
	tone := policy.Tone
	if tone == "" {
		tone = "warm and professional"
	}

	var sys strings.Builder
	sys.WriteString("You are a " + role + " replying to a customer review on a delivery platform. Write the reply text only, no preamble or quotes.\n\nRules:\n")
	sys.WriteString("- Write in a " + tone + " tone\n")
	sys.WriteString("- Address the customer by name and reference specifics from their review\n")
	if policy.GreetingStart != "" {
		sys.WriteString("- Open with \"" + policy.GreetingStart + "\"\n")
	}
	if policy.GreetingEnd != "" {
		sys.WriteString("- Close with \"" + policy.GreetingEnd + "\"\n")
	}
	for _, phrase := range policy.RequiredPhrases {
		if phrase != "" {
			sys.WriteString("- Include the word \"" + phrase + "\"\n")
		}
	}
	if len(policy.BannedWords) > 0 {
		sys.WriteString("- Never use these words: " + strings.Join(policy.BannedWords, ", ") + "\n")
	}
	maxLen := policy.MaxReplyLength
	if maxLen <= 0 {
		maxLen = 450
	}
	sys.WriteString("- Keep the reply under " + strconv.Itoa(maxLen) + " characters\n")
	sys.WriteString("- No emoji\n")
	sys.WriteString(ratingGuidance(review.Rating))
	system = sys.String()

	var sb strings.Builder
	sb.WriteString("Write a reply to this review:\n\n")
	sb.WriteString("Customer: " + review.ReviewerName + "\n")
	if review.HasRating() {
		sb.WriteString(fmt.Sprintf("Rating: %d/5\n", review.Rating))
	}
	if len(review.OrderedItems) > 0 {
		sb.WriteString("Ordered: " + strings.Join(review.OrderedItems, ", ") + "\n")
	}
	if review.Content != "" {
		sb.WriteString("Review: " + review.Content + "\n")
	}
	if review.DeliveryFeedback != "" {
		sb.WriteString("Delivery feedback: " + review.DeliveryFeedback + "\n")
	}
	user = sb.String()
	return
}

// ratingGuidance returns the per-rating-band instruction appended to the
// system prompt.
func ratingGuidance(rating int) string {
	switch {
	case rating == 0 || rating == 5:
		return "- Express sincere gratitude and invite the customer back\n"
	case rating == 4:
		return "- Thank the customer and promise even better service\n"
	case rating == 3:
		return "- Thank the customer, acknowledge the shortfall and promise improvement\n"
	default:
		return "- Apologize sincerely for the disappointment and offer a concrete remediation\n"
	}
}

// GenerateReply asks the model for one reply draft honoring the store policy.
func (c *Client) GenerateReply(ctx context.Context, review *models.ReviewRecord, policy *models.StorePolicy) (*Draft, error) {
	systemPrompt, userPrompt := buildPrompt(review, policy)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   1024,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	text = strings.TrimSpace(text)
	// Strip quoting if the model wrapped the reply anyway
	text = strings.Trim(text, "\"")

	return &Draft{
		Text:         text,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
