package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replypilot/replypilot/internal/models"
)

func TestBuildPrompt_IncludesPolicyRules(t *testing.T) {
	review := &models.ReviewRecord{
		ReviewerName: "Kim",
		Rating:       5,
		Content:      "Great chicken, fast delivery",
		OrderedItems: []string{"Fried Chicken", "Cola"},
	}
	policy := &models.StorePolicy{
		Role:            "head chef",
		Tone:            "cheerful",
		GreetingStart:   "Hello",
		GreetingEnd:     "See you soon",
		RequiredPhrases: []string{"thank"},
		BannedWords:     []string{"refund", "lawsuit"},
		MaxReplyLength:  300,
	}

	system, user := buildPrompt(review, policy)

	assert.Contains(t, system, "head chef")
	assert.Contains(t, system, "cheerful")
	assert.Contains(t, system, `Open with "Hello"`)
	assert.Contains(t, system, `Close with "See you soon"`)
	assert.Contains(t, system, `Include the word "thank"`)
	assert.Contains(t, system, "refund, lawsuit")
	assert.Contains(t, system, "under 300 characters")

	assert.Contains(t, user, "Customer: Kim")
	assert.Contains(t, user, "Rating: 5/5")
	assert.Contains(t, user, "Ordered: Fried Chicken, Cola")
	assert.Contains(t, user, "Review: Great chicken, fast delivery")
}

func TestBuildPrompt_Defaults(t *testing.T) {
	review := &models.ReviewRecord{ReviewerName: "Lee", Rating: 4, Content: "good"}
	system, _ := buildPrompt(review, &models.StorePolicy{})

	assert.Contains(t, system, "friendly store owner")
	assert.Contains(t, system, "warm and professional")
	assert.Contains(t, system, "under 450 characters")
	assert.NotContains(t, system, "Open with")
	assert.NotContains(t, system, "Never use these words")
}

func TestBuildPrompt_OmitsAbsentReviewFields(t *testing.T) {
	review := &models.ReviewRecord{ReviewerName: "Park"}
	_, user := buildPrompt(review, &models.StorePolicy{})

	assert.Contains(t, user, "Customer: Park")
	assert.NotContains(t, user, "Rating:")
	assert.NotContains(t, user, "Ordered:")
	assert.NotContains(t, user, "Review:")
	assert.NotContains(t, user, "Delivery feedback:")
}

func TestBuildPrompt_DeliveryFeedback(t *testing.T) {
	review := &models.ReviewRecord{
		ReviewerName:     "Choi",
		Rating:           3,
		DeliveryFeedback: "arrived 20 minutes late",
	}
	_, user := buildPrompt(review, &models.StorePolicy{})

	assert.Contains(t, user, "Delivery feedback: arrived 20 minutes late")
}

func TestRatingGuidance(t *testing.T) {
	assert.True(t, strings.Contains(ratingGuidance(0), "gratitude"))
	assert.True(t, strings.Contains(ratingGuidance(5), "gratitude"))
	assert.True(t, strings.Contains(ratingGuidance(4), "even better service"))
	assert.True(t, strings.Contains(ratingGuidance(3), "improvement"))
	assert.True(t, strings.Contains(ratingGuidance(2), "Apologize"))
	assert.True(t, strings.Contains(ratingGuidance(1), "Apologize"))
}

func TestNewClient(t *testing.T) {
	c := NewClient("sk-test", "claude-haiku-4-5-20251001")

	assert.NotNil(t, c.api)
	assert.Equal(t, "claude-haiku-4-5-20251001", string(c.model))
}
