// Package gate validates proposed replies against store policy before they
// may reach a platform. Quality is a graded score for logging and tuning;
// acceptance is a threshold decision with hard-fail short circuits.
package gate

import (
	"strings"

	"github.com/replypilot/replypilot/internal/models"
)

// Deterministic penalties applied against a base score of 1.0.
const (
	penaltyTooShort      = 0.3
	penaltyTooLong       = 0.2
	penaltyMissingPhrase = 0.1
	penaltyNoApology     = 0.2
	penaltyGenericReply  = 0.2
)

// Result is the outcome of one gate evaluation.
type Result struct {
	Accepted bool
	Score    float64
	Reasons  []string // rejection reasons; empty when accepted cleanly
}

// Gate evaluates reply drafts. The zero value is not usable; call New.
type Gate struct {
	apologyPhrases []string
	globalBanned   []string
	templates      []string // known low-effort generic replies
	lowRatingMax   int      // ratings at or below this require an apology
	lengthSlack    int      // tolerance above policy.MaxReplyLength
	longReviewLen  int      // reviews longer than this deserve a non-generic reply
}

// Option adjusts gate construction.
type Option func(*Gate)

// WithApologyPhrases replaces the apology-class phrase set.
func WithApologyPhrases(phrases ...string) Option {
	return func(g *Gate) { g.apologyPhrases = phrases }
}

// WithGlobalBannedWords replaces the platform-wide banned word set.
func WithGlobalBannedWords(words ...string) Option {
	return func(g *Gate) { g.globalBanned = words }
}

// WithGenericTemplates replaces the known generic-template set.
func WithGenericTemplates(templates ...string) Option {
	return func(g *Gate) { g.templates = templates }
}

// New creates a gate with the deployment defaults.
func New(opts ...Option) *Gate {
	g := &Gate{
		apologyPhrases: []string{"sorry", "apolog", "regret"},
		globalBanned:   []string{"worst", "terrible", "disgusting", "garbage"},
		templates: []string{
			"thank you for your review",
			"thanks for your feedback",
			"thank you for visiting",
		},
		lowRatingMax:  2,
		lengthSlack:   0,
		longReviewLen: 50,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate scores text against the review's context and store policy.
// A hard fail is never accepted regardless of score.
func (g *Gate) Evaluate(text string, review *models.ReviewRecord, policy *models.StorePolicy) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Score: 0, Reasons: []string{"empty reply"}}
	}

	score := 1.0
	hardFail := false
	var reasons []string

	lower := strings.ToLower(trimmed)
	length := len([]rune(trimmed))

	// Length bounds. Under-length forces regeneration rather than merely
	// lowering the score.
	minLen := policy.MinReplyLength
	if minLen <= 0 {
		minLen = 20
	}
	if length < minLen {
		score -= penaltyTooShort
		hardFail = true
		reasons = append(reasons, "reply too short")
	} else if policy.MaxReplyLength > 0 && length > policy.MaxReplyLength+g.lengthSlack {
		score -= penaltyTooLong
		reasons = append(reasons, "reply too long")
	}

	for _, phrase := range policy.RequiredPhrases {
		if phrase != "" && !strings.Contains(lower, strings.ToLower(phrase)) {
			score -= penaltyMissingPhrase
			reasons = append(reasons, "missing required phrase: "+phrase)
		}
	}

	// Low ratings are never answered without an apology.
	if review.HasRating() && review.Rating <= g.lowRatingMax && !containsAny(lower, g.apologyPhrases) {
		score -= penaltyNoApology
		hardFail = true
		reasons = append(reasons, "low rating without apology")
	}

	for _, word := range append(append([]string{}, g.globalBanned...), policy.BannedWords...) {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			reasons = append(reasons, "banned word: "+word)
			return Result{Score: 0, Reasons: reasons}
		}
	}

	if g.isGenericReply(lower) && len([]rune(review.Content)) > g.longReviewLen {
		score -= penaltyGenericReply
		reasons = append(reasons, "generic reply to detailed review")
	}

	if score < 0 {
		score = 0
	}

	threshold := policy.AcceptanceThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	accepted := score >= threshold && !hardFail
	if accepted {
		reasons = nil
	}
	return Result{Accepted: accepted, Score: score, Reasons: reasons}
}

// isGenericReply reports whether the reply is essentially one of the known
// low-effort templates with nothing substantive added.
func (g *Gate) isGenericReply(lower string) bool {
	for _, tmpl := range g.templates {
		if strings.HasPrefix(lower, tmpl) && len(lower) <= len(tmpl)+20 {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
