// Package matcher locates a specific review inside a live, frequently-changing
// rendering of a platform's review list. Platforms expose no stable native
// identifier to the automation layer, so matching scores several independently
// optional signals and must survive partial UI data without false positives.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/platform"
)

// Signal weights. Content is the strongest signal; name is next; rating, date
// and menu text are weak corroboration.
const (
	weightName    = 2
	weightContent = 3
	weightRating  = 1
	weightDate    = 1
	weightItems   = 1
)

// Config tunes acceptance. Zero values take the deployment defaults.
type Config struct {
	// MinScore is the acceptance threshold for the weighted signal sum.
	MinScore int
	// ShortContentThreshold: targets whose normalized content is longer than
	// this must match on the content signal itself, whatever the other
	// signals sum to. Prevents false positives from generic short reviews.
	ShortContentThreshold int
	// MaxScanPasses bounds how many rendered candidate sets are examined,
	// scrolling between passes.
	MaxScanPasses int
}

func (c Config) withDefaults() Config {
	if c.MinScore <= 0 {
		c.MinScore = 3
	}
	if c.ShortContentThreshold <= 0 {
		c.ShortContentThreshold = 10
	}
	if c.MaxScanPasses <= 0 {
		c.MaxScanPasses = 3
	}
	return c
}

// Provider yields the currently rendered candidates (one pass) and triggers
// further rendering between passes. platform.Adapter satisfies it.
type Provider interface {
	RenderCandidates(ctx context.Context) ([]platform.Candidate, error)
	ScrollNext(ctx context.Context) error
}

// Result is the outcome of one matching call, owned by the caller.
type Result struct {
	Found     bool
	Candidate platform.Candidate
	Score     int
	Reasons   []string
	Passes    int
}

// Matcher finds the single best on-screen match for a target review.
type Matcher struct {
	cfg Config
	now func() time.Time
}

// New creates a matcher with the given config.
func New(cfg Config) *Matcher {
	return &Matcher{cfg: cfg.withDefaults(), now: time.Now}
}

// Match scans rendered candidates for the target review, scrolling between
// passes, and returns the first candidate in scan order that clears the
// acceptance rules. Deterministic for a fixed candidate sequence.
func (m *Matcher) Match(ctx context.Context, target *models.ReviewRecord, p Provider) (Result, error) {
	relDate := RelativeDate(target.ReviewDate, m.now())

	var res Result
	for pass := 0; pass < m.cfg.MaxScanPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Passes = pass + 1

		candidates, err := p.RenderCandidates(ctx)
		if err != nil {
			return res, fmt.Errorf("render candidates (pass %d): %w", pass+1, err)
		}

		for _, c := range candidates {
			score, reasons, contentMatched := m.scoreCandidate(target, relDate, c)
			if score < m.cfg.MinScore {
				continue
			}
			// Long-content guard: a substantive review must match on its own
			// text, not on circumstantial signals.
			if m.longContent(target) && !contentMatched {
				continue
			}
			res.Found = true
			res.Candidate = c
			res.Score = score
			res.Reasons = reasons
			return res, nil
		}

		if pass < m.cfg.MaxScanPasses-1 {
			if err := p.ScrollNext(ctx); err != nil {
				return res, fmt.Errorf("scroll for next pass: %w", err)
			}
		}
	}
	return res, nil
}

func (m *Matcher) longContent(target *models.ReviewRecord) bool {
	return len([]rune(normalize(target.Content))) > m.cfg.ShortContentThreshold
}

// scoreCandidate computes the weighted signal score of one candidate.
func (m *Matcher) scoreCandidate(target *models.ReviewRecord, relDate string, c platform.Candidate) (int, []string, bool) {
	score := 0
	var reasons []string
	contentMatched := false

	nameField := c.Name
	if nameField == "" {
		nameField = c.Text
	}
	if target.ReviewerName != "" && strings.Contains(nameField, target.ReviewerName) {
		score += weightName
		reasons = append(reasons, "name")
	}

	if target.Content != "" {
		field := c.Content
		if field == "" {
			field = c.Text
		}
		if contentMatches(target.Content, field) {
			score += weightContent
			contentMatched = true
			reasons = append(reasons, "content")
		}
	}

	if target.HasRating() && candidateRatingMatches(target.Rating, c) {
		score += weightRating
		reasons = append(reasons, "rating")
	}

	if relDate != "" && strings.Contains(candidateDateField(c), relDate) {
		score += weightDate
		reasons = append(reasons, "date")
	}

	if itemsMatch(target.OrderedItems, c) {
		score += weightItems
		reasons = append(reasons, "items")
	}

	return score, reasons, contentMatched
}

func candidateRatingMatches(rating int, c platform.Candidate) bool {
	if c.Rating > 0 {
		return c.Rating == rating
	}
	// Rating not parsed out; look for the rendered star-count text.
	for _, pattern := range []string{
		fmt.Sprintf("%d stars", rating),
		fmt.Sprintf("rating %d", rating),
		fmt.Sprintf("★%d", rating),
	} {
		if strings.Contains(strings.ToLower(c.Text), pattern) {
			return true
		}
	}
	return false
}

func candidateDateField(c platform.Candidate) string {
	if c.RelativeDate != "" {
		return c.RelativeDate
	}
	return c.Text
}

func itemsMatch(items []string, c platform.Candidate) bool {
	field := c.MenuText
	if field == "" {
		field = c.Text
	}
	for _, item := range items {
		if item != "" && strings.Contains(field, item) {
			return true
		}
	}
	return false
}

// contentMatches reports whether the candidate content matches the target
// content. Whole containment of the normalized target is the strong rule;
// platforms also lightly rewrite displayed text (truncation, inserted words),
// so a majority overlap of the target's significant tokens also counts.
func contentMatches(target, candidate string) bool {
	needle := normalize(target)
	if needle == "" {
		return false
	}
	if strings.Contains(normalize(candidate), needle) {
		return true
	}

	tokens := significantTokens(target)
	if len(tokens) == 0 {
		return false
	}
	haystack := strings.ToLower(candidate)
	hit := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			hit++
		}
	}
	return float64(hit)/float64(len(tokens)) >= 0.6
}

// significantTokens returns the lowercased multi-rune words of s.
func significantTokens(s string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(f)) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// normalize collapses all whitespace out of s and case-folds it so truncated
// or re-wrapped UI text still matches the stored content.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RelativeDate converts an absolute review date to the vocabulary platforms
// display: "today", "yesterday", "this week", "last week", "N days ago",
// "N months ago". Weeks start on Monday.
func RelativeDate(reviewDate, now time.Time) string {
	if reviewDate.IsZero() {
		return ""
	}
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	today := day(now)
	target := day(reviewDate)
	days := int(today.Sub(target).Hours() / 24)
	if days < 0 {
		return ""
	}

	weekday := int(today.Weekday()+6) % 7 // Monday = 0
	thisWeekStart := today.AddDate(0, 0, -weekday)
	lastWeekStart := thisWeekStart.AddDate(0, 0, -7)

	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	case !target.Before(thisWeekStart):
		return "this week"
	case !target.Before(lastWeekStart):
		return "last week"
	case days >= 30:
		if months := days / 30; months > 1 {
			return fmt.Sprintf("%d months ago", months)
		}
		return "1 month ago"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
