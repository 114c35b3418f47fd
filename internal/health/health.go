package health

import (
	"time"

	"github.com/replypilot/replypilot/internal/models"
)

// StoreMetadata holds live pipeline metadata used for health scoring.
type StoreMetadata struct {
	Counts       map[models.ReplyStatus]int
	LastPostedAt time.Time
}

// Score represents the computed reply-pipeline health of a store.
type Score struct {
	Total          int
	Backlog        int // 0-30
	FailureRate    int // 0-25
	EscalationLoad int // 0-25
	PostRecency    int // 0-20
}

// Scorer computes pipeline health scores for stores.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a new health Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Compute computes a health score (0-100) for a store's reply pipeline.
func (s *Scorer) Compute(meta *StoreMetadata) *Score {
	h := &Score{}
	total := 0
	for _, n := range meta.Counts {
		total += n
	}

	// Backlog (30 pts) - fewer unanswered reviews relative to total = better
	h.Backlog = scoreRatio(meta.Counts[models.StatusPending], total, 30)

	// Failure rate (25 pts) - failed reviews are retriable but signal
	// adapter or platform trouble
	h.FailureRate = scoreRatio(meta.Counts[models.StatusFailed], total, 25)

	// Escalation load (25 pts) - manual_required needs an operator, so it
	// weighs heavier per review than a plain failure
	h.EscalationLoad = scoreRatio(2*meta.Counts[models.StatusManualRequired], total, 25)

	// Post recency (20 pts) - recent successful post = pipeline is moving
	if total == 0 {
		h.PostRecency = 20 // nothing to answer yet
	} else {
		h.PostRecency = s.scoreRecency(meta.LastPostedAt, 20)
	}

	h.Total = h.Backlog + h.FailureRate + h.EscalationLoad + h.PostRecency
	return h
}

// scoreRatio converts a bad-count ratio into points. Zero bad = full points.
func scoreRatio(bad, total, maxPoints int) int {
	if total == 0 || bad <= 0 {
		return maxPoints
	}
	ratio := float64(bad) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return int(float64(maxPoints) * (1 - ratio*0.9))
}

// scoreRecency converts time since the last posted reply to points.
func (s *Scorer) scoreRecency(t time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	days := int(s.now().Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return maxPoints
	case days <= 3:
		return int(float64(maxPoints) * 0.9)
	case days <= 7:
		return int(float64(maxPoints) * 0.75)
	case days <= 14:
		return int(float64(maxPoints) * 0.5)
	case days <= 30:
		return int(float64(maxPoints) * 0.25)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}

// Label buckets a total score into the operator-facing label.
func Label(total int) string {
	switch {
	case total >= 80:
		return "healthy"
	case total >= 55:
		return "degraded"
	default:
		return "unhealthy"
	}
}
