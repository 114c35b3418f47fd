// Package lifecycle holds the authoritative per-review state machine. Status
// transitions are monotonic; terminal records are never re-entered by the
// automated pipeline without an explicit external reset.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/replypilot/replypilot/internal/models"
)

// transitions enumerates every legal edge of the reply state machine.
// pending → generating is claimed atomically at the store layer; failed →
// pending is the external re-queue edge.
var transitions = map[models.ReplyStatus][]models.ReplyStatus{
	models.StatusPending:       {models.StatusGenerating},
	models.StatusGenerating:    {models.StatusQualityReview, models.StatusFailed},
	models.StatusQualityReview: {models.StatusReady, models.StatusRegenerate, models.StatusManualRequired},
	models.StatusRegenerate:    {models.StatusGenerating},
	models.StatusReady:         {models.StatusPosting},
	models.StatusPosting:       {models.StatusPosted, models.StatusFailed, models.StatusManualRequired},
	models.StatusFailed:        {models.StatusPending, models.StatusManualRequired},
}

// IsTerminal reports whether the automated pipeline self-transitions out of
// the status.
func IsTerminal(s models.ReplyStatus) bool {
	return s == models.StatusPosted || s == models.StatusManualRequired
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to models.ReplyStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition advances the record to the target status, enforcing legality and
// the bookkeeping rules tied to specific edges: entering regenerate counts a
// generation attempt, entering posting counts a post attempt, and entering
// posted stamps the posted time. Entering failed from any stage before
// posting also counts an attempt, so the re-queue ceiling applies to every
// failure class, not just posting failures.
func Transition(r *models.ReviewRecord, to models.ReplyStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for review %s", r.Status, to, r.ID)
	}

	switch to {
	case models.StatusRegenerate:
		r.GenerationAttempts++
	case models.StatusPosting:
		r.PostAttempts++
	case models.StatusFailed:
		if r.Status != models.StatusPosting {
			r.PostAttempts++
		}
	case models.StatusPosted:
		now := time.Now().UTC()
		r.PostedAt = &now
	}
	r.Status = to
	return nil
}
