package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/replypilot/replypilot/internal/lifecycle"
	"github.com/replypilot/replypilot/internal/llm"
	"github.com/replypilot/replypilot/internal/matcher"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/platform"
	"github.com/replypilot/replypilot/internal/retry"
	"github.com/replypilot/replypilot/internal/store"
)

// processStore drains one store's pending reviews on a single adapter session.
// All operations against the session are strictly sequential: UI automation
// state (current page, open modal) is not safely shareable.
func (o *Orchestrator) processStore(ctx context.Context, st *models.Store) StoreResult {
	res := StoreResult{StoreCode: st.StoreCode}

	policy, err := o.store.GetStorePolicy(ctx, st.StoreCode)
	if err != nil {
		policy = models.DefaultPolicy(st.StoreCode)
	}

	if !policy.WithinAutoReplyHours(o.now()) {
		o.ui.VerboseLog("store %s: outside auto-reply hours (%s)", st.StoreCode, policy.AutoReplyHours)
		return res
	}

	session, err := o.openSession(ctx, st)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() { _ = session.Close() }()

	// Reviews whose rating the policy excludes stay claimed until the loop
	// ends so ClaimNextPending moves past them, then go back to pending.
	var parked []*models.ReviewRecord
	defer func() {
		for _, r := range parked {
			if err := o.unclaim(context.WithoutCancel(ctx), r); err != nil {
				o.ui.Error("failed to release review %s: %v", r.ID, err)
			}
		}
	}()

	for res.Processed+res.Skipped < o.cfg.MaxPerStore {
		if ctx.Err() != nil {
			break
		}

		review, err := o.store.ClaimNextPending(ctx, st.StoreCode)
		if errors.Is(err, store.ErrNoPending) {
			break
		}
		if err != nil {
			res.Error = err.Error()
			break
		}

		if !policy.AutoReplyEnabledFor(review.Rating) {
			parked = append(parked, review)
			res.Skipped++
			continue
		}

		res.Processed++
		switch o.processReview(ctx, session, review, policy) {
		case models.StatusPosted:
			res.Posted++
		case models.StatusFailed:
			res.Failed++
		case models.StatusManualRequired:
			res.Manual++
		}
	}

	return res
}

// openSession builds, authenticates and navigates a fresh adapter session.
func (o *Orchestrator) openSession(ctx context.Context, st *models.Store) (platform.Adapter, error) {
	creds, err := o.creds(st.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", st.StoreCode, err)
	}

	adapter, err := o.registry.New(st.Platform)
	if err != nil {
		return nil, err
	}

	_, err = retry.Do(ctx, "login", o.cfg.Retry, platform.Classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, adapter.Login(ctx, creds)
	})
	if err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("login %s: %w", st.StoreCode, err)
	}

	_, err = retry.Do(ctx, "open review list", o.cfg.Retry, platform.Classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, adapter.OpenReviewList(ctx, st.PlatformStoreID)
	})
	if err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("open review list %s: %w", st.StoreCode, err)
	}

	return adapter, nil
}

// processReview drives one claimed review to a terminal state and returns the
// status it ended in. Cancellation between discrete steps leaves the record in
// its current non-terminal state for a later run.
func (o *Orchestrator) processReview(ctx context.Context, session platform.Adapter, review *models.ReviewRecord, policy *models.StorePolicy) models.ReplyStatus {
	o.ui.VerboseLog("processing review %s (%s, rating %d)", review.ID, review.ReviewerName, review.Rating)

	if status := o.generateAndGate(ctx, review, policy); status != models.StatusReady {
		return status
	}
	if ctx.Err() != nil {
		return review.Status
	}
	return o.submit(ctx, session, review)
}

// generateAndGate runs the generate → quality-review loop until a draft is
// accepted, the regeneration ceiling is hit, or generation itself fails.
func (o *Orchestrator) generateAndGate(ctx context.Context, review *models.ReviewRecord, policy *models.StorePolicy) models.ReplyStatus {
	maxRegen := policy.MaxRegenAttempts
	if maxRegen <= 0 {
		maxRegen = o.cfg.MaxRegenAttempts
	}

	for {
		draft, err := retry.Do(ctx, "generate reply", o.cfg.Retry, nil, func(ctx context.Context) (*llm.Draft, error) {
			return o.gen.GenerateReply(ctx, review, policy)
		})
		if ctx.Err() != nil {
			return review.Status // leave as generating for a later run
		}
		if err != nil {
			return o.fail(ctx, review, "generation_failed: "+err.Error())
		}

		if err := o.transition(ctx, review, models.StatusQualityReview); err != nil {
			return review.Status
		}

		verdict := o.gate.Evaluate(draft.Text, review, policy)
		o.ui.VerboseLog("gate score %.2f for review %s (accepted=%v)", verdict.Score, review.ID, verdict.Accepted)

		if verdict.Accepted {
			review.ReplyText = draft.Text
			if err := o.transition(ctx, review, models.StatusReady); err != nil {
				return review.Status
			}
			return models.StatusReady
		}

		if review.GenerationAttempts+1 >= maxRegen {
			review.ErrorReason = "generation_rejected: " + strings.Join(verdict.Reasons, "; ")
			if err := o.transition(ctx, review, models.StatusManualRequired); err != nil {
				return review.Status
			}
			return models.StatusManualRequired
		}

		// regenerate → generating, counting the attempt
		if err := o.transition(ctx, review, models.StatusRegenerate); err != nil {
			return review.Status
		}
		if err := o.transition(ctx, review, models.StatusGenerating); err != nil {
			return review.Status
		}
	}
}

// submit locates the review on the platform and posts the accepted reply.
func (o *Orchestrator) submit(ctx context.Context, session platform.Adapter, review *models.ReviewRecord) models.ReplyStatus {
	if err := o.transition(ctx, review, models.StatusPosting); err != nil {
		return review.Status
	}

	m := matcher.New(matcher.Config{MaxScanPasses: o.cfg.MaxScanPasses})
	match, err := m.Match(ctx, review, &retryingProvider{session: session, policy: o.cfg.Retry})
	if ctx.Err() != nil {
		return review.Status // leave as posting; a requeue pass recovers it
	}
	if err != nil {
		return o.fail(ctx, review, taxonomyReason(err, "match_failed"))
	}
	if !match.Found {
		return o.fail(ctx, review, "review_not_found")
	}
	o.ui.VerboseLog("matched review %s with score %d (%s) after %d passes",
		review.ID, match.Score, strings.Join(match.Reasons, ","), match.Passes)

	if err := o.limiter(review.Platform).Wait(ctx); err != nil {
		return review.Status
	}

	_, err = retry.Do(ctx, "submit reply", o.cfg.Retry, platform.Classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, session.SubmitReply(ctx, match.Candidate, review.ReplyText)
	})
	if err != nil {
		// A platform-side rejection of the text itself is not retryable and
		// not re-queueable: the gate let through something the platform
		// refuses, so an operator has to look at it.
		if t, ok := platform.TypeOf(err); ok && t == platform.ErrSubmissionRejected {
			review.ErrorReason = t.String()
			if terr := o.transition(ctx, review, models.StatusManualRequired); terr != nil {
				return review.Status
			}
			return models.StatusManualRequired
		}
		return o.fail(ctx, review, taxonomyReason(err, "submission_failed"))
	}

	if err := o.transition(ctx, review, models.StatusPosted); err != nil {
		return review.Status
	}
	o.ui.VerboseLog("posted reply for review %s", review.ID)
	return models.StatusPosted
}

// transition advances the state machine and persists the record.
func (o *Orchestrator) transition(ctx context.Context, review *models.ReviewRecord, to models.ReplyStatus) error {
	if err := lifecycle.Transition(review, to); err != nil {
		return err
	}
	if err := o.store.UpdateReview(ctx, review); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	return nil
}

// fail moves the review to failed with a taxonomy-coded reason. Nothing is
// dropped silently: the record stays inspectable and re-queueable.
func (o *Orchestrator) fail(ctx context.Context, review *models.ReviewRecord, reason string) models.ReplyStatus {
	review.ErrorReason = reason
	if err := o.transition(ctx, review, models.StatusFailed); err != nil {
		o.ui.Error("failed to persist failure for review %s: %v", review.ID, err)
		return review.Status
	}
	o.ui.Warning("review %s failed: %s", review.ID, reason)
	return models.StatusFailed
}

// unclaim puts a claimed-but-skipped review back to pending.
func (o *Orchestrator) unclaim(ctx context.Context, review *models.ReviewRecord) error {
	review.Status = models.StatusPending
	return o.store.UpdateReview(ctx, review)
}

// taxonomyReason prefers the adapter error's taxonomy code over a fallback.
func taxonomyReason(err error, fallback string) string {
	if t, ok := platform.TypeOf(err); ok {
		return t.String()
	}
	return fallback + ": " + err.Error()
}

// retryingProvider wraps an adapter session so element discovery passes get
// bounded retry with timeout-class backoff.
type retryingProvider struct {
	session platform.Adapter
	policy  retry.Policy
}

func (p *retryingProvider) RenderCandidates(ctx context.Context) ([]platform.Candidate, error) {
	return retry.Do(ctx, "render candidates", p.policy, platform.Classify, func(ctx context.Context) ([]platform.Candidate, error) {
		return p.session.RenderCandidates(ctx)
	})
}

func (p *retryingProvider) ScrollNext(ctx context.Context) error {
	_, err := retry.Do(ctx, "scroll", p.policy, platform.Classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.session.ScrollNext(ctx)
	})
	return err
}
