// Package engine drives pending reviews end-to-end: claim, locate on the
// platform, generate a reply, gate it, submit it, persist the terminal
// outcome. Platform adapters, text generation and persistence are injected;
// the engine owns only the decision logic between them.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/replypilot/replypilot/internal/gate"
	"github.com/replypilot/replypilot/internal/llm"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/output"
	"github.com/replypilot/replypilot/internal/platform"
	"github.com/replypilot/replypilot/internal/retry"
	"github.com/replypilot/replypilot/internal/store"
)

// Config bounds the engine's concurrency and retry behavior.
type Config struct {
	// MaxConcurrentStores bounds cross-store parallelism. One store session is
	// roughly one OS-level browser process on the adapter side.
	MaxConcurrentStores int
	// MaxPerStore caps how many reviews one run processes per store.
	MaxPerStore int
	// MaxScanPasses bounds matcher rendering passes per review.
	MaxScanPasses int
	// MaxRegenAttempts is the generation ceiling when a store policy does not
	// set its own.
	MaxRegenAttempts int
	// MaxPostAttempts is the failed-review re-queue ceiling.
	MaxPostAttempts int
	// Retry applies to adapter and generation calls.
	Retry retry.Policy
	// SubmitRate throttles platform submissions (anti-bot politeness).
	// Zero means unlimited.
	SubmitRate  rate.Limit
	SubmitBurst int
}

// DefaultConfig mirrors the production defaults.
var DefaultConfig = Config{
	MaxConcurrentStores: 3,
	MaxPerStore:         10,
	MaxScanPasses:       3,
	MaxRegenAttempts:    3,
	MaxPostAttempts:     3,
	Retry:               retry.DefaultPolicy,
	SubmitRate:          rate.Every(3 * time.Second),
	SubmitBurst:         1,
}

// CredentialSource resolves a store's credential reference. The engine never
// inspects secrets beyond passing them to the adapter.
type CredentialSource func(ref string) (platform.Credentials, error)

// Orchestrator wires persistence, generation, gating, matching and adapters.
type Orchestrator struct {
	store    store.Store
	gen      llm.Generator
	registry *platform.Registry
	creds    CredentialSource
	gate     *gate.Gate
	cfg      Config
	ui       *output.UI
	now      func() time.Time

	mu       sync.Mutex
	limiters map[models.Platform]*rate.Limiter
}

// New constructs an orchestrator. All collaborators are explicit; there are
// no package-level clients.
func New(s store.Store, gen llm.Generator, registry *platform.Registry, creds CredentialSource, cfg Config, ui *output.UI) *Orchestrator {
	if cfg.MaxConcurrentStores <= 0 {
		cfg.MaxConcurrentStores = DefaultConfig.MaxConcurrentStores
	}
	if cfg.MaxPerStore <= 0 {
		cfg.MaxPerStore = DefaultConfig.MaxPerStore
	}
	if cfg.MaxScanPasses <= 0 {
		cfg.MaxScanPasses = DefaultConfig.MaxScanPasses
	}
	if cfg.MaxRegenAttempts <= 0 {
		cfg.MaxRegenAttempts = DefaultConfig.MaxRegenAttempts
	}
	if cfg.MaxPostAttempts <= 0 {
		cfg.MaxPostAttempts = DefaultConfig.MaxPostAttempts
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultConfig.Retry
	}
	if ui == nil {
		ui = output.New()
	}
	o := &Orchestrator{
		store:    s,
		gen:      gen,
		registry: registry,
		creds:    creds,
		gate:     gate.New(),
		cfg:      cfg,
		ui:       ui,
		now:      time.Now,
		limiters: make(map[models.Platform]*rate.Limiter),
	}
	o.cfg.Retry.OnRetry = func(name string, attempt int, delay time.Duration, err error) {
		ui.VerboseLog("retrying %s (attempt %d, backing off %s): %v", name, attempt, delay, err)
	}
	return o
}

// limiter returns the shared submit limiter for a platform.
func (o *Orchestrator) limiter(p models.Platform) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[p]
	if !ok {
		limit := o.cfg.SubmitRate
		if limit == 0 {
			limit = rate.Inf
		}
		burst := o.cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		o.limiters[p] = l
	}
	return l
}

// StoreResult summarizes one store's run.
type StoreResult struct {
	StoreCode string `json:"store_code"`
	Processed int    `json:"processed"`
	Posted    int    `json:"posted"`
	Failed    int    `json:"failed"`
	Manual    int    `json:"manual"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// RunResult summarizes a full run across stores.
type RunResult struct {
	Stores []StoreResult `json:"stores"`
}

// Posted sums posted replies across stores.
func (r *RunResult) Posted() int {
	n := 0
	for _, s := range r.Stores {
		n += s.Posted
	}
	return n
}

// Run processes pending reviews for every enabled store with a registered
// adapter. Each store is owned by exactly one worker; cross-store parallelism
// is bounded by a counting semaphore.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	stores, err := o.store.ListStores(ctx, "")
	if err != nil {
		return nil, err
	}

	sem := make(chan struct{}, o.cfg.MaxConcurrentStores)
	results := make([]StoreResult, len(stores))
	var wg sync.WaitGroup

	for i, st := range stores {
		if !st.AutoReplyEnabled {
			continue
		}
		if !o.registry.Supported(st.Platform) {
			o.ui.VerboseLog("skipping %s: no adapter for platform %s", st.StoreCode, st.Platform)
			continue
		}

		wg.Add(1)
		go func(i int, st *models.Store) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = StoreResult{StoreCode: st.StoreCode, Error: ctx.Err().Error()}
				return
			}
			results[i] = o.processStore(ctx, st)
		}(i, st)
	}
	wg.Wait()

	out := &RunResult{}
	for _, r := range results {
		if r.StoreCode != "" {
			out.Stores = append(out.Stores, r)
		}
	}
	return out, nil
}
