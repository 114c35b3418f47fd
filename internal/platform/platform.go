// Package platform defines the contract every storefront automation adapter
// implements. The engine depends only on this contract; selector maintenance
// and anti-automation concerns live entirely inside concrete adapters.
package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/replypilot/replypilot/internal/models"
)

// Candidate is one rendered, on-screen review as currently observed. It lives
// for a single matching call and is never persisted.
type Candidate struct {
	Index        int    // position in scan order, stable within a session
	Text         string // full text content of the review container
	Name         string
	Content      string
	Rating       int // 0 when not displayed
	RelativeDate string
	MenuText     string
}

// Credentials carry a platform login. The engine passes them through opaquely.
type Credentials struct {
	Username string
	Password string
}

// Adapter is the per-platform automation surface. All methods may return
// errors carrying the taxonomy in errors.go; everything else about the
// platform's UI stays behind this interface.
type Adapter interface {
	// Login authenticates the session.
	Login(ctx context.Context, creds Credentials) error
	// OpenReviewList navigates to the review list of the given store.
	OpenReviewList(ctx context.Context, platformStoreID string) error
	// RenderCandidates returns the currently rendered candidate set (one pass).
	RenderCandidates(ctx context.Context) ([]Candidate, error)
	// ScrollNext triggers further rendering (scroll or pagination) so the next
	// RenderCandidates pass can observe more reviews.
	ScrollNext(ctx context.Context) error
	// SubmitReply posts text as the owner reply on the matched candidate.
	SubmitReply(ctx context.Context, c Candidate, text string) error
	// Close releases the underlying automation session.
	Close() error
}

// Factory builds a fresh adapter session for one store.
type Factory func() (Adapter, error)

// Registry maps platform names to adapter factories. A single engine is
// written against Adapter; concrete implementations register here.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.Platform]Factory
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.Platform]Factory)}
}

// Register installs the factory for a platform, replacing any previous one.
func (r *Registry) Register(p models.Platform, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

// New builds a fresh adapter session for the platform.
func (r *Registry) New(p models.Platform) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", p)
	}
	return f()
}

// Supported reports whether an adapter is registered for the platform.
func (r *Registry) Supported(p models.Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[p]
	return ok
}
