package store

import (
	"context"
	"errors"

	"github.com/replypilot/replypilot/internal/models"
)

// ErrNoPending is returned by ClaimNextPending when no claimable review exists.
var ErrNoPending = errors.New("no pending reviews")

// ReviewListFilter specifies filters for listing reviews.
type ReviewListFilter struct {
	StoreCode string
	Platform  models.Platform
	Status    models.ReplyStatus
	Limit     int
}

// Store defines the persistence interface for replypilot.
type Store interface {
	// Stores
	CreateStore(ctx context.Context, st *models.Store) error
	GetStoreByCode(ctx context.Context, storeCode string) (*models.Store, error)
	ListStores(ctx context.Context, platform models.Platform) ([]*models.Store, error)
	UpdateStore(ctx context.Context, st *models.Store) error
	DeleteStore(ctx context.Context, storeCode string) error

	// Policies
	UpsertStorePolicy(ctx context.Context, p *models.StorePolicy) error
	GetStorePolicy(ctx context.Context, storeCode string) (*models.StorePolicy, error)

	// Reviews
	// UpsertReview inserts the review if its id is new and reports whether a
	// row was inserted. Re-ingesting an existing review never duplicates it
	// and never touches its processing state.
	UpsertReview(ctx context.Context, r *models.ReviewRecord) (bool, error)
	GetReview(ctx context.Context, id string) (*models.ReviewRecord, error)
	ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.ReviewRecord, error)
	// ClaimNextPending atomically transitions the oldest claimable pending
	// review of the store to generating and returns it. At most one caller
	// can claim a given review.
	ClaimNextPending(ctx context.Context, storeCode string) (*models.ReviewRecord, error)
	// UpdateReview persists the mutable reply-side fields.
	UpdateReview(ctx context.Context, r *models.ReviewRecord) error
	// ResetReview is the explicit external reset: puts the review back to
	// pending regardless of current state, clearing the error reason.
	ResetReview(ctx context.Context, id string) error
	// RequeueFailed re-queues failed reviews below the post-attempt ceiling
	// back to pending and escalates the rest to manual_required. Also recovers
	// reviews stranded in non-terminal in-flight states by a cancelled run.
	RequeueFailed(ctx context.Context, storeCode string, maxPostAttempts int) (requeued, escalated int64, err error)
	CountByStatus(ctx context.Context, storeCode string) (map[models.ReplyStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
