package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func testReview(storeCode, nativeID string) *models.ReviewRecord {
	return &models.ReviewRecord{
		StoreCode:        storeCode,
		Platform:         models.PlatformBaemin,
		PlatformReviewID: nativeID,
		ReviewerName:     "Kim",
		Rating:           5,
		Content:          "The noodles were amazing, arrived hot",
		OrderedItems:     []string{"jajangmyeon"},
		ReviewDate:       time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Store CRUD ---

func TestStoreCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Store{
		StoreCode:        "gangnam-1",
		Name:             "Gangnam Branch",
		Platform:         models.PlatformBaemin,
		PlatformStoreID:  "99881",
		CredentialRef:    "gangnam-1",
		AutoReplyEnabled: true,
	}
	err := s.CreateStore(ctx, st)
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)
	assert.False(t, st.CreatedAt.IsZero())

	got, err := s.GetStoreByCode(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, st.Name, got.Name)
	assert.Equal(t, models.PlatformBaemin, got.Platform)
	assert.True(t, got.AutoReplyEnabled)

	got.Name = "Gangnam Main"
	got.AutoReplyEnabled = false
	err = s.UpdateStore(ctx, got)
	require.NoError(t, err)

	got, err = s.GetStoreByCode(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, "Gangnam Main", got.Name)
	assert.False(t, got.AutoReplyEnabled)

	err = s.DeleteStore(ctx, "gangnam-1")
	require.NoError(t, err)

	_, err = s.GetStoreByCode(ctx, "gangnam-1")
	assert.Error(t, err)
}

func TestListStores_PlatformFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateStore(ctx, &models.Store{StoreCode: "a", Name: "A", Platform: models.PlatformBaemin}))
	require.NoError(t, s.CreateStore(ctx, &models.Store{StoreCode: "b", Name: "B", Platform: models.PlatformYogiyo}))

	all, err := s.ListStores(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	baemin, err := s.ListStores(ctx, models.PlatformBaemin)
	require.NoError(t, err)
	require.Len(t, baemin, 1)
	assert.Equal(t, "a", baemin[0].StoreCode)
}

// --- Policies ---

func TestStorePolicy_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := models.DefaultPolicy("gangnam-1")
	p.BannedWords = []string{"refund"}
	p.Rating1Reply = false
	err := s.UpsertStorePolicy(ctx, p)
	require.NoError(t, err)

	got, err := s.GetStorePolicy(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"refund"}, got.BannedWords)
	assert.False(t, got.Rating1Reply)
	assert.True(t, got.Rating5Reply)
	assert.Equal(t, p.AcceptanceThreshold, got.AcceptanceThreshold)

	// Upsert replaces
	p.Tone = "formal"
	err = s.UpsertStorePolicy(ctx, p)
	require.NoError(t, err)

	got, err = s.GetStorePolicy(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, "formal", got.Tone)
}

// --- Reviews ---

func TestUpsertReview_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testReview("gangnam-1", "native-1")
	inserted, err := s.UpsertReview(ctx, r)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, r.ID)

	// Same platform review again: no new row, state untouched
	r.Status = models.StatusPosted // mutated copy must not overwrite
	again := testReview("gangnam-1", "native-1")
	inserted, err = s.UpsertReview(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetReview(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, []string{"jajangmyeon"}, got.OrderedItems)
}

func TestUpsertReview_DerivesDeterministicID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testReview("gangnam-1", "native-1")
	b := testReview("gangnam-1", "native-1")
	_, err := s.UpsertReview(ctx, a)
	require.NoError(t, err)
	_, err = s.UpsertReview(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)

	// Different platform id yields a different identity
	c := testReview("gangnam-1", "native-2")
	inserted, err := s.UpsertReview(ctx, c)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestClaimNextPending_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testReview("gangnam-1", "native-1")
	older.ReviewDate = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	newer := testReview("gangnam-1", "native-2")
	newer.ReviewDate = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertReview(ctx, newer)
	require.NoError(t, err)
	_, err = s.UpsertReview(ctx, older)
	require.NoError(t, err)

	claimed, err := s.ClaimNextPending(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, models.StatusGenerating, claimed.Status)
}

func TestClaimNextPending_SkipsAnsweredAndForeign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	answered := testReview("gangnam-1", "native-1")
	answered.HasOwnerReply = true
	answered.Status = models.StatusPosted
	_, err := s.UpsertReview(ctx, answered)
	require.NoError(t, err)

	other := testReview("hongdae-2", "native-2")
	_, err = s.UpsertReview(ctx, other)
	require.NoError(t, err)

	_, err = s.ClaimNextPending(ctx, "gangnam-1")
	assert.True(t, errors.Is(err, ErrNoPending))
}

func TestClaimNextPending_AtMostOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testReview("gangnam-1", "native-1")
	_, err := s.UpsertReview(ctx, r)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	claims := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claimed, err := s.ClaimNextPending(ctx, "gangnam-1"); err == nil {
				claims <- claimed.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	var winners []string
	for id := range claims {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one worker may claim a review")
	assert.Equal(t, r.ID, winners[0])
}

func TestResetReview_ClearsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testReview("gangnam-1", "native-1")
	_, err := s.UpsertReview(ctx, r)
	require.NoError(t, err)

	r.Status = models.StatusFailed
	r.ErrorReason = "submission_failed"
	require.NoError(t, s.UpdateReview(ctx, r))

	require.NoError(t, s.ResetReview(ctx, r.ID))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.ErrorReason)
}

func TestRequeueFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	retriable := testReview("gangnam-1", "native-1")
	_, err := s.UpsertReview(ctx, retriable)
	require.NoError(t, err)
	retriable.Status = models.StatusFailed
	retriable.PostAttempts = 1
	require.NoError(t, s.UpdateReview(ctx, retriable))

	exhausted := testReview("gangnam-1", "native-2")
	_, err = s.UpsertReview(ctx, exhausted)
	require.NoError(t, err)
	exhausted.Status = models.StatusFailed
	exhausted.PostAttempts = 3
	require.NoError(t, s.UpdateReview(ctx, exhausted))

	stranded := testReview("gangnam-1", "native-3")
	_, err = s.UpsertReview(ctx, stranded)
	require.NoError(t, err)
	stranded.Status = models.StatusPosting
	require.NoError(t, s.UpdateReview(ctx, stranded))

	requeued, escalated, err := s.RequeueFailed(ctx, "gangnam-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)
	assert.Equal(t, int64(1), escalated)

	got, err := s.GetReview(ctx, retriable.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	got, err = s.GetReview(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManualRequired, got.Status)

	// In-flight states recover to pending without consuming attempts
	got, err = s.GetReview(ctx, stranded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestListReviews_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testReview("gangnam-1", "native-1")
	_, err := s.UpsertReview(ctx, a)
	require.NoError(t, err)

	b := testReview("gangnam-1", "native-2")
	_, err = s.UpsertReview(ctx, b)
	require.NoError(t, err)
	b.Status = models.StatusFailed
	require.NoError(t, s.UpdateReview(ctx, b))

	failed, err := s.ListReviews(ctx, ReviewListFilter{StoreCode: "gangnam-1", Status: models.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)

	limited, err := s.ListReviews(ctx, ReviewListFilter{StoreCode: "gangnam-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, status := range []models.ReplyStatus{models.StatusPending, models.StatusPending, models.StatusFailed} {
		r := testReview("gangnam-1", string(rune('a'+i)))
		_, err := s.UpsertReview(ctx, r)
		require.NoError(t, err)
		if status != models.StatusPending {
			r.Status = status
			require.NoError(t, s.UpdateReview(ctx, r))
		}
	}

	counts, err := s.CountByStatus(ctx, "gangnam-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatusPending])
	assert.Equal(t, 1, counts[models.StatusFailed])
}
