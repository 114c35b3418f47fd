package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/replypilot/replypilot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent store workers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Stores ---

func (s *SQLiteStore) CreateStore(ctx context.Context, st *models.Store) error {
	if st.ID == "" {
		st.ID = newULID()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stores (id, store_code, name, platform, platform_store_id, credential_ref, auto_reply_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.StoreCode, st.Name, string(st.Platform), st.PlatformStoreID,
		st.CredentialRef, boolToInt(st.AutoReplyEnabled), st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStoreByCode(ctx context.Context, storeCode string) (*models.Store, error) {
	st := &models.Store{}
	var platform string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, store_code, name, platform, platform_store_id, credential_ref, auto_reply_enabled, created_at, updated_at
		FROM stores WHERE store_code = ?`, storeCode,
	).Scan(&st.ID, &st.StoreCode, &st.Name, &platform, &st.PlatformStoreID, &st.CredentialRef, &st.AutoReplyEnabled, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store not found: %s", storeCode)
	}
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	st.Platform = models.Platform(platform)
	return st, nil
}

func (s *SQLiteStore) ListStores(ctx context.Context, platform models.Platform) ([]*models.Store, error) {
	var rows *sql.Rows
	var err error
	if platform != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, store_code, name, platform, platform_store_id, credential_ref, auto_reply_enabled, created_at, updated_at
			FROM stores WHERE platform = ? ORDER BY store_code`, string(platform))
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, store_code, name, platform, platform_store_id, credential_ref, auto_reply_enabled, created_at, updated_at
			FROM stores ORDER BY store_code`)
	}
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stores []*models.Store
	for rows.Next() {
		st := &models.Store{}
		var p string
		if err := rows.Scan(&st.ID, &st.StoreCode, &st.Name, &p, &st.PlatformStoreID, &st.CredentialRef, &st.AutoReplyEnabled, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		st.Platform = models.Platform(p)
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

func (s *SQLiteStore) UpdateStore(ctx context.Context, st *models.Store) error {
	st.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE stores SET name=?, platform=?, platform_store_id=?, credential_ref=?, auto_reply_enabled=?, updated_at=?
		WHERE store_code=?`,
		st.Name, string(st.Platform), st.PlatformStoreID, st.CredentialRef,
		boolToInt(st.AutoReplyEnabled), st.UpdatedAt, st.StoreCode,
	)
	if err != nil {
		return fmt.Errorf("update store: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store not found: %s", st.StoreCode)
	}
	return nil
}

func (s *SQLiteStore) DeleteStore(ctx context.Context, storeCode string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM stores WHERE store_code = ?", storeCode)
	if err != nil {
		return fmt.Errorf("delete store: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store not found: %s", storeCode)
	}
	return nil
}

// --- Policies ---

func (s *SQLiteStore) UpsertStorePolicy(ctx context.Context, p *models.StorePolicy) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	bannedJSON, err := json.Marshal(p.BannedWords)
	if err != nil {
		bannedJSON = []byte("[]")
	}
	requiredJSON, err := json.Marshal(p.RequiredPhrases)
	if err != nil {
		requiredJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO store_policies (id, store_code, greeting_start, greeting_end, role, tone, banned_words, required_phrases, max_reply_length, min_reply_length, rating_1_reply, rating_2_reply, rating_3_reply, rating_4_reply, rating_5_reply, acceptance_threshold, max_regen_attempts, auto_reply_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_code) DO UPDATE SET
			greeting_start=excluded.greeting_start, greeting_end=excluded.greeting_end,
			role=excluded.role, tone=excluded.tone,
			banned_words=excluded.banned_words, required_phrases=excluded.required_phrases,
			max_reply_length=excluded.max_reply_length, min_reply_length=excluded.min_reply_length,
			rating_1_reply=excluded.rating_1_reply, rating_2_reply=excluded.rating_2_reply,
			rating_3_reply=excluded.rating_3_reply, rating_4_reply=excluded.rating_4_reply,
			rating_5_reply=excluded.rating_5_reply,
			acceptance_threshold=excluded.acceptance_threshold,
			max_regen_attempts=excluded.max_regen_attempts,
			auto_reply_hours=excluded.auto_reply_hours,
			updated_at=excluded.updated_at`,
		p.ID, p.StoreCode, p.GreetingStart, p.GreetingEnd, p.Role, p.Tone,
		string(bannedJSON), string(requiredJSON), p.MaxReplyLength, p.MinReplyLength,
		boolToInt(p.Rating1Reply), boolToInt(p.Rating2Reply), boolToInt(p.Rating3Reply),
		boolToInt(p.Rating4Reply), boolToInt(p.Rating5Reply),
		p.AcceptanceThreshold, p.MaxRegenAttempts, p.AutoReplyHours,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert store policy: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStorePolicy(ctx context.Context, storeCode string) (*models.StorePolicy, error) {
	p := &models.StorePolicy{}
	var bannedJSON, requiredJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, store_code, greeting_start, greeting_end, role, tone, banned_words, required_phrases, max_reply_length, min_reply_length, rating_1_reply, rating_2_reply, rating_3_reply, rating_4_reply, rating_5_reply, acceptance_threshold, max_regen_attempts, auto_reply_hours, created_at, updated_at
		FROM store_policies WHERE store_code = ?`, storeCode,
	).Scan(&p.ID, &p.StoreCode, &p.GreetingStart, &p.GreetingEnd, &p.Role, &p.Tone,
		&bannedJSON, &requiredJSON, &p.MaxReplyLength, &p.MinReplyLength,
		&p.Rating1Reply, &p.Rating2Reply, &p.Rating3Reply, &p.Rating4Reply, &p.Rating5Reply,
		&p.AcceptanceThreshold, &p.MaxRegenAttempts, &p.AutoReplyHours,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store policy not found: %s", storeCode)
	}
	if err != nil {
		return nil, fmt.Errorf("get store policy: %w", err)
	}

	_ = json.Unmarshal([]byte(bannedJSON), &p.BannedWords)
	_ = json.Unmarshal([]byte(requiredJSON), &p.RequiredPhrases)
	return p, nil
}

// --- Reviews ---

const reviewColumns = `id, store_code, platform, platform_review_id, reviewer_name, rating, content, ordered_items, review_date, delivery_feedback, has_owner_reply, status, reply_text, generation_attempts, post_attempts, error_reason, created_at, updated_at, posted_at`

func (s *SQLiteStore) UpsertReview(ctx context.Context, r *models.ReviewRecord) (bool, error) {
	if r.ID == "" {
		r.ID = models.ReviewID(r.Platform, r.StoreCode, r.PlatformReviewID)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = models.StatusPending
	}

	itemsJSON, err := json.Marshal(r.OrderedItems)
	if err != nil {
		itemsJSON = []byte("[]")
	}

	// INSERT OR IGNORE keeps re-ingestion idempotent: an existing record's
	// processing state is never touched.
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StoreCode, string(r.Platform), r.PlatformReviewID, r.ReviewerName,
		r.Rating, r.Content, string(itemsJSON), r.ReviewDate, r.DeliveryFeedback,
		boolToInt(r.HasOwnerReply), string(r.Status), r.ReplyText,
		r.GenerationAttempts, r.PostAttempts, r.ErrorReason,
		r.CreatedAt, r.UpdatedAt, r.PostedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert review: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanReview.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.ReviewRecord, error) {
	r := &models.ReviewRecord{}
	var platform, status, itemsJSON string
	var postedAt sql.NullTime

	err := row.Scan(&r.ID, &r.StoreCode, &platform, &r.PlatformReviewID, &r.ReviewerName,
		&r.Rating, &r.Content, &itemsJSON, &r.ReviewDate, &r.DeliveryFeedback,
		&r.HasOwnerReply, &status, &r.ReplyText,
		&r.GenerationAttempts, &r.PostAttempts, &r.ErrorReason,
		&r.CreatedAt, &r.UpdatedAt, &postedAt)
	if err != nil {
		return nil, err
	}

	r.Platform = models.Platform(platform)
	r.Status = models.ReplyStatus(status)
	_ = json.Unmarshal([]byte(itemsJSON), &r.OrderedItems)
	if postedAt.Valid {
		r.PostedAt = &postedAt.Time
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.ReviewRecord, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews`
	var conditions []string
	var args []any

	if filter.StoreCode != "" {
		conditions = append(conditions, "store_code = ?")
		args = append(args, filter.StoreCode)
	}
	if filter.Platform != "" {
		conditions = append(conditions, "platform = ?")
		args = append(args, string(filter.Platform))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY review_date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.ReviewRecord
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (s *SQLiteStore) ClaimNextPending(ctx context.Context, storeCode string) (*models.ReviewRecord, error) {
	// Optimistic conditional update: another worker may claim the candidate
	// between SELECT and UPDATE, in which case RowsAffected is 0 and we move
	// to the next oldest pending review.
	for {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM reviews
			WHERE store_code = ? AND status = 'pending' AND has_owner_reply = 0
			ORDER BY review_date ASC, created_at ASC LIMIT 1`, storeCode).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, ErrNoPending
		}
		if err != nil {
			return nil, fmt.Errorf("select pending review: %w", err)
		}

		result, err := s.db.ExecContext(ctx,
			`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
			string(models.StatusGenerating), time.Now().UTC(), id)
		if err != nil {
			return nil, fmt.Errorf("claim review: %w", err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			continue // lost the race, try the next one
		}
		return s.GetReview(ctx, id)
	}
}

func (s *SQLiteStore) UpdateReview(ctx context.Context, r *models.ReviewRecord) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status=?, reply_text=?, generation_attempts=?, post_attempts=?, error_reason=?, updated_at=?, posted_at=?
		WHERE id=?`,
		string(r.Status), r.ReplyText, r.GenerationAttempts, r.PostAttempts,
		r.ErrorReason, r.UpdatedAt, r.PostedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review not found: %s", r.ID)
	}
	return nil
}

func (s *SQLiteStore) ResetReview(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status=?, error_reason='', updated_at=? WHERE id=?`,
		string(models.StatusPending), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reset review: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RequeueFailed(ctx context.Context, storeCode string, maxPostAttempts int) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	// Stranded in-flight states from a cancelled run go back to pending
	// without consuming an attempt.
	recover := `UPDATE reviews SET status='pending', updated_at=?
		WHERE status IN ('generating', 'quality_review', 'regenerate', 'ready', 'posting')`
	recoverArgs := []any{now}
	if storeCode != "" {
		recover += " AND store_code = ?"
		recoverArgs = append(recoverArgs, storeCode)
	}
	if _, err := tx.ExecContext(ctx, recover, recoverArgs...); err != nil {
		return 0, 0, fmt.Errorf("recover in-flight reviews: %w", err)
	}

	escalate := `UPDATE reviews SET status='manual_required', updated_at=?
		WHERE status='failed' AND post_attempts >= ?`
	escalateArgs := []any{now, maxPostAttempts}
	if storeCode != "" {
		escalate += " AND store_code = ?"
		escalateArgs = append(escalateArgs, storeCode)
	}
	res, err := tx.ExecContext(ctx, escalate, escalateArgs...)
	if err != nil {
		return 0, 0, fmt.Errorf("escalate failed reviews: %w", err)
	}
	escalated, _ := res.RowsAffected()

	requeue := `UPDATE reviews SET status='pending', error_reason='', updated_at=?
		WHERE status='failed' AND post_attempts < ?`
	requeueArgs := []any{now, maxPostAttempts}
	if storeCode != "" {
		requeue += " AND store_code = ?"
		requeueArgs = append(requeueArgs, storeCode)
	}
	res, err = tx.ExecContext(ctx, requeue, requeueArgs...)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue failed reviews: %w", err)
	}
	requeued, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return requeued, escalated, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, storeCode string) (map[models.ReplyStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM reviews`
	var args []any
	if storeCode != "" {
		query += " WHERE store_code = ?"
		args = append(args, storeCode)
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count reviews by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.ReplyStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.ReplyStatus(status)] = n
	}
	return counts, rows.Err()
}
