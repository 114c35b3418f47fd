package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return NewServer(s, 3), s
}

func seedStore(t *testing.T, s store.Store, code string, platform models.Platform) {
	t.Helper()
	err := s.CreateStore(context.Background(), &models.Store{
		StoreCode:        code,
		Name:             "Test " + code,
		Platform:         platform,
		PlatformStoreID:  "p-" + code,
		AutoReplyEnabled: true,
	})
	require.NoError(t, err)
}

func seedReview(t *testing.T, s store.Store, storeCode, nativeID string, status models.ReplyStatus) *models.ReviewRecord {
	t.Helper()
	r := &models.ReviewRecord{
		ID:               models.ReviewID(models.PlatformBaemin, storeCode, nativeID),
		StoreCode:        storeCode,
		Platform:         models.PlatformBaemin,
		PlatformReviewID: nativeID,
		ReviewerName:     "Kim",
		Rating:           5,
		Content:          "Great chicken",
		ReviewDate:       time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		Status:           models.StatusPending,
	}
	_, err := s.UpsertReview(context.Background(), r)
	require.NoError(t, err)
	if status != models.StatusPending {
		r.Status = status
		require.NoError(t, s.UpdateReview(context.Background(), r))
	}
	return r
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_RegistersAllTools(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}

func TestListStores(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	seedStore(t, s, "mapo-2", models.PlatformYogiyo)

	result, err := srv.handleListStores(context.Background(), callToolReq("replypilot_list_stores", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Len(t, out, 2)
}

func TestListStores_PlatformFilter(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	seedStore(t, s, "mapo-2", models.PlatformYogiyo)

	req := callToolReq("replypilot_list_stores", map[string]any{"platform": "yogiyo"})
	result, err := srv.handleListStores(context.Background(), req)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "mapo-2", out[0]["store_code"])
}

func TestStoreStatus(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	seedReview(t, s, "gangnam-1", "r1", models.StatusPending)
	seedReview(t, s, "gangnam-1", "r2", models.StatusManualRequired)

	req := callToolReq("replypilot_store_status", map[string]any{"store_code": "gangnam-1"})
	result, err := srv.handleStoreStatus(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Store   map[string]any `json:"store"`
		Reviews map[string]int `json:"reviews"`
		Health  struct {
			Total int    `json:"total"`
			Label string `json:"label"`
		} `json:"health"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "gangnam-1", out.Store["store_code"])
	assert.Equal(t, 1, out.Reviews["pending"])
	assert.Equal(t, 1, out.Reviews["manual_required"])
	assert.NotEmpty(t, out.Health.Label)
}

func TestStoreStatus_UnknownStore(t *testing.T) {
	srv, _ := newTestServer(t)

	req := callToolReq("replypilot_store_status", map[string]any{"store_code": "nope"})
	result, err := srv.handleStoreStatus(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStoreStatus_MissingParameter(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleStoreStatus(context.Background(), callToolReq("replypilot_store_status", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "store_code")
}

func TestListReviews_StatusFilter(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	seedReview(t, s, "gangnam-1", "r1", models.StatusPending)
	seedReview(t, s, "gangnam-1", "r2", models.StatusFailed)

	req := callToolReq("replypilot_list_reviews", map[string]any{"status": "failed"})
	result, err := srv.handleListReviews(context.Background(), req)
	require.NoError(t, err)

	var out []reviewOut
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "failed", out[0].Status)
}

func TestShowReview(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	r := seedReview(t, s, "gangnam-1", "r1", models.StatusPending)

	req := callToolReq("replypilot_show_review", map[string]any{"review_id": r.ID})
	result, err := srv.handleShowReview(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out reviewOut
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, r.ID, out.ID)
	assert.Equal(t, "Kim", out.ReviewerName)
	assert.Equal(t, "2026-08-30", out.ReviewDate)
}

func TestShowReview_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := callToolReq("replypilot_show_review", map[string]any{"review_id": "missing"})
	result, err := srv.handleShowReview(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestResetReview(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	r := seedReview(t, s, "gangnam-1", "r1", models.StatusManualRequired)

	req := callToolReq("replypilot_reset_review", map[string]any{"review_id": r.ID})
	result, err := srv.handleResetReview(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	got, err := s.GetReview(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRequeueFailed(t *testing.T) {
	srv, s := newTestServer(t)
	seedStore(t, s, "gangnam-1", models.PlatformBaemin)
	r := seedReview(t, s, "gangnam-1", "r1", models.StatusPending)
	r.Status = models.StatusFailed
	r.PostAttempts = 1
	require.NoError(t, s.UpdateReview(context.Background(), r))

	result, err := srv.handleRequeueFailed(context.Background(), callToolReq("replypilot_requeue_failed", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]int64
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, int64(1), out["requeued"])
	assert.Equal(t, int64(0), out["escalated"])
}
