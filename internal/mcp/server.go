package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/replypilot/replypilot/internal/health"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/store"
)

// Server wraps the replypilot data layer and exposes it as MCP tools.
type Server struct {
	store           store.Store
	scorer          *health.Scorer
	maxPostAttempts int
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, maxPostAttempts int) *Server {
	return &Server{
		store:           s,
		scorer:          health.NewScorer(),
		maxPostAttempts: maxPostAttempts,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("replypilot", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listStoresTool())
	srv.AddTool(s.storeStatusTool())
	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.showReviewTool())
	srv.AddTool(s.resetReviewTool())
	srv.AddTool(s.requeueFailedTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// replypilot_list_stores
func (s *Server) listStoresTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_list_stores",
		mcp.WithDescription("List registered stores. Returns a JSON array with store_code, name, platform, platform_store_id, and auto_reply_enabled."),
		mcp.WithString("platform", mcp.Description("Filter by platform: baemin, coupangeats, yogiyo, naver")),
	)
	return tool, s.handleListStores
}

func (s *Server) handleListStores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform := request.GetString("platform", "")
	stores, err := s.store.ListStores(ctx, models.Platform(platform))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list stores: %v", err)), nil
	}

	type storeOut struct {
		StoreCode        string `json:"store_code"`
		Name             string `json:"name"`
		Platform         string `json:"platform"`
		PlatformStoreID  string `json:"platform_store_id"`
		AutoReplyEnabled bool   `json:"auto_reply_enabled"`
	}

	out := make([]storeOut, len(stores))
	for i, st := range stores {
		out[i] = storeOut{
			StoreCode:        st.StoreCode,
			Name:             st.Name,
			Platform:         string(st.Platform),
			PlatformStoreID:  st.PlatformStoreID,
			AutoReplyEnabled: st.AutoReplyEnabled,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stores: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// replypilot_store_status
func (s *Server) storeStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_store_status",
		mcp.WithDescription("Get one store's reply-pipeline status: queue counts by status and a health score (0-100) with per-component breakdown."),
		mcp.WithString("store_code", mcp.Required(), mcp.Description("Store code")),
	)
	return tool, s.handleStoreStatus
}

func (s *Server) handleStoreStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("store_code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: store_code"), nil
	}

	st, err := s.store.GetStoreByCode(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("store not found: %s", code)), nil
	}

	counts, err := s.store.CountByStatus(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count reviews: %v", err)), nil
	}

	meta := &health.StoreMetadata{Counts: counts}
	if posted, err := s.store.ListReviews(ctx, store.ReviewListFilter{
		StoreCode: code, Status: models.StatusPosted, Limit: 1,
	}); err == nil && len(posted) > 0 && posted[0].PostedAt != nil {
		meta.LastPostedAt = *posted[0].PostedAt
	}
	hscore := s.scorer.Compute(meta)

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	result := map[string]any{
		"store": map[string]any{
			"store_code":         st.StoreCode,
			"name":               st.Name,
			"platform":           string(st.Platform),
			"auto_reply_enabled": st.AutoReplyEnabled,
		},
		"reviews": byStatus,
		"health": map[string]any{
			"total":           hscore.Total,
			"label":           health.Label(hscore.Total),
			"backlog":         hscore.Backlog,
			"failure_rate":    hscore.FailureRate,
			"escalation_load": hscore.EscalationLoad,
			"post_recency":    hscore.PostRecency,
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// replypilot_list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_list_reviews",
		mcp.WithDescription("List collected reviews, optionally filtered by store and/or reply status. Statuses: pending, generating, quality_review, regenerate, ready, posting, posted, failed, manual_required. Reviews in manual_required need an operator-written reply."),
		mcp.WithString("store_code", mcp.Description("Store code to filter by")),
		mcp.WithString("status", mcp.Description("Reply status filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ReviewListFilter{
		StoreCode: request.GetString("store_code", ""),
		Status:    models.ReplyStatus(request.GetString("status", "")),
		Limit:     request.GetInt("limit", 50),
	}

	reviews, err := s.store.ListReviews(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}

	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		out[i] = toReviewOut(r)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reviews: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// replypilot_show_review
func (s *Server) showReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_show_review",
		mcp.WithDescription("Get one review by id, including its full content, generated reply text, attempt counters, and error reason."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review id")),
	)
	return tool, s.handleShowReview
}

func (s *Server) handleShowReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	r, err := s.store.GetReview(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
	}

	data, err := json.Marshal(toReviewOut(r))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal review: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// replypilot_reset_review
func (s *Server) resetReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_reset_review",
		mcp.WithDescription("Put one review back to pending regardless of its current state, clearing its error reason. Use for reviews stuck in failed or manual_required after the underlying problem is fixed."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review id")),
	)
	return tool, s.handleResetReview
}

func (s *Server) handleResetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	if _, err := s.store.GetReview(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", id)), nil
	}

	if err := s.store.ResetReview(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to reset review: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"reset":%q}`, id)), nil
}

// replypilot_requeue_failed
func (s *Server) requeueFailedTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("replypilot_requeue_failed",
		mcp.WithDescription("Re-queue failed reviews below the post-attempt ceiling back to pending and escalate the rest to manual_required. Also recovers reviews left in-flight by an interrupted run."),
		mcp.WithString("store_code", mcp.Description("Limit to one store")),
	)
	return tool, s.handleRequeueFailed
}

func (s *Server) handleRequeueFailed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := request.GetString("store_code", "")

	requeued, escalated, err := s.store.RequeueFailed(ctx, code, s.maxPostAttempts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to requeue: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]int64{
		"requeued":  requeued,
		"escalated": escalated,
	})
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Shared output shapes
// ---------------------------------------------------------------------------

type reviewOut struct {
	ID                 string   `json:"id"`
	StoreCode          string   `json:"store_code"`
	Platform           string   `json:"platform"`
	ReviewerName       string   `json:"reviewer_name"`
	Rating             int      `json:"rating"`
	Content            string   `json:"content"`
	OrderedItems       []string `json:"ordered_items,omitempty"`
	ReviewDate         string   `json:"review_date"`
	DeliveryFeedback   string   `json:"delivery_feedback,omitempty"`
	Status             string   `json:"status"`
	ReplyText          string   `json:"reply_text,omitempty"`
	GenerationAttempts int      `json:"generation_attempts"`
	PostAttempts       int      `json:"post_attempts"`
	ErrorReason        string   `json:"error_reason,omitempty"`
	PostedAt           string   `json:"posted_at,omitempty"`
}

func toReviewOut(r *models.ReviewRecord) reviewOut {
	out := reviewOut{
		ID:                 r.ID,
		StoreCode:          r.StoreCode,
		Platform:           string(r.Platform),
		ReviewerName:       r.ReviewerName,
		Rating:             r.Rating,
		Content:            r.Content,
		OrderedItems:       r.OrderedItems,
		ReviewDate:         r.ReviewDate.Format("2006-01-02"),
		DeliveryFeedback:   r.DeliveryFeedback,
		Status:             string(r.Status),
		ReplyText:          r.ReplyText,
		GenerationAttempts: r.GenerationAttempts,
		PostAttempts:       r.PostAttempts,
		ErrorReason:        r.ErrorReason,
	}
	if r.PostedAt != nil {
		out.PostedAt = r.PostedAt.Format(time.RFC3339)
	}
	return out
}
