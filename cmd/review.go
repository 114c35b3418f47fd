package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/output"
	"github.com/replypilot/replypilot/internal/store"
)

var (
	reviewStoreCode string
	reviewStatus    string
	reviewLimit     int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and manage collected reviews",
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List collected reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show one review with its reply state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

var reviewResetCmd = &cobra.Command{
	Use:   "reset <review-id>",
	Short: "Put a review back to pending, clearing its error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewResetRun(args[0])
	},
}

var reviewRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Re-queue failed reviews for another posting attempt",
	Long: `Re-queue failed reviews below the post-attempt ceiling back to pending
and escalate the rest to manual_required. Also recovers reviews left
in-flight by an interrupted run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRequeueRun()
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStoreCode, "store", "", "Filter by store code")
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "Filter by reply status")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "Maximum rows")

	reviewRequeueCmd.Flags().StringVar(&reviewStoreCode, "store", "", "Limit to one store")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewResetCmd)
	reviewCmd.AddCommand(reviewRequeueCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	reviews, err := s.ListReviews(ctx, store.ReviewListFilter{
		StoreCode: reviewStoreCode,
		Status:    models.ReplyStatus(reviewStatus),
		Limit:     reviewLimit,
	})
	if err != nil {
		return err
	}

	if len(reviews) == 0 {
		ui.Info("No reviews match.")
		return nil
	}

	table := ui.Table([]string{"ID", "Store", "Reviewer", "Rating", "Date", "Status", "Attempts"})
	for _, r := range reviews {
		table.Append([]string{
			r.ID[:12],
			r.StoreCode,
			r.ReviewerName,
			formatRating(r),
			r.ReviewDate.Format("2006-01-02"),
			output.StatusColor(string(r.Status)),
			fmt.Sprintf("%dg/%dp", r.GenerationAttempts, r.PostAttempts),
		})
	}
	table.Render()
	return nil
}

func reviewShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	r, err := s.GetReview(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(r.ID), output.StatusColor(string(r.Status)))
	fmt.Fprintf(ui.Out, "  Store:      %s (%s)\n", r.StoreCode, r.Platform)
	fmt.Fprintf(ui.Out, "  Reviewer:   %s\n", r.ReviewerName)
	fmt.Fprintf(ui.Out, "  Rating:     %s\n", formatRating(r))
	fmt.Fprintf(ui.Out, "  Date:       %s\n", r.ReviewDate.Format("2006-01-02"))
	if len(r.OrderedItems) > 0 {
		fmt.Fprintf(ui.Out, "  Ordered:    %s\n", strings.Join(r.OrderedItems, ", "))
	}
	if r.DeliveryFeedback != "" {
		fmt.Fprintf(ui.Out, "  Delivery:   %s\n", r.DeliveryFeedback)
	}
	fmt.Fprintf(ui.Out, "  Review:     %s\n", r.Content)
	if r.ReplyText != "" {
		fmt.Fprintf(ui.Out, "  Reply:      %s\n", r.ReplyText)
	}
	fmt.Fprintf(ui.Out, "  Attempts:   %d generation, %d post\n", r.GenerationAttempts, r.PostAttempts)
	if r.ErrorReason != "" {
		fmt.Fprintf(ui.Out, "  Error:      %s\n", output.Red(r.ErrorReason))
	}
	if r.PostedAt != nil {
		fmt.Fprintf(ui.Out, "  Posted:     %s\n", r.PostedAt.Format(time.RFC3339))
	}
	return nil
}

func reviewResetRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would reset review %s to pending", id)
		return nil
	}

	if err := s.ResetReview(ctx, id); err != nil {
		return err
	}
	ui.Success("Review %s reset to pending", id)
	return nil
}

func reviewRequeueRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ui.DryRunMsg("Would requeue failed reviews")
		return nil
	}

	maxPost := viper.GetInt("engine.max_post_attempts")
	requeued, escalated, err := s.RequeueFailed(ctx, reviewStoreCode, maxPost)
	if err != nil {
		return err
	}
	ui.Success("Requeued %d reviews, escalated %d to manual review", requeued, escalated)
	return nil
}

func formatRating(r *models.ReviewRecord) string {
	if !r.HasRating() {
		return "-"
	}
	return strings.Repeat("★", r.Rating)
}
