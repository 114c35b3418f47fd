package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replypilot/replypilot/internal/health"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/output"
	"github.com/replypilot/replypilot/internal/store"
)

var statusPlatform string

var statusCmd = &cobra.Command{
	Use:   "status [store-code]",
	Short: "Show the reply-pipeline dashboard",
	Long: `Show a cross-store pipeline overview or detailed status for one store.

Without arguments, shows a summary table of all registered stores.
With a store code, shows that store's queue breakdown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusStoreRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPlatform, "platform", "", "Filter by platform")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stores, err := s.ListStores(ctx, models.Platform(statusPlatform))
	if err != nil {
		return err
	}

	if len(stores) == 0 {
		ui.Info("No stores registered. Use 'replypilot store add' to get started.")
		return nil
	}

	scorer := health.NewScorer()
	table := ui.Table([]string{"Store", "Platform", "Pending", "Posted", "Failed", "Manual", "Health"})

	for _, st := range stores {
		counts, err := s.CountByStatus(ctx, st.StoreCode)
		if err != nil {
			return err
		}
		meta := gatherMetadata(ctx, s, st.StoreCode, counts)
		h := scorer.Compute(meta)

		table.Append([]string{
			output.Cyan(st.StoreCode),
			string(st.Platform),
			fmt.Sprintf("%d", counts[models.StatusPending]),
			fmt.Sprintf("%d", counts[models.StatusPosted]),
			fmt.Sprintf("%d", counts[models.StatusFailed]),
			fmt.Sprintf("%d", counts[models.StatusManualRequired]),
			fmt.Sprintf("%s (%s)", output.HealthColor(h.Total), health.Label(h.Total)),
		})
	}

	table.Render()
	return nil
}

func statusStoreRun(code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	st, err := s.GetStoreByCode(ctx, code)
	if err != nil {
		return err
	}

	counts, err := s.CountByStatus(ctx, code)
	if err != nil {
		return err
	}

	meta := gatherMetadata(ctx, s, code, counts)
	h := health.NewScorer().Compute(meta)

	fmt.Fprintf(ui.Out, "%s  %s (%s)\n", output.Cyan(st.Name), output.HealthColor(h.Total), health.Label(h.Total))
	fmt.Fprintf(ui.Out, "  Backlog:     %d/30\n", h.Backlog)
	fmt.Fprintf(ui.Out, "  Failures:    %d/25\n", h.FailureRate)
	fmt.Fprintf(ui.Out, "  Escalations: %d/25\n", h.EscalationLoad)
	fmt.Fprintf(ui.Out, "  Recency:     %d/20\n", h.PostRecency)
	fmt.Fprintln(ui.Out)

	for _, status := range []models.ReplyStatus{
		models.StatusPending, models.StatusGenerating, models.StatusQualityReview,
		models.StatusRegenerate, models.StatusReady, models.StatusPosting,
		models.StatusPosted, models.StatusFailed, models.StatusManualRequired,
	} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(ui.Out, "  %-16s %d\n", output.StatusColor(string(status)), n)
		}
	}
	return nil
}

// gatherMetadata builds health inputs from queue counts and the latest
// posted reply.
func gatherMetadata(ctx context.Context, s store.Store, code string, counts map[models.ReplyStatus]int) *health.StoreMetadata {
	meta := &health.StoreMetadata{Counts: counts}

	posted, err := s.ListReviews(ctx, store.ReviewListFilter{
		StoreCode: code,
		Status:    models.StatusPosted,
		Limit:     1,
	})
	if err == nil && len(posted) > 0 && posted[0].PostedAt != nil {
		meta.LastPostedAt = *posted[0].PostedAt
	}
	return meta
}
