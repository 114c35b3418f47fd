package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/replypilot/replypilot/internal/ingest"
	"github.com/replypilot/replypilot/internal/models"
)

var ingestStoreCode string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load scraped reviews into the queue",
	Long: `Load scraped reviews from a YAML file (or stdin with "-") into the
review queue. Ingestion is idempotent: reviews already known by id are
skipped, and reviews that already carry an owner reply are stored as
answered so they are never picked up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ingestRun(args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestStoreCode, "store", "", "Store code applied to entries that omit one")
	rootCmd.AddCommand(ingestCmd)
}

// rawReviewFile is the on-disk shape of one scraped review.
type rawReviewFile struct {
	Platform         string   `yaml:"platform"`
	StoreCode        string   `yaml:"store_code"`
	NativeID         string   `yaml:"native_id"`
	ReviewerName     string   `yaml:"reviewer_name"`
	Rating           int      `yaml:"rating"`
	Content          string   `yaml:"content"`
	OrderedItems     []string `yaml:"ordered_items"`
	Date             string   `yaml:"date"`
	DeliveryFeedback string   `yaml:"delivery_feedback"`
	HasOwnerReply    bool     `yaml:"has_owner_reply"`
}

func ingestRun(path string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read reviews: %w", err)
	}

	var entries []rawReviewFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse reviews: %w", err)
	}

	var defaultPlatform models.Platform
	if ingestStoreCode != "" {
		st, err := s.GetStoreByCode(ctx, ingestStoreCode)
		if err != nil {
			return err
		}
		defaultPlatform = st.Platform
	}

	raws := make([]ingest.RawReview, 0, len(entries))
	for _, e := range entries {
		raw := ingest.RawReview{
			Platform:         models.Platform(e.Platform),
			StoreCode:        e.StoreCode,
			NativeID:         e.NativeID,
			ReviewerName:     e.ReviewerName,
			Rating:           e.Rating,
			Content:          e.Content,
			OrderedItems:     e.OrderedItems,
			DateText:         e.Date,
			DeliveryFeedback: e.DeliveryFeedback,
			HasOwnerReply:    e.HasOwnerReply,
		}
		if raw.StoreCode == "" {
			raw.StoreCode = ingestStoreCode
		}
		if raw.Platform == "" {
			raw.Platform = defaultPlatform
		}
		raws = append(raws, raw)
	}

	if dryRun {
		ui.DryRunMsg("Would ingest %d reviews", len(raws))
		return nil
	}

	res, err := ingest.New(s).Ingest(ctx, raws)
	if err != nil {
		return err
	}

	ui.Success("Ingested %d new reviews (%d already known, %d invalid)", res.Inserted, res.Skipped, res.Invalid)
	return nil
}
