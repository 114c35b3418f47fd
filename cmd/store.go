package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/output"
)

var (
	storeName          string
	storeCredentialRef string
	storePlatform      string
	storeDisabled      bool
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage registered stores",
	Long:  "Add, remove, list, and show storefront registrations.",
}

var storeAddCmd = &cobra.Command{
	Use:   "add <store-code> <platform> <platform-store-id>",
	Short: "Register a store for reply automation",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeAddRun(args[0], args[1], args[2])
	},
}

var storeRemoveCmd = &cobra.Command{
	Use:     "remove <store-code>",
	Aliases: []string{"rm"},
	Short:   "Remove a store from automation",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeRemoveRun(args[0])
	},
}

var storeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeListRun()
	},
}

var storeShowCmd = &cobra.Command{
	Use:   "show <store-code>",
	Short: "Show store details and reply policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeShowRun(args[0])
	},
}

func init() {
	storeAddCmd.Flags().StringVar(&storeName, "name", "", "Display name (default: store code)")
	storeAddCmd.Flags().StringVar(&storeCredentialRef, "credentials", "", "Credential entry name (default: store code)")
	storeAddCmd.Flags().BoolVar(&storeDisabled, "disabled", false, "Register without enabling auto-reply")

	storeListCmd.Flags().StringVar(&storePlatform, "platform", "", "Filter by platform")

	storeCmd.AddCommand(storeAddCmd)
	storeCmd.AddCommand(storeRemoveCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeShowCmd)
	rootCmd.AddCommand(storeCmd)
}

func storeAddRun(code, platformName, platformStoreID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	platform := models.Platform(platformName)
	if !slices.Contains(models.KnownPlatforms, platform) {
		return fmt.Errorf("unknown platform %q (known: %v)", platformName, models.KnownPlatforms)
	}

	name := storeName
	if name == "" {
		name = code
	}
	credRef := storeCredentialRef
	if credRef == "" {
		credRef = code
	}

	st := &models.Store{
		StoreCode:        code,
		Name:             name,
		Platform:         platform,
		PlatformStoreID:  platformStoreID,
		CredentialRef:    credRef,
		AutoReplyEnabled: !storeDisabled,
	}

	if dryRun {
		ui.DryRunMsg("Would register store %s on %s", code, platform)
		return nil
	}

	if err := s.CreateStore(ctx, st); err != nil {
		return err
	}

	// Every store starts with the default reply policy; tune it with
	// 'replypilot policy set'.
	if err := s.UpsertStorePolicy(ctx, models.DefaultPolicy(code)); err != nil {
		return err
	}

	ui.Success("Registered store %s (%s on %s)", code, name, platform)
	return nil
}

func storeRemoveRun(code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := s.GetStoreByCode(ctx, code); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove store %s", code)
		return nil
	}

	if err := s.DeleteStore(ctx, code); err != nil {
		return err
	}
	ui.Success("Removed store %s", code)
	return nil
}

func storeListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stores, err := s.ListStores(ctx, models.Platform(storePlatform))
	if err != nil {
		return err
	}

	if len(stores) == 0 {
		ui.Info("No stores registered. Use 'replypilot store add' to get started.")
		return nil
	}

	table := ui.Table([]string{"Code", "Name", "Platform", "Platform ID", "Auto-Reply"})
	for _, st := range stores {
		enabled := output.Green("on")
		if !st.AutoReplyEnabled {
			enabled = output.Yellow("off")
		}
		table.Append([]string{
			output.Cyan(st.StoreCode),
			st.Name,
			string(st.Platform),
			st.PlatformStoreID,
			enabled,
		})
	}
	table.Render()
	return nil
}

func storeShowRun(code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	st, err := s.GetStoreByCode(ctx, code)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(st.Name))
	fmt.Fprintf(ui.Out, "  Code:        %s\n", st.StoreCode)
	fmt.Fprintf(ui.Out, "  Platform:    %s (store id %s)\n", st.Platform, st.PlatformStoreID)
	fmt.Fprintf(ui.Out, "  Credentials: %s\n", st.CredentialRef)
	fmt.Fprintf(ui.Out, "  Auto-reply:  %v\n", st.AutoReplyEnabled)

	policy, err := s.GetStorePolicy(ctx, code)
	if err != nil {
		return nil
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Reply policy:\n")
	fmt.Fprintf(ui.Out, "  Role/Tone:      %s / %s\n", policy.Role, policy.Tone)
	fmt.Fprintf(ui.Out, "  Greeting:       %q ... %q\n", policy.GreetingStart, policy.GreetingEnd)
	fmt.Fprintf(ui.Out, "  Length:         %d-%d chars\n", policy.MinReplyLength, policy.MaxReplyLength)
	fmt.Fprintf(ui.Out, "  Ratings:        %s\n", formatRatingFlags(policy))
	fmt.Fprintf(ui.Out, "  Acceptance:     %.2f (max %d regenerations)\n", policy.AcceptanceThreshold, policy.MaxRegenAttempts)
	if policy.AutoReplyHours != "" {
		fmt.Fprintf(ui.Out, "  Hours:          %s\n", policy.AutoReplyHours)
	}
	if len(policy.RequiredPhrases) > 0 {
		fmt.Fprintf(ui.Out, "  Required:       %v\n", policy.RequiredPhrases)
	}
	if len(policy.BannedWords) > 0 {
		fmt.Fprintf(ui.Out, "  Banned:         %v\n", policy.BannedWords)
	}
	return nil
}

func formatRatingFlags(p *models.StorePolicy) string {
	flags := [5]bool{p.Rating1Reply, p.Rating2Reply, p.Rating3Reply, p.Rating4Reply, p.Rating5Reply}
	out := ""
	for i, on := range flags {
		if on {
			out += fmt.Sprintf("%d★ ", i+1)
		}
	}
	if out == "" {
		return "(none)"
	}
	return out[:len(out)-1]
}
