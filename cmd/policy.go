package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/replypilot/replypilot/internal/models"
)

var (
	policyGreetingStart string
	policyGreetingEnd   string
	policyRole          string
	policyTone          string
	policyBanned        []string
	policyRequired      []string
	policyMaxLength     int
	policyMinLength     int
	policyRatings       string
	policyThreshold     float64
	policyMaxRegen      int
	policyHours         string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage per-store reply policies",
}

var policySetCmd = &cobra.Command{
	Use:   "set <store-code>",
	Short: "Update a store's reply policy",
	Long: `Update a store's reply policy. Only the flags you pass change;
everything else keeps its current value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return policySetRun(cmd, args[0])
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <store-code>",
	Short: "Show a store's reply policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeShowRun(args[0])
	},
}

func init() {
	f := policySetCmd.Flags()
	f.StringVar(&policyGreetingStart, "greeting-start", "", "Opening greeting for replies")
	f.StringVar(&policyGreetingEnd, "greeting-end", "", "Closing greeting for replies")
	f.StringVar(&policyRole, "role", "", "Persona for the generator")
	f.StringVar(&policyTone, "tone", "", "Tone for the generator")
	f.StringSliceVar(&policyBanned, "banned", nil, "Words replies must never contain")
	f.StringSliceVar(&policyRequired, "required", nil, "Phrases every reply must contain")
	f.IntVar(&policyMaxLength, "max-length", 0, "Maximum reply length in characters")
	f.IntVar(&policyMinLength, "min-length", 0, "Minimum reply length in characters")
	f.StringVar(&policyRatings, "ratings", "", "Star ratings to auto-reply to, e.g. \"1,2,4,5\"")
	f.Float64Var(&policyThreshold, "threshold", 0, "Quality-gate acceptance threshold (0-1)")
	f.IntVar(&policyMaxRegen, "max-regen", 0, "Generation attempts before manual escalation")
	f.StringVar(&policyHours, "hours", "", "Auto-reply window, e.g. \"10:00-22:00\" (empty = always)")

	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyShowCmd)
	rootCmd.AddCommand(policyCmd)
}

func policySetRun(cmd *cobra.Command, code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := s.GetStoreByCode(ctx, code); err != nil {
		return err
	}

	policy, err := s.GetStorePolicy(ctx, code)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("greeting-start") {
		policy.GreetingStart = policyGreetingStart
	}
	if f.Changed("greeting-end") {
		policy.GreetingEnd = policyGreetingEnd
	}
	if f.Changed("role") {
		policy.Role = policyRole
	}
	if f.Changed("tone") {
		policy.Tone = policyTone
	}
	if f.Changed("banned") {
		policy.BannedWords = policyBanned
	}
	if f.Changed("required") {
		policy.RequiredPhrases = policyRequired
	}
	if f.Changed("max-length") {
		policy.MaxReplyLength = policyMaxLength
	}
	if f.Changed("min-length") {
		policy.MinReplyLength = policyMinLength
	}
	if f.Changed("ratings") {
		if err := applyRatingFlags(policy, policyRatings); err != nil {
			return err
		}
	}
	if f.Changed("threshold") {
		if policyThreshold < 0 || policyThreshold > 1 {
			return fmt.Errorf("threshold must be between 0 and 1")
		}
		policy.AcceptanceThreshold = policyThreshold
	}
	if f.Changed("max-regen") {
		policy.MaxRegenAttempts = policyMaxRegen
	}
	if f.Changed("hours") {
		policy.AutoReplyHours = policyHours
		if err := policy.ValidateAutoReplyHours(); err != nil {
			return fmt.Errorf("invalid hours window %q (want \"HH:MM-HH:MM\")", policyHours)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would update policy for store %s", code)
		return nil
	}

	if err := s.UpsertStorePolicy(ctx, policy); err != nil {
		return err
	}
	ui.Success("Updated policy for store %s", code)
	return nil
}

// applyRatingFlags enables exactly the listed star ratings.
func applyRatingFlags(p *models.StorePolicy, spec string) error {
	enabled := map[int]bool{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 5 {
			return fmt.Errorf("invalid rating %q (want 1-5)", part)
		}
		enabled[n] = true
	}
	for r := 1; r <= 5; r++ {
		p.SetRatingReply(r, enabled[r])
	}
	return nil
}
