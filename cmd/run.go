package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/replypilot/replypilot/internal/engine"
	"github.com/replypilot/replypilot/internal/llm"
	"github.com/replypilot/replypilot/internal/output"
	"github.com/replypilot/replypilot/internal/platform"
	"github.com/replypilot/replypilot/internal/retry"
	"github.com/replypilot/replypilot/internal/runlock"
)

// adapterRegistry holds the platform adapters available to `run`. Adapter
// implementations register themselves from their own packages' init.
var adapterRegistry = platform.NewRegistry()

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending reviews for all enabled stores",
	Long: `Process pending reviews end-to-end for every store with auto-reply
enabled: generate a reply, quality-gate it, locate the review on the
platform, and post the accepted reply. Interrupting a run is safe;
in-flight reviews are recovered by 'replypilot review requeue'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return fmt.Errorf("anthropic.api_key is not configured (set REPLYPILOT_ANTHROPIC_API_KEY or run 'replypilot config init')")
	}
	gen := llm.NewClient(apiKey, viper.GetString("anthropic.model"))

	cfg := engine.Config{
		MaxConcurrentStores: viper.GetInt("engine.max_concurrent_stores"),
		MaxPerStore:         viper.GetInt("engine.max_per_store"),
		MaxScanPasses:       viper.GetInt("engine.max_scan_passes"),
		MaxRegenAttempts:    viper.GetInt("engine.max_regen_attempts"),
		MaxPostAttempts:     viper.GetInt("engine.max_post_attempts"),
		Retry: retry.Policy{
			MaxAttempts: viper.GetInt("retry.max_attempts"),
			BaseDelay:   viper.GetDuration("retry.base_delay"),
			MaxDelay:    time.Minute,
		},
		SubmitBurst: 1,
	}
	if iv := viper.GetDuration("engine.submit_interval"); iv > 0 {
		cfg.SubmitRate = rate.Every(iv)
	}

	if dryRun {
		ui.DryRunMsg("Would process up to %d reviews per store across %d parallel stores", cfg.MaxPerStore, cfg.MaxConcurrentStores)
		return nil
	}

	lock, err := runlock.Acquire(viper.GetString("state_dir"))
	if err != nil {
		return err
	}
	defer lock.Release()

	o := engine.New(s, gen, adapterRegistry, credentialsFromConfig, cfg, ui)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := o.Run(ctx)
	if err != nil {
		return err
	}

	printRunResult(res)
	if ctx.Err() != nil {
		ui.Warning("Run interrupted; 'replypilot review requeue' recovers in-flight reviews")
	}
	return nil
}

// credentialsFromConfig resolves a credential reference against the
// credentials section of the config file.
func credentialsFromConfig(ref string) (platform.Credentials, error) {
	key := "credentials." + ref
	if !viper.IsSet(key + ".username") {
		return platform.Credentials{}, fmt.Errorf("no credentials configured for %q", ref)
	}
	return platform.Credentials{
		Username: viper.GetString(key + ".username"),
		Password: viper.GetString(key + ".password"),
	}, nil
}

func printRunResult(res *engine.RunResult) {
	if len(res.Stores) == 0 {
		ui.Info("No enabled stores with a registered platform adapter.")
		return
	}

	table := ui.Table([]string{"Store", "Processed", "Posted", "Failed", "Manual", "Skipped", "Error"})
	for _, sr := range res.Stores {
		errStr := ""
		if sr.Error != "" {
			errStr = output.Red(sr.Error)
		}
		table.Append([]string{
			output.Cyan(sr.StoreCode),
			fmt.Sprintf("%d", sr.Processed),
			fmt.Sprintf("%d", sr.Posted),
			fmt.Sprintf("%d", sr.Failed),
			fmt.Sprintf("%d", sr.Manual),
			fmt.Sprintf("%d", sr.Skipped),
			errStr,
		})
	}
	table.Render()
	ui.Success("Posted %d replies", res.Posted())
}
