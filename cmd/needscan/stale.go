package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Recover jobs abandoned by dead workers",
	Long: `Reset running jobs whose heartbeat has gone quiet back to queued so a
live worker can pick them up again. Partial results from the dead run are
discarded; the rerun starts clean.

Examples:
  # Show the queue and reset jobs stale past the configured threshold
  needscan stale --reset

  # Use a custom staleness threshold
  needscan stale --reset --threshold 15m`,
	Run: func(cmd *cobra.Command, args []string) {
		thresholdStr, _ := cmd.Flags().GetString("threshold")
		reset, _ := cmd.Flags().GetBool("reset")

		cfg, err := loadConfig()
		if err != nil {
			fatal(err)
		}

		threshold := cfg.Worker.StaleThreshold
		if thresholdStr != "" {
			threshold, err = time.ParseDuration(thresholdStr)
			if err != nil {
				fatal(fmt.Errorf("invalid threshold %q: %w", thresholdStr, err))
			}
		}

		store, err := openStore(cfg)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		ctx := context.Background()
		counts, err := store.QueueCounts(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Queue: %d queued, %d running, %d completed, %d failed\n",
			counts["queued"], counts["running"], counts["completed"], counts["failed"])

		if !reset {
			fmt.Println("\nRun 'needscan stale --reset' to requeue jobs with stale heartbeats")
			return
		}

		cutoff := time.Now().UTC().Add(-threshold)
		n, err := store.ResetStaleJobs(ctx, cutoff)
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		if n == 0 {
			fmt.Printf("%s No stale jobs found (threshold %s)\n", green("✓"), threshold)
			return
		}
		fmt.Printf("%s Reset %d stale job(s) back to queued\n", green("✓"), n)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Prune old history ledger entries",
	Long: `Delete history entries older than the retention period. Workers run
this nightly on a schedule; the command exists for manual runs and
one-off retention changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		retentionDays, _ := cmd.Flags().GetInt("retention-days")

		cfg, err := loadConfig()
		if err != nil {
			fatal(err)
		}
		if retentionDays == 0 {
			retentionDays = cfg.History.RetentionDays
		}

		store, err := openStore(cfg)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		n, err := store.SweepHistory(context.Background(), cutoff)
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed %d history entries older than %d days\n", green("✓"), n, retentionDays)
	},
}

func init() {
	staleCmd.Flags().String("threshold", "", "Heartbeat staleness threshold (default: config value)")
	staleCmd.Flags().Bool("reset", false, "Requeue stale jobs")
	sweepCmd.Flags().Int("retention-days", 0, "Retention period in days (default: config value)")
	rootCmd.AddCommand(staleCmd)
	rootCmd.AddCommand(sweepCmd)
}
