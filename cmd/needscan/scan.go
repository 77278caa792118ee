package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/scan"
	"github.com/nmery/needscan/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Enqueue a scan job",
	Long: `Enqueue a scan over clustered candidate files. The job runs when a
worker picks it up; poll it with 'needscan status <job-id>'.

An identical request from the same UTC day is answered with a cached job
that mirrors the original run instead of queueing new work.

Examples:
  # Queue a light scan over today's cluster files
  needscan scan --input "data/clusters_*.json"

  # Deep scan with a larger published list
  needscan scan --input "data/clusters_*.json" --run-mode deep --max-insights 30`,
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		runMode, _ := cmd.Flags().GetString("run-mode")
		maxInsights, _ := cmd.Flags().GetInt("max-insights")
		input, _ := cmd.Flags().GetString("input")
		user, _ := cmd.Flags().GetString("user")
		plan, _ := cmd.Flags().GetString("plan")

		cfg, err := loadConfig()
		if err != nil {
			fatal(err)
		}
		store, err := openStore(cfg)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		svc := scan.NewService(store, cfg, zap.NewNop())
		job, err := svc.CreateJob(context.Background(), user, types.Plan(plan), types.ScanRequest{
			Mode:         mode,
			RunMode:      types.RunMode(runMode),
			MaxInsights:  maxInsights,
			InputPattern: input,
		})
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		if job.IsCachedResult {
			fmt.Printf("%s Served from cache: %s\n", green("✓"), cyan(job.ID))
			fmt.Printf("  Mirrors job %s\n", cyan(job.EffectiveJobID()))
		} else {
			fmt.Printf("%s Queued scan job %s\n", green("✓"), cyan(job.ID))
		}
		fmt.Printf("  Mode: %s (%s), max insights: %d\n", job.Mode, job.RunMode, job.MaxInsights)
		fmt.Printf("  Input: %s\n", job.InputPattern)
		fmt.Printf("\nRun 'needscan status %s' to follow progress\n", job.ID)
	},
}

func init() {
	scanCmd.Flags().String("mode", "daily", "Scan mode label, part of the cache fingerprint")
	scanCmd.Flags().String("run-mode", "light", "Generation budget: light or deep")
	scanCmd.Flags().Int("max-insights", 20, "Maximum insights to publish")
	scanCmd.Flags().String("input", "", "Glob pattern for candidate cluster files (required)")
	scanCmd.Flags().String("user", "cli", "Owner user id")
	scanCmd.Flags().String("plan", "premium", "Billing plan: free or premium")
	scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}
