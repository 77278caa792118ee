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

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the live status of a scan job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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
		status, err := svc.GetJobStatus(context.Background(), args[0])
		if err != nil {
			fatal(err)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("Job: %s\n", cyan(status.JobID))
		if status.IsCachedResult {
			fmt.Printf("Cached result of: %s\n", cyan(status.EffectiveJobID))
		}
		fmt.Printf("Status: %s\n", colorStatus(status.Status))
		fmt.Printf("Progress: %d%%", status.Progress)
		if status.Note != "" {
			fmt.Printf(" (%s)", status.Note)
		}
		fmt.Println()
		if status.Error != "" {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("Error: %s\n", red(status.Error))
		}
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent scan jobs for a user",
	Run: func(cmd *cobra.Command, args []string) {
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

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
		jobs, err := svc.ListJobs(context.Background(), user, limit)
		if err != nil {
			fatal(err)
		}

		if len(jobs) == 0 {
			fmt.Printf("No jobs found for user %s\n", user)
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		for _, job := range jobs {
			marker := " "
			if job.IsCachedResult {
				marker = "~"
			}
			fmt.Printf("%s %s  %-9s  %3d%%  %s  %s\n",
				marker,
				cyan(job.ID),
				colorStatus(job.Status),
				job.Progress,
				job.CreatedAt.Format("2006-01-02 15:04"),
				job.InputPattern)
		}
	},
}

func colorStatus(s types.JobStatus) string {
	switch s {
	case types.StatusCompleted:
		return color.GreenString(string(s))
	case types.StatusFailed:
		return color.RedString(string(s))
	case types.StatusRunning:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	jobsCmd.Flags().String("user", "cli", "Owner user id")
	jobsCmd.Flags().Int("limit", 20, "Maximum jobs to list")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
}
