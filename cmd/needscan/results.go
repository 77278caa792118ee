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

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Show a completed scan's ranked insights",
	Long: `Show the published insight list of a completed scan, highest adjusted
priority first. Cached jobs resolve to their canonical run transparently.

Examples:
  # Top insights for a run
  needscan results 7c2a...

  # Only one sector, including audit rows the reranker excluded
  needscan results 7c2a... --sector dev_tools --audit`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		sector, _ := cmd.Flags().GetString("sector")
		audit, _ := cmd.Flags().GetBool("audit")

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
		insights, err := svc.GetResults(context.Background(), args[0], scan.ResultFilter{
			Limit:        limit,
			Sector:       types.Sector(sector),
			IncludeAudit: audit,
		})
		if err != nil {
			fatal(err)
		}

		if len(insights) == 0 {
			fmt.Println("No insights matched")
			return
		}

		bold := color.New(color.Bold).SprintFunc()
		dim := color.New(color.Faint).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		for _, ins := range insights {
			header := fmt.Sprintf("#%d %s", ins.Rank, ins.Title)
			if ins.MMRRank == 0 {
				header += dim(" (audit only)")
			}
			fmt.Printf("%s\n", bold(header))
			fmt.Printf("  Sector: %s, cluster size: %d\n", ins.Sector, ins.ClusterSize)
			fmt.Printf("  Priority: %.2f adjusted (%.2f raw)\n", ins.PriorityAdjusted, ins.PriorityRaw)
			fmt.Printf("  Signals: pain %.1f, traction %.1f, novelty %.1f, wtp %.1f, trend %.1f\n",
				ins.Signals.Pain, ins.Signals.Traction, ins.Signals.Novelty, ins.Signals.WTP, ins.Signals.Trend)
			if ins.Signals.FounderFit != nil {
				fmt.Printf("  Founder fit: %.1f\n", *ins.Signals.FounderFit)
			}
			switch {
			case ins.IsHistoricalDup:
				fmt.Printf("  %s duplicate of a recent run (similarity %.3f)\n", yellow("⚠"), ins.MaxSimilarity)
			case ins.IsRecurringTheme:
				fmt.Printf("  %s recurring theme (similarity %.3f)\n", yellow("⚠"), ins.MaxSimilarity)
			}
			if ins.Summary != "" {
				fmt.Printf("  %s\n", ins.Summary)
			}
			fmt.Println()
		}
	},
}

func init() {
	resultsCmd.Flags().Int("limit", 0, "Maximum insights to show (0 = all published)")
	resultsCmd.Flags().String("sector", "", "Only show insights from this sector")
	resultsCmd.Flags().Bool("audit", false, "Include insights the diversity reranker excluded")
	rootCmd.AddCommand(resultsCmd)
}
