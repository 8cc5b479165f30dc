package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished extractions, most recent first",
	RunE:  runHistory,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize extraction outcomes",
	RunE:  runAnalytics,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire stale sessions and prune old history",
	RunE:  runCleanup,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	analyticsCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Manager.GetExtractionHistory(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tURL\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Status, e.URL, e.Error)
	}
	return w.Flush()
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Manager.GetAnalyticsSummary(cmd.Context())
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(summary)
	}

	fmt.Printf("Extractions:     %d\n", summary.TotalExtractions)
	fmt.Printf("  Successful:    %d\n", summary.SuccessfulExtractions)
	fmt.Printf("  Failed:        %d\n", summary.FailedExtractions)
	fmt.Printf("Average retries: %.2f\n", summary.AverageRetries)
	if len(summary.MostCommonErrors) > 0 {
		fmt.Println("Most common errors:")
		for _, e := range summary.MostCommonErrors {
			fmt.Printf("  %4d  %s\n", e.Count, e.Error)
		}
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.Manager.CleanupExpiredSessions(cmd.Context())
	if err != nil {
		return err
	}
	pruned, err := a.Manager.PruneHistory(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired sessions, pruned %d history entries\n", removed, pruned)
	return nil
}
