package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var sessionJSON bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and retry extraction sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Restart a failed session if retries remain",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRetry,
}

func init() {
	sessionCmd.PersistentFlags().BoolVar(&sessionJSON, "json", false, "Output as JSON")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionRetryCmd)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Manager.GetActiveSessions(cmd.Context())
	if err != nil {
		return err
	}
	if sessionJSON {
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tRETRIES\tSTARTED\tURL")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Status, s.RetryCount, s.StartTime.Local().Format(time.DateTime), s.SourceURL)
	}
	return w.Flush()
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Manager.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if sessionJSON {
		return printJSON(s)
	}
	printSession(s)
	return nil
}

func runSessionRetry(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.Manager.RetryExtraction(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s has no retries left (max %d)", args[0], a.Manager.MaxRetries())
	}

	s, err := a.Manager.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Session %s restarted (attempt %d of %d)\n", s.ID, s.RetryCount+1, a.Manager.MaxRetries()+1)
	return nil
}

func printSession(s *types.ExtractionSession) {
	fmt.Printf("ID:       %s\n", s.ID)
	fmt.Printf("URL:      %s\n", s.SourceURL)
	fmt.Printf("Mode:     %s\n", s.Mode)
	fmt.Printf("Status:   %s\n", s.Status)
	fmt.Printf("Retries:  %d\n", s.RetryCount)
	fmt.Printf("Started:  %s\n", s.StartTime.Local().Format(time.DateTime))
	if s.EndTime != nil {
		fmt.Printf("Ended:    %s\n", s.EndTime.Local().Format(time.DateTime))
	}
	if s.Error != "" {
		fmt.Printf("Error:    %s\n", s.Error)
	}
	if c := s.ExtractedContent; c != nil {
		fmt.Printf("Title:    %s\n", c.Title)
		fmt.Printf("Words:    %d (%d min read, suitability %.2f)\n", c.Quality.WordCount, c.Quality.ReadingTime, c.Quality.SuitabilityScore)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
