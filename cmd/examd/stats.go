package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-exams/internal/scoring"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print attempt statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		examIDs, _ := cmd.Flags().GetStringSlice("exam")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		st, err := scoring.NewAggregator(b.store).StatisticsFor(cmd.Context(), examIDs...)
		if err != nil {
			return fmt.Errorf("statistics: %w", err)
		}
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "Attempts:            %d\n", st.Count)
		fmt.Fprintf(out, "Participants:        %d\n", st.UniqueParticipants)
		fmt.Fprintf(out, "Completed:           %d\n", st.CompletedCount)
		fmt.Fprintf(out, "Average score:       %.1f%%\n", st.AverageScore)
		fmt.Fprintf(out, "Highest / lowest:    %.1f%% / %.1f%%\n", st.HighestScore, st.LowestScore)
		fmt.Fprintf(out, "Avg completion time: %.1f min\n", st.AverageCompletionMinutes)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%-8s  %s\n", "Score", "Attempts")
		fmt.Fprintln(out, strings.Repeat("─", 30))
		for _, bk := range st.ScoreDistribution {
			fmt.Fprintf(out, "%-8s  %d\n", bk.Label, bk.Count)
		}
		if len(st.AttemptsOverTime) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-10s  %s\n", "Date", "Started")
			fmt.Fprintln(out, strings.Repeat("─", 30))
			for _, d := range st.AttemptsOverTime {
				fmt.Fprintf(out, "%-10s  %d\n", d.Date, d.Count)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringSlice("exam", nil, "Exam id to include (repeatable; default all exams)")
	statsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}
