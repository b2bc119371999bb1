package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Delete a participant's attempt so the exam can be retaken",
	RunE: func(cmd *cobra.Command, args []string) error {
		examID, _ := cmd.Flags().GetString("exam")
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if examID == "" {
			return fmt.Errorf("--exam is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		p := exam.Participant{Name: name, Email: email}
		n, err := b.mgr.Restart(cmd.Context(), examID, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d attempt(s) for %s on %s\n", n, p.Key(), examID)
		return nil
	},
}

func init() {
	restartCmd.Flags().String("exam", "", "Exam id")
	restartCmd.Flags().String("name", "", "Participant name")
	restartCmd.Flags().String("email", "", "Participant email (takes precedence over name)")
}
