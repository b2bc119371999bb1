package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>...",
	Short: "Load exam definitions (one exam or an array) into the database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		for _, path := range args {
			exams, err := readExams(path)
			if err != nil {
				return err
			}
			for _, e := range exams {
				if err := b.store.PutExam(cmd.Context(), e); err != nil {
					return fmt.Errorf("%s: exam %s: %w", path, e.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d questions, %s)\n", e.ID, len(e.Questions), e.Status)
			}
		}
		return nil
	},
}

func readExams(path string) ([]exam.Exam, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	exams, err := exam.DecodeExams(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exams, nil
}
