package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-exams/internal/scoring"
	"github.com/mind-engage/mindengage-exams/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive the results CSV of one or more exams",
	RunE: func(cmd *cobra.Command, args []string) error {
		examIDs, _ := cmd.Flags().GetStringSlice("exam")
		dir, _ := cmd.Flags().GetString("dir")
		if len(examIDs) == 0 {
			return fmt.Errorf("--exam is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dir == "" {
			dir = cfg.ExportDir
		}
		blobs, err := storage.NewFSStore(dir)
		if err != nil {
			return fmt.Errorf("export dir: %w", err)
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		agg := scoring.NewAggregator(b.store)
		now := time.Now()
		for _, id := range examIDs {
			key, err := agg.ArchiveResults(cmd.Context(), blobs, id, now)
			if err != nil {
				return fmt.Errorf("export %s: %w", id, err)
			}
			u, _ := blobs.URL(key)
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringSlice("exam", nil, "Exam id to export (repeatable)")
	exportCmd.Flags().String("dir", "", "Output directory (overrides EXPORT_DIR)")
}
