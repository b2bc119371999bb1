package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:          "examd",
	Short:        "Timed exam attempts, answer checking and score reports",
	SilenceUsage: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite|postgres (overrides DB_DRIVER)")
	rootCmd.PersistentFlags().String("db", "", "Database DSN (overrides DB_DSN)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadConfig reads the environment and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.DBDriver = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBDSN = v
	}
	return cfg, nil
}

// backend is everything a command needs to talk to the database.
type backend struct {
	db     *sql.DB
	store  *exam.SQLStore
	events *syncx.EventRepo
	mgr    *exam.Manager
}

func (b *backend) Close() error { return b.db.Close() }

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	drv, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, drv, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := exam.NewSQLStore(conn)
	events := syncx.NewEventRepo(conn, cfg.SiteID)
	return &backend{
		db:     conn,
		store:  store,
		events: events,
		mgr:    exam.NewManager(store, exam.WithEvents(events)),
	}, nil
}
