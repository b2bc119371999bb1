package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/scoring"
	"github.com/mind-engage/mindengage-exams/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the attempt sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		}()

		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		b, err := openBackend(openCtx, cfg)
		cancel()
		if err != nil {
			return err
		}
		defer b.Close()

		handler := api.Routes(api.Deps{
			Store:          b.store,
			Manager:        b.mgr,
			Aggregator:     scoring.NewAggregator(b.store),
			Auth:           auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
			Admin:          auth.Credentials{User: cfg.AdminUser, PassHash: cfg.AdminPassHash},
			Events:         b.events,
			Ping:           b.db.PingContext,
			CORSOrigins:    cfg.CORSOrigins(),
			RequestTimeout: cfg.RequestTimeout,
		})
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return exam.NewSweeper(b.mgr, cfg.SweepInterval).Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Printf("shutting down")
			return srv.Shutdown(sctx)
		})
		return g.Wait()
	},
}
