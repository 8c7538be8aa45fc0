package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/hooky/internal/api"
	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/capture"
	"github.com/mattjoyce/hooky/internal/events"
	"github.com/mattjoyce/hooky/internal/lock"
	"github.com/mattjoyce/hooky/internal/log"
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/scheduler"
	"github.com/mattjoyce/hooky/internal/session"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
	"github.com/mattjoyce/hooky/internal/sweep"
	"github.com/mattjoyce/hooky/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireSecrets(); err != nil {
			return err
		}

		logger := log.WithComponent("main")
		logger.Info("hooky starting", "version", Version, "listen", cfg.Server.Listen)

		pidLock, err := lock.Acquire(cfg.Server.LockPath)
		if err != nil {
			return fmt.Errorf("acquire lock (another instance may be running): %w", err)
		}
		defer pidLock.Release() //nolint:errcheck
		logger.Info("acquired PID lock", "path", pidLock.Path())

		ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log.WithComponent("storage"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close() //nolint:errcheck
		logger.Info("database opened", "driver", cfg.Database.Driver)

		s := store.New()
		hub := events.NewHub()
		defer hub.Close()

		replies := response.NewResolver(db, s)
		webhooks := webhook.NewService(db, s, replies, log.WithComponent("webhook"))
		tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

		capt := capture.New(capture.Config{
			MaxBodyBytes:           cfg.Capture.MaxBodyBytes(),
			BinaryPrefixes:         cfg.Capture.BinaryPrefixes,
			ExcludedHeaderPrefixes: cfg.Capture.ExcludedHeaderPrefixes,
			ReadTimeout:            cfg.Server.ReadTimeout,
		}, webhooks, db, s, hub, replies, log.WithComponent("capture"))

		server := api.New(api.Config{
			Listen:          cfg.Server.Listen,
			BaseURL:         cfg.Server.BaseURL,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			CORSOrigins:     cfg.Server.CORSOrigins,
			SecureCookies:   cfg.Session.SecureCookies,
		}, api.Deps{
			DB:       db,
			Webhooks: webhooks,
			Users:    auth.NewUsers(db, s, tokens, log.WithComponent("auth")),
			Tokens:   tokens,
			Sessions: session.NewManager(cfg.Session.Secret, cfg.Session.ExpiryDays, cfg.Session.SecureCookies),
			Hub:      hub,
			Capture:  capt,
		}, log.WithComponent("api"))

		sweeper := sweep.New(db, s, cfg.Retention.Window(), log.WithComponent("sweep"))
		sched, err := scheduler.New(cfg.Retention.Schedule, sweeper, log.WithComponent("scheduler"))
		if err != nil {
			return err
		}

		errg, gctx := errgroup.WithContext(ctx)
		errg.Go(func() error {
			return server.Start(gctx)
		})
		errg.Go(func() error {
			sched.Start(gctx)
			logger.Info("retention sweep scheduled", "schedule", cfg.Retention.Schedule, "next", sched.Next())
			<-gctx.Done()
			sched.Stop()
			return nil
		})

		if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("hooky stopped")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the anonymous data retention sweep once and exit",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := c.Context()

		db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log.WithComponent("storage"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close() //nolint:errcheck

		n, err := sweep.New(db, store.New(), cfg.Retention.Window(), log.WithComponent("sweep")).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "Deleted %d expired anonymous request(s)\n", n)
		return nil
	},
}
