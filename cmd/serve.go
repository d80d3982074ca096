package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/senyabanana/bounty-service/internal/handlers"
	"github.com/senyabanana/bounty-service/internal/router"

	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run database migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !skipMigrations {
				if err := runDBMigration(cfg.MigrationURL, cfg.PostgresConn, logger); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			timeout := cfg.RequestTimeout
			if timeout <= 0 {
				timeout = 3 * time.Minute
			}
			routes := router.InitRoutes(
				handlers.NewBountyHandler(a.facade, logger, timeout),
				handlers.NewBidHandler(a.facade, logger, timeout),
				handlers.NewMilestoneHandler(a.facade, logger, timeout),
				handlers.NewTransactionHandler(a.facade, logger, timeout),
			)

			server := &http.Server{
				Addr:              cfg.ServerAddress,
				Handler:           routes,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Infof("server is listening on %s...", cfg.ServerAddress)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("server failed")
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "start without applying migrations")
	return cmd
}
