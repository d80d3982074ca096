package main

import (
	"errors"
	"fmt"

	"github.com/senyabanana/bounty-service/internal/router/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runDBMigration(cfg.MigrationURL, cfg.PostgresConn, logger)
		},
	}
}

func loadConfig(path string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("cannot load config: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func runDBMigration(migrationURL string, dbSource string, logger *logrus.Logger) error {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		return fmt.Errorf("cannot create a new migrate instance: %w", err)
	}
	defer migration.Close()

	if err = migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrate up: %w", err)
	}
	logger.Info("db migrated successfully")
	return nil
}
