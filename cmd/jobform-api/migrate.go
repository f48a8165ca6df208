package main

import (
	"database/sql"
	"fmt"
	"os"

	"jobform/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.MigrationsDir = dir
			}
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			return runGooseMigrations(cfg.DatabaseURL, cfg.MigrationsDir, command)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (overrides GOOSE_MIGRATIONS_DIR)")
	return cmd
}

func runGooseMigrations(databaseURL, migrationsDir, command string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsDir)
	}

	switch command {
	case "up":
		err = goose.Up(db, migrationsDir)
	case "down":
		err = goose.Down(db, migrationsDir)
	case "status":
		err = goose.Status(db, migrationsDir)
	default:
		return fmt.Errorf("unknown migrate command %q (use up, down or status)", command)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
