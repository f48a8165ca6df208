package main

import (
	"fmt"
	"os"

	"jobform/internal/config"
	"jobform/internal/db"
	"jobform/internal/model"
	"jobform/internal/pubsub"
	"jobform/internal/schema"
	"jobform/internal/service"
	"jobform/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// templateFile is the layout of a seed file.
type templateFile struct {
	Templates []model.Template `yaml:"templates"`
}

func loadTemplateFile(path string) ([]model.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("%s: no templates", path)
	}
	return f.Templates, nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-templates <file.yaml>",
		Short: "Create or replace form templates from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := loadTemplateFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer dbPool.Close()

			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer rdb.Close()

			forms := service.NewFormService(dbPool.Queries, schema.NewCompilerWithCache(cfg.SchemaCacheSize),
				nil, storage.PhotoPolicy(cfg.PhotoMaxMB), pubsub.New(rdb, logger), logger)
			for _, t := range templates {
				if _, err := forms.SeedTemplate(ctx, t); err != nil {
					return fmt.Errorf("template %s: %w", t.ID, err)
				}
				logger.Info("Template seeded", zap.String("template_id", t.ID), zap.Int("groups", len(t.Groups)))
			}
			return nil
		},
	}
}
