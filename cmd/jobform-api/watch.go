package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"jobform/internal/config"
	"jobform/internal/model"
	"jobform/internal/pubsub"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func watchCmd() *cobra.Command {
	var (
		tc      bool
		history int64
	)
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Print completion-form events of a job as they happen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer rdb.Close()

			kind := model.JobKindInternal
			if tc {
				kind = model.JobKindTC
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus := pubsub.New(rdb, zap.NewNop())
			enc := json.NewEncoder(cmd.OutOrStdout())
			if history > 0 {
				past, err := bus.History(ctx, string(kind), args[0], history)
				if err != nil {
					return err
				}
				for _, ev := range past {
					if err := enc.Encode(ev.Event); err != nil {
						return fmt.Errorf("failed to write event: %w", err)
					}
				}
			}
			for ev := range bus.Subscribe(ctx, string(kind), args[0]) {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("failed to write event: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tc, "tc", false, "Job is a TC job")
	cmd.Flags().Int64Var(&history, "history", 0, "Print this many past events first")
	return cmd
}
