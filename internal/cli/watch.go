package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/domain"
	infraredis "live-quiz-service/internal/infra/redis"
)

// NewWatchCmd tails session events published over Redis.
func NewWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [SESSION_ID]",
		Short: "Print session events from Redis (all sessions when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis addr not configured")
			}

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()

			sessionID := "*"
			if len(args) == 1 {
				sessionID = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := json.NewEncoder(cmd.OutOrStdout())
			events := make(chan domain.SessionEvent, 64)
			cancel, err := infraredis.NewEventBus(client, logger).Subscribe(ctx, sessionID, func(evt domain.SessionEvent) {
				select {
				case events <- evt:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
			defer cancel()

			for {
				select {
				case evt := <-events:
					if err := out.Encode(evt); err != nil {
						return err
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
