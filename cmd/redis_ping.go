package cmd

import (
	"context"
	"fmt"
	"time"

	"feedpush/internal/redisclient"
	"feedpush/internal/storage"

	"github.com/spf13/cobra"
)

// pingCmd pings the configured Redis server and prints the dedup set sizes.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping Redis and print the size of the seen sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		s := storage.NewRedisStore(redisclient.New(cfg.Redis), cfg.Store.KeyPrefix)
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.Ping(ctx); err != nil {
			return err
		}
		urls, titles, err := s.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "PONG (%s: %d seen urls, %d seen titles)\n", cfg.Redis.Addr, urls, titles)
		return nil
	},
}

func init() {
	redisCmd.AddCommand(pingCmd)
}
