package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedpush/internal/config"
	"feedpush/internal/telegram"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <message_file>",
	Short: "Deliver a pre-rendered message file to the chat",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("requires <message_file>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if err := cfg.Validate(true); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		tm := config.Duration(cfg.Telegram.Timeout, 20*time.Second)
		cli := telegram.New(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, tm, cfg.Telegram.MaxRetries)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Telegram.MaxRetries+1)*tm)
		defer cancel()

		if err := telegram.SendFile(ctx, cli, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
