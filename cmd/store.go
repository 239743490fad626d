package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"feedpush/internal/selection"
	"feedpush/internal/storage"

	"github.com/spf13/cobra"
)

// storeCmd groups dedup store maintenance subcommands.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Dedup store utilities",
}

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Forget pushed urls/titles older than a cutoff and past board usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if pruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		before, day := pruneCutoffs(time.Now(), pruneOlderThan, cfg.Selection.DayOffset())
		n, err := s.Prune(ctx, before, day)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries (seen before %s, usage before %s)\n",
			n, before.UTC().Format(time.RFC3339), day)
		return nil
	},
}

// pruneCutoffs returns the seen-entry cutoff and the first usage day to keep.
// Only today's usage feeds selection, so every earlier day is dropped.
func pruneCutoffs(now time.Time, olderThan time.Duration, dayOffsetHours int) (time.Time, string) {
	return now.Add(-olderThan), selection.DayKey(now, dayOffsetHours)
}

var usageDay string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print board usage counters for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		day := usageDay
		if day == "" {
			day = selection.DayKey(time.Now(), cfg.Selection.DayOffset())
		} else if _, err := time.Parse("2006-01-02", day); err != nil {
			return fmt.Errorf("--day must be YYYY-MM-DD: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		usage, err := s.BoardUsage(ctx, day)
		if err != nil {
			return err
		}
		boards := make([]string, 0, len(usage))
		for b := range usage {
			boards = append(boards, b)
		}
		sort.Strings(boards)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Board usage for %s (%d distinct)\n", day, len(boards))
		for _, b := range boards {
			fmt.Fprintf(out, "%-20s %d\n", b, usage[b])
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "drop seen entries last pushed before now minus this duration")
	usageCmd.Flags().StringVar(&usageDay, "day", "", "day key YYYY-MM-DD (default: today in the configured offset)")
	storeCmd.AddCommand(pruneCmd, usageCmd)
	rootCmd.AddCommand(storeCmd)
}
