package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one fetch-select-deliver pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, store, err := buildPusher(ctx, cfg, runDryRun, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer store.Close()

		rep, err := p.RunOnce(ctx)
		if err != nil {
			return err
		}
		if runDryRun {
			fmt.Fprint(cmd.OutOrStdout(), rep.Message)
			return nil
		}
		if rep.DeliveryErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Delivery failed (run %s): %v\n", rep.RunID, rep.DeliveryErr)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d items (run %s, persisted=%v)\n",
			len(rep.Selection.Picks), rep.RunID, rep.Persisted)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the message instead of delivering it; nothing is persisted")
	rootCmd.AddCommand(runCmd)
}
