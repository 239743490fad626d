package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedpush/internal/metrics"
	"feedpush/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Push on a schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		p, store, err := buildPusher(ctx, cfg, false, reg)
		if err != nil {
			return err
		}
		defer store.Close()

		if addr := cfg.Metrics.Listen; addr != "" {
			srv := &http.Server{Addr: addr, Handler: metrics.SetupMetricsRoute(reg), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				slog.Info("metrics listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server", "err", err)
				}
			}()
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = srv.Shutdown(sctx)
			}()
		}

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			slog.Info("received signal, shutting down", "signal", s.String())
			cancel()
		}()

		slog.Info("serving", "interval", p.Interval, "sources", len(p.Sources))
		return worker.NewManager(p).Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
