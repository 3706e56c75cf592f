package commands

// Command to run the chart HTTP server
// Implements graceful shutdown on SIGINT/SIGTERM

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the battery chart HTTP server",
	Long:  `Serve chart pages, embeddable fragments, PNG snapshots and the timeseries API, and accept device checkins on POST /readings.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	srv := server.New(store, batterychart.NewRenderer(cfg.Chart.ChartOptions()), server.Settings{
		PointLimit:       cfg.Chart.PointLimit,
		MinInterval:      cfg.Chart.MinInterval(),
		MaxQueryInterval: cfg.Chart.MaxQueryInterval(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.LogInfo("Starting battery chart server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("point_limit", cfg.Chart.PointLimit),
		zap.Duration("min_interval", cfg.Chart.MinInterval()))

	return srv.Run(ctx, cfg.Server.Addr,
		time.Duration(cfg.Server.ReadHeaderTimeout)*time.Second,
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
}
