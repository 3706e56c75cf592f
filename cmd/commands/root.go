package commands

// Root command for Cobra CLI
// Registers the configuration flags shared by every subcommand, loads the
// config and initializes logging before a subcommand runs

import (
	"context"
	"fmt"
	"time"

	"battery-chart/internal/config"
	storage "battery-chart/internal/infra/fs"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "battery-chart",
	Short: "Battery Chart - battery level history of reporting devices as interactive charts",
	Long: `Battery Chart stores battery readings reported by devices and renders them as an
embeddable interactive time-series chart, a standalone page, a PNG snapshot or a Telegram report.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := log.Init(cfg.Log.Dir, cfg.LogLevel()); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		log.LogDebug("Config loaded",
			zap.String("command", cmd.Name()),
			zap.String("data_dir", cfg.Storage.DataDir))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(botCmd)
}

func openStore() (*storage.ReadingsStore, error) {
	store, err := storage.NewReadingsStore(cfg.Storage.DataDir)
	if err != nil {
		log.LogError("Failed to open readings storage", zap.String("data_dir", cfg.Storage.DataDir), zap.Error(err))
		return nil, err
	}
	return store, nil
}

// deviceSeries loads the thinned chart series of deviceID for the window
// ending now, configured the same way as the server's chart routes.
func deviceSeries(ctx context.Context, q readings.Querier, deviceID string) ([]readings.Reading, error) {
	f, err := readings.Filter{DeviceID: deviceID}.Normalize(time.Now(), cfg.Chart.MaxQueryInterval(), cfg.Chart.PointLimit)
	if err != nil {
		return nil, err
	}
	return readings.Series(ctx, q, f, cfg.Chart.MinInterval())
}
