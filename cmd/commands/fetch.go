package commands

// Command to pull a device's readings from an upstream server into local storage

import (
	"fmt"
	"time"

	"battery-chart/internal/clients_api/measurement"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch readings of a device from the upstream timeseries API",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().String("device", "", "Device id (required)")
	fetchCmd.Flags().Duration("since", 24*time.Hour, "How far back to fetch")
	fetchCmd.Flags().Int("limit", 0, "Max readings to request, 0 for the upstream default")
	fetchCmd.MarkFlagRequired("device")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateFetch(); err != nil {
		return err
	}
	deviceID, _ := cmd.Flags().GetString("device")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	now := time.Now().UTC()
	f, err := readings.Filter{DeviceID: deviceID, Start: now.Add(-since), End: now}.
		Normalize(now, cfg.Chart.MaxQueryInterval(), limit)
	if err != nil {
		return err
	}

	client := measurement.NewClient(cfg.Upstream.BaseURL, measurement.Options{
		Timeout:         cfg.Upstream.Timeout(),
		MaxRetries:      cfg.Upstream.MaxRetries,
		RateLimit:       cfg.Upstream.RateLimit,
		Burst:           cfg.Upstream.Burst,
		MaxResponseSize: cfg.Upstream.MaxResponseSize,
	})

	start := time.Now()
	rs, err := client.FetchTimeseries(cmd.Context(), f)
	if err != nil {
		log.LogError("Fetch failed", zap.String("device_id", deviceID), zap.Error(err))
		return err
	}

	if len(rs) > 0 {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Append(cmd.Context(), rs...); err != nil {
			return fmt.Errorf("failed to store readings: %w", err)
		}
	}

	log.LogSuccess("Readings fetched",
		zap.String("device_id", deviceID),
		zap.Int("count", len(rs)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	fmt.Fprintf(cmd.OutOrStdout(), "fetched %d readings for %s\n", len(rs), deviceID)
	return nil
}
