package commands

// Command to save a PNG snapshot of a device's battery chart

import (
	"fmt"
	"path/filepath"

	"battery-chart/internal/features/tg_charts"
	"battery-chart/internal/readings"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save a PNG chart of a device's battery level",
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().String("device", "", "Device id (required)")
	snapshotCmd.Flags().String("out", "", "Output PNG path (default: <data_dir>/charts/<device>.png)")
	snapshotCmd.Flags().Int("width", 0, "Image width in pixels")
	snapshotCmd.Flags().Int("height", 0, "Image height in pixels")
	snapshotCmd.Flags().Float64("low", 20, "Highlight points at or below this level, 0 disables")
	snapshotCmd.MarkFlagRequired("device")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	deviceID, _ := cmd.Flags().GetString("device")
	outPath, _ := cmd.Flags().GetString("out")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	low, _ := cmd.Flags().GetFloat64("low")

	if outPath == "" {
		outPath = filepath.Join(cfg.Storage.DataDir, "charts", deviceID+".png")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	rs, err := deviceSeries(cmd.Context(), store, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load readings: %w", err)
	}

	err = tg_charts.SaveBatteryChart(outPath, readings.ToRows(rs), tg_charts.ImageOptions{
		Width:        width,
		Height:       height,
		Title:        "Battery · " + deviceID,
		LowThreshold: low,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), outPath)
	return nil
}
