package commands

// Command to render the chart fragment (or a full page) of stored readings
// Writes to --out or stdout

import (
	"fmt"
	"io"
	"os"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the chart fragment for a device",
	Long:  `Render the interactive chart <script> block (or with --page a standalone HTML page) for the stored readings of a device.`,
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().String("device", "", "Device id (required)")
	renderCmd.Flags().String("out", "", "Output file (default: stdout)")
	renderCmd.Flags().Bool("page", false, "Render a standalone HTML page instead of the bare fragment")
	renderCmd.MarkFlagRequired("device")
}

func runRender(cmd *cobra.Command, args []string) error {
	deviceID, _ := cmd.Flags().GetString("device")
	outPath, _ := cmd.Flags().GetString("out")
	page, _ := cmd.Flags().GetBool("page")

	store, err := openStore()
	if err != nil {
		return err
	}
	rs, err := deviceSeries(cmd.Context(), store, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load readings: %w", err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	renderer := batterychart.NewRenderer(cfg.Chart.ChartOptions())
	rows := readings.ToRows(rs)
	if page {
		err = renderer.RenderPage(out, batterychart.PageData{DeviceID: deviceID, Rows: rows})
	} else {
		err = renderer.Render(out, rows)
	}
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}

	log.LogSuccess("Chart rendered",
		zap.String("device_id", deviceID),
		zap.Int("rows", len(rows)),
		zap.Bool("page", page),
		zap.String("out", outPath))
	return nil
}
