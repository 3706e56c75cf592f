package commands

// Command to import "<timestamp>,<value>" lines into readings storage
// Import stops at the first malformed line and nothing is stored

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import battery readings from a CSV file",
	Long: `Import "<timestamp>,<value>" lines (unix milliseconds or RFC 3339 timestamps) for one device.
Blank lines and lines starting with # are skipped. Use --file - to read stdin.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().String("device", "", "Device id (required)")
	importCmd.Flags().String("file", "", "CSV file to import, - for stdin (required)")
	importCmd.MarkFlagRequired("device")
	importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	deviceID, _ := cmd.Flags().GetString("device")
	path, _ := cmd.Flags().GetString("file")

	if err := readings.ValidateDeviceID(deviceID); err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	rs, err := parseReadings(in, deviceID)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		log.LogWarn("Nothing to import", zap.String("file", path))
		return nil
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Append(cmd.Context(), rs...); err != nil {
		return fmt.Errorf("failed to store readings: %w", err)
	}

	log.LogSuccess("Readings imported", zap.String("device_id", deviceID), zap.Int("count", len(rs)))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d readings for %s\n", len(rs), deviceID)
	return nil
}

// parseReadings reads chart rows line by line. Readings store integer battery
// levels, so a value that is not an exact integer within int32 range is rejected.
func parseReadings(r io.Reader, deviceID string) ([]readings.Reading, error) {
	var rs []readings.Reading
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		row, err := batterychart.ParseRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if row.Value != math.Trunc(row.Value) || row.Value < math.MinInt32 || row.Value > math.MaxInt32 {
			return nil, fmt.Errorf("line %d: %w: %v is not an integer battery level", line, batterychart.ErrInvalidValue, row.Value)
		}
		rs = append(rs, readings.Reading{
			DeviceID:     deviceID,
			Time:         row.Time.UTC(),
			BatteryLevel: int(row.Value),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return rs, nil
}
