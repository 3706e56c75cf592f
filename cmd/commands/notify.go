package commands

// Command to send a device's battery report to Telegram
// With --every it keeps reporting on that interval until SIGINT/SIGTERM

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	bot "battery-chart/bots_monitor"
	"battery-chart/internal/features/tg_charts"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send the battery chart of a device to Telegram",
	RunE:  runNotify,
}

func init() {
	notifyCmd.Flags().String("device", "", "Device id (required)")
	notifyCmd.Flags().Int("low", 20, "Battery level flagged as low in the caption, 0 disables")
	notifyCmd.Flags().Duration("every", 0, "Repeat the report on this interval, 0 sends once")
	notifyCmd.MarkFlagRequired("device")
}

func runNotify(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateNotify(); err != nil {
		return err
	}
	deviceID, _ := cmd.Flags().GetString("device")
	low, _ := cmd.Flags().GetInt("low")
	every, _ := cmd.Flags().GetDuration("every")

	store, err := openStore()
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.LogError("Failed to initialize bot", zap.Error(err))
		return fmt.Errorf("failed to initialize bot: %w", err)
	}
	log.LogSuccess("Bot authorized", zap.String("username", api.Self.UserName))

	opts := bot.ReportOptions{
		Image:        tg_charts.ImageOptions{Title: "Battery · " + deviceID, LowThreshold: float64(low)},
		LowThreshold: low,
	}
	load := func(ctx context.Context) ([]readings.Reading, error) {
		return deviceSeries(ctx, store, deviceID)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if every <= 0 {
		rs, err := load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load readings: %w", err)
		}
		return bot.SendBatteryReport(ctx, api, cfg.Telegram.ChatID, deviceID, rs, opts)
	}

	log.LogSuccess("Battery monitor is running",
		zap.String("device_id", deviceID),
		zap.Duration("every", every))
	bot.RunBatteryMonitor(ctx, api, cfg.Telegram.ChatID, deviceID, every, load, opts)
	log.LogSuccess("Battery monitor stopped gracefully")
	return nil
}
