package commands

// Command to run the Telegram bot
// Answers /battery, /devices and /help in the configured chat and, with
// --report-every, posts the chart of --device on that interval
// Implements graceful shutdown for proper termination

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	bot "battery-chart/bots_monitor"
	"battery-chart/internal/features/tg_charts"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot (chart commands + scheduled reports)",
	RunE:  runBot,
}

func init() {
	botCmd.Flags().String("device", "", "Device reported on schedule")
	botCmd.Flags().Duration("report-every", 0, "Scheduled report interval for --device, 0 disables")
	botCmd.Flags().Int("low", 20, "Battery level flagged as low, 0 disables")
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateNotify(); err != nil {
		return err
	}
	deviceID, _ := cmd.Flags().GetString("device")
	every, _ := cmd.Flags().GetDuration("report-every")
	low, _ := cmd.Flags().GetInt("low")
	if every > 0 && deviceID == "" {
		return fmt.Errorf("--device is required with --report-every")
	}

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

	report := bot.ReportOptions{
		Image:        tg_charts.ImageOptions{LowThreshold: float64(low)},
		LowThreshold: low,
	}
	series := func(ctx context.Context, id string) ([]readings.Reading, error) {
		return deviceSeries(ctx, store, id)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.RunCommandHandler(ctx, api, cfg.Telegram.ChatID, &bot.Commands{
			Devices: store.Devices,
			Series:  series,
			Report:  report,
		})
	}()

	if every > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.RunBatteryMonitor(ctx, api, cfg.Telegram.ChatID, deviceID, every, func(ctx context.Context) ([]readings.Reading, error) {
				return series(ctx, deviceID)
			}, report)
		}()
	}

	log.LogSuccess("Bot is running", zap.String("status", "active"))

	<-ctx.Done()
	log.LogInfo("Shutdown signal received, gracefully stopping...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.LogSuccess("Bot stopped gracefully")
	case <-time.After(10 * time.Second):
		log.LogWarn("Timeout waiting for bot to stop, forcing shutdown")
	}
	return nil
}
