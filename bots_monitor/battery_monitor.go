package bot

// Battery reports in Telegram
// SendBatteryReport posts the PNG snapshot of a device's battery series with
// an HTML caption; RunBatteryMonitor repeats it on an interval until ctx ends

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"battery-chart/internal/features/tg_charts"
	log "battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// LoadFunc returns the series to report, oldest first.
type LoadFunc func(ctx context.Context) ([]readings.Reading, error)

// ReportOptions - chart snapshot settings and the low-battery threshold
type ReportOptions struct {
	Image        tg_charts.ImageOptions
	LowThreshold int
}

// SendBatteryReport sends the chart for rs to chatID. With no readings a
// plain text message is sent instead.
func SendBatteryReport(ctx context.Context, bot Sender, chatID, deviceID string, rs []readings.Reading, opts ReportOptions) error {
	if bot == nil {
		return fmt.Errorf("telegram bot is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	caption := formatBatteryCaption(deviceID, rs, opts.LowThreshold)

	if len(rs) == 0 {
		msg, err := newMessage(chatID, caption)
		if err != nil {
			return err
		}
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send battery message: %w", err)
		}
		log.LogWarn("No readings, sent text report", zap.String("device_id", deviceID))
		return nil
	}

	imgOpts := opts.Image
	if imgOpts.Title == "" {
		imgOpts.Title = "Battery · " + deviceID
	}
	if imgOpts.LowThreshold == 0 {
		imgOpts.LowThreshold = float64(opts.LowThreshold)
	}

	var buf bytes.Buffer
	if err := tg_charts.RenderBatteryChart(&buf, readings.ToRows(rs), imgOpts); err != nil {
		return fmt.Errorf("failed to render battery chart: %w", err)
	}

	photo, err := newPhoto(chatID, tgbotapi.FileBytes{Name: deviceID + "_battery.png", Bytes: buf.Bytes()}, caption)
	if err != nil {
		return err
	}
	if _, err := bot.Send(photo); err != nil {
		return fmt.Errorf("failed to send battery chart: %w", err)
	}

	log.LogSuccess("Battery report sent", zap.String("device_id", deviceID), zap.Int("points", len(rs)))
	return nil
}

// RunBatteryMonitor sends a report right away and then every interval.
// Failed reports are logged and retried on the next tick.
func RunBatteryMonitor(ctx context.Context, bot Sender, chatID, deviceID string, interval time.Duration, load LoadFunc, opts ReportOptions) {
	if bot == nil {
		log.LogWarn("Bot is nil, battery monitor not started")
		return
	}
	if interval <= 0 {
		log.LogWarn("Battery monitor interval must be positive", zap.Duration("interval", interval))
		return
	}

	log.LogInfo("Starting Battery Monitor...",
		zap.String("device_id", deviceID),
		zap.Duration("interval", interval))

	report := func() {
		rs, err := load(ctx)
		if err != nil {
			log.LogError("Failed to load battery readings", zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		if err := SendBatteryReport(ctx, bot, chatID, deviceID, rs, opts); err != nil {
			log.LogError("Failed to send battery report", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	report()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Battery monitor stopped", zap.String("device_id", deviceID))
			return
		case <-ticker.C:
			report()
		}
	}
}

func formatBatteryCaption(deviceID string, rs []readings.Reading, lowThreshold int) string {
	var b strings.Builder
	b.WriteString("<b>🔋 Battery report</b>\n")
	fmt.Fprintf(&b, "Device: <code>%s</code>\n", html.EscapeString(deviceID))

	if len(rs) == 0 {
		b.WriteString("No readings in the selected range.")
		return b.String()
	}

	latest := rs[len(rs)-1]
	state := "discharging"
	if latest.Charging {
		state = "charging"
	}
	fmt.Fprintf(&b, "Latest: <b>%d</b> (%s)", latest.BatteryLevel, state)
	if lowThreshold > 0 && latest.BatteryLevel <= lowThreshold && !latest.Charging {
		b.WriteString(" ⚠️ low")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Readings: %d, %s – %s UTC",
		len(rs),
		rs[0].Time.UTC().Format("2006-01-02 15:04"),
		latest.Time.UTC().Format("2006-01-02 15:04"))
	return b.String()
}

func newMessage(chatID, text string) (tgbotapi.MessageConfig, error) {
	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(chatID, "@") {
		msg = tgbotapi.NewMessageToChannel(chatID, text)
	} else {
		id, err := parseChatID(chatID)
		if err != nil {
			return msg, err
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	return msg, nil
}

func newPhoto(chatID string, file tgbotapi.RequestFileData, caption string) (tgbotapi.PhotoConfig, error) {
	var photo tgbotapi.PhotoConfig
	if strings.HasPrefix(chatID, "@") {
		photo = tgbotapi.NewPhotoToChannel(chatID, file)
	} else {
		id, err := parseChatID(chatID)
		if err != nil {
			return photo, err
		}
		photo = tgbotapi.NewPhoto(id, file)
	}
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	return photo, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", chatID)
	}
	return id, nil
}
