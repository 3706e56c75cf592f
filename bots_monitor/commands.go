package bot

// Telegram command handler
// /battery {device} replies with the device's chart, /devices lists the known
// devices, /help lists the commands. Only the configured chat is served.

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	log "battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdatesBot is the part of *tgbotapi.BotAPI the command handler needs.
type UpdatesBot interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Commands answers chat commands from the readings storage.
type Commands struct {
	Devices func(ctx context.Context) ([]string, error)
	Series  func(ctx context.Context, deviceID string) ([]readings.Reading, error)
	Report  ReportOptions
}

// RunCommandHandler polls updates until ctx is done.
// chatID - the only chat whose commands are answered
func RunCommandHandler(ctx context.Context, bot UpdatesBot, chatID string, cmds *Commands) {
	if bot == nil {
		log.LogWarn("Bot is nil, command handler not started")
		return
	}
	if chatID == "" {
		log.LogWarn("Chat ID is empty, command handler not started")
		return
	}

	log.LogInfo("Starting command handler", zap.String("chatID", chatID))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Command handler stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			message := commandMessage(update)
			if message == nil || !isChat(message.Chat, chatID) {
				continue
			}
			cmds.handleMessage(ctx, bot, message)
		}
	}
}

// commandMessage returns the group/private message or, for channels, the channel post.
func commandMessage(update tgbotapi.Update) *tgbotapi.Message {
	if update.Message != nil {
		return update.Message
	}
	return update.ChannelPost
}

func (c *Commands) handleMessage(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())

	username := ""
	if message.From != nil {
		username = message.From.UserName
	}
	log.LogDebug("Received command",
		zap.String("command", command),
		zap.String("args", args),
		zap.String("chatID", formatChatID(message.Chat.ID)),
		zap.String("username", username))

	switch command {
	case "battery":
		if args == "" {
			reply(bot, message, "Usage: /battery {device}\n\nExample: /battery phone-1")
			return
		}
		c.handleBatteryCommand(ctx, bot, message, strings.Fields(args)[0])
	case "devices":
		c.handleDevicesCommand(ctx, bot, message)
	case "help", "start":
		reply(bot, message, ""+
			"Commands:\n"+
			"• <code>/battery {device}</code> - battery chart of a device\n"+
			"• <code>/devices</code> - devices with stored readings\n")
	}
}

func (c *Commands) handleBatteryCommand(ctx context.Context, bot Sender, message *tgbotapi.Message, deviceID string) {
	rs, err := c.Series(ctx, deviceID)
	if err != nil {
		log.LogWarn("Failed to load battery readings for command",
			zap.String("device_id", deviceID),
			zap.Error(err))
		reply(bot, message, fmt.Sprintf("Device <code>%s</code> has no readings", html.EscapeString(deviceID)))
		return
	}
	if err := SendBatteryReport(ctx, bot, formatChatID(message.Chat.ID), deviceID, rs, c.Report); err != nil {
		log.LogError("Failed to send battery report via command", zap.String("device_id", deviceID), zap.Error(err))
	}
}

func (c *Commands) handleDevicesCommand(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	devices, err := c.Devices(ctx)
	if err != nil {
		log.LogError("Failed to list devices", zap.Error(err))
		reply(bot, message, "Failed to list devices")
		return
	}
	if len(devices) == 0 {
		reply(bot, message, "No devices have reported yet")
		return
	}

	lines := make([]string, 0, len(devices)+1)
	lines = append(lines, "Devices:")
	for _, id := range devices {
		lines = append(lines, "• <code>"+html.EscapeString(id)+"</code>")
	}
	reply(bot, message, strings.Join(lines, "\n"))
}

func reply(bot Sender, message *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = message.MessageID
	if _, err := bot.Send(msg); err != nil {
		log.LogError("Failed to send reply", zap.Error(err))
	}
}

// isChat matches a numeric chat id or a @channel username.
func isChat(chat *tgbotapi.Chat, chatID string) bool {
	if chat == nil {
		return false
	}
	if strings.HasPrefix(chatID, "@") {
		return strings.EqualFold(chat.UserName, strings.TrimPrefix(chatID, "@"))
	}
	return formatChatID(chat.ID) == strings.TrimSpace(chatID)
}

func formatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
