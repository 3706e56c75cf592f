package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"battery-chart/internal/readings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func command(text string) *tgbotapi.Message {
	cmd := text
	if i := strings.Index(text, " "); i >= 0 {
		cmd = text[:i]
	}
	return &tgbotapi.Message{
		MessageID: 7,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: -100123},
		From:      &tgbotapi.User{UserName: "alice"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func testCommands() *Commands {
	return &Commands{
		Devices: func(context.Context) ([]string, error) { return []string{"phone-1", "tab<2>"}, nil },
		Series: func(_ context.Context, deviceID string) ([]readings.Reading, error) {
			if deviceID != "phone-1" {
				return nil, errors.New("device not found")
			}
			return sample(), nil
		},
	}
}

func TestCommands_Battery(t *testing.T) {
	s := &fakeSender{}
	testCommands().handleMessage(context.Background(), s, command("/battery phone-1"))

	require.Equal(t, 1, s.count())
	photo, ok := s.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok, "expected a photo, got %T", s.sent[0])
	assert.Equal(t, int64(-100123), photo.ChatID)
	assert.Contains(t, photo.Caption, "phone-1")
}

func TestCommands_BatteryUnknownDevice(t *testing.T) {
	s := &fakeSender{}
	testCommands().handleMessage(context.Background(), s, command("/battery ghost"))

	require.Equal(t, 1, s.count())
	msg := s.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "<code>ghost</code> has no readings")
	assert.Equal(t, 7, msg.ReplyToMessageID)
}

func TestCommands_BatteryUsage(t *testing.T) {
	s := &fakeSender{}
	testCommands().handleMessage(context.Background(), s, command("/battery"))

	require.Equal(t, 1, s.count())
	assert.Contains(t, s.sent[0].(tgbotapi.MessageConfig).Text, "Usage: /battery {device}")
}

func TestCommands_Devices(t *testing.T) {
	s := &fakeSender{}
	testCommands().handleMessage(context.Background(), s, command("/devices"))

	require.Equal(t, 1, s.count())
	text := s.sent[0].(tgbotapi.MessageConfig).Text
	assert.Contains(t, text, "<code>phone-1</code>")
	assert.Contains(t, text, "<code>tab&lt;2&gt;</code>")
}

func TestCommands_IgnoresPlainText(t *testing.T) {
	s := &fakeSender{}
	msg := command("hello")
	msg.Entities = nil
	testCommands().handleMessage(context.Background(), s, msg)
	assert.Equal(t, 0, s.count())
}

func TestIsChat(t *testing.T) {
	assert.True(t, isChat(&tgbotapi.Chat{ID: -100123}, "-100123"))
	assert.False(t, isChat(&tgbotapi.Chat{ID: 5}, "-100123"))
	assert.True(t, isChat(&tgbotapi.Chat{UserName: "Battery"}, "@battery"))
	assert.False(t, isChat(nil, "1"))
}

type fakeUpdatesBot struct {
	fakeSender
	updates chan tgbotapi.Update
	stopped chan struct{}
}

func (f *fakeUpdatesBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeUpdatesBot) StopReceivingUpdates() {
	close(f.stopped)
}

func TestRunCommandHandler_AnswersChannelPosts(t *testing.T) {
	b := &fakeUpdatesBot{updates: make(chan tgbotapi.Update, 3), stopped: make(chan struct{})}

	post := command("/devices")
	post.From = nil
	post.Chat = &tgbotapi.Chat{ID: -100777, Type: "channel", UserName: "battery_channel"}
	b.updates <- tgbotapi.Update{ChannelPost: post}

	other := command("/devices")
	other.Chat = &tgbotapi.Chat{ID: 42, UserName: "someone_else"}
	b.updates <- tgbotapi.Update{Message: other}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCommandHandler(ctx, b, "@battery_channel", testCommands())
		close(done)
	}()

	require.Eventually(t, func() bool { return b.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("command handler did not stop")
	}
	<-b.stopped

	require.Equal(t, 1, b.count())
	msg := b.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100777), msg.ChatID)
	assert.Contains(t, msg.Text, "<code>phone-1</code>")
}
