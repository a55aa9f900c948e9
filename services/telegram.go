package services

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"strapmon/config"
	"strapmon/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// alertThrottle is the minimum gap between two alerts for the same device
const alertThrottle = 15 * time.Second

// telegramSender is the part of the bot API used for delivery
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService relays revealed dashboard notifications to a chat
type TelegramService struct {
	bot            telegramSender
	chatID         int64
	lastAlertTimes map[string]time.Time // Track last alert time per device
	logger         *zap.Logger
	now            func() time.Time
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := newTelegramService(bot, chatID, logger)

	// Test Telegram connection with retry
	if err := testTelegramConnection(bot, logger); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

func newTelegramService(bot telegramSender, chatID int64, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		lastAlertTimes: make(map[string]time.Time),
		logger:         logger,
		now:            time.Now,
	}
}

// testTelegramConnection tests Telegram connection with retry logic
func testTelegramConnection(bot *tgbotapi.BotAPI, logger *zap.Logger) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := bot.GetMe()
		if err == nil {
			logger.Info("Telegram connection successful")
			return nil
		}

		logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// Name implements AlertTarget
func (ts *TelegramService) Name() string {
	return "telegram"
}

// SendAlert sends one notification, throttled per device. Notifications
// without a device are never throttled.
func (ts *TelegramService) SendAlert(n models.Notification) error {
	if ts.shouldThrottleAlert(n.DeviceID) {
		ts.logger.Debug("Throttling alert", zap.String("device_id", n.DeviceID))
		return nil
	}

	msg := tgbotapi.NewMessage(ts.chatID, formatAlertMessage(n))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := ts.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	if n.DeviceID != "" {
		ts.lastAlertTimes[n.DeviceID] = ts.now()
	}

	ts.logger.Info("Sent alert",
		zap.Int64("notification_id", n.ID),
		zap.String("device_id", n.DeviceID),
		zap.String("type", string(n.Type)))
	return nil
}

// shouldThrottleAlert checks if the device was alerted within alertThrottle
func (ts *TelegramService) shouldThrottleAlert(deviceID string) bool {
	if deviceID == "" {
		return false
	}
	lastAlertTime, exists := ts.lastAlertTimes[deviceID]
	if !exists {
		return false
	}
	return ts.now().Sub(lastAlertTime) < alertThrottle
}

// formatAlertMessage renders a notification as Telegram HTML
func formatAlertMessage(n models.Notification) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n\n", n.Type.GetSeverityEmoji(), html.EscapeString(strings.ToUpper(n.Title))))

	if n.ShowMessage() {
		sb.WriteString(html.EscapeString(n.Message))
		sb.WriteString("\n")
	}
	if n.Detail != "" {
		sb.WriteString(fmt.Sprintf("└ %s\n", html.EscapeString(n.Detail)))
	}
	sb.WriteString("\n")

	if n.Employee != nil && n.Employee.Name != "" {
		sb.WriteString(fmt.Sprintf("👤 <b>Employee:</b> %s\n", html.EscapeString(n.Employee.Name)))
	}
	if n.DeviceID != "" {
		sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> <code>%s</code>\n", html.EscapeString(n.DeviceID)))
	}
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s", n.CreatedAt.Format(DisplayTimeLayout)))

	return sb.String()
}

// SendStatusMessage sends a general status message
func (ts *TelegramService) SendStatusMessage(message string) error {
	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = "HTML"

	_, err := ts.bot.Send(msg)
	return err
}

// SendStartupMessage sends a message when the dashboard starts
func (ts *TelegramService) SendStartupMessage(transport string) error {
	message := "🟢 <b>Strap Monitor Dashboard Started</b>\n\n" +
		fmt.Sprintf("📡 Receiving events over %s\n", html.EscapeString(transport)) +
		"🤖 Telegram alerts active\n" +
		"👀 Watching strap wear state and policy pushes..."

	return ts.SendStatusMessage(message)
}

// SendShutdownMessage reports how long the dashboard ran
func (ts *TelegramService) SendShutdownMessage(uptime time.Duration) error {
	message := "🔴 <b>Strap Monitor Dashboard Stopped</b>\n\n" +
		fmt.Sprintf("⏱️ <b>Uptime:</b> %s", formatDuration(uptime))

	return ts.SendStatusMessage(message)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
