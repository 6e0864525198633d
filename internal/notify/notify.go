// Package notify delivers user-facing notifications (low stock, restock
// reminders). The sync core only depends on the Notifier interface; the
// Telegram sender is the default concrete channel, with a log-only
// fallback when no bot token is configured.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Notification is a title/body payload with optional structured data.
// Delivery is immediate; there is no scheduling or batching.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier sends a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Used when no delivery
// channel is configured and in tests.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.WithFields(logrus.Fields{
		"title": n.Title,
		"data":  n.Data,
	}).Info(n.Body)
	return nil
}

// TelegramNotifier pushes notifications to a Telegram chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier authorizes the bot and returns the notifier.
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Notification bot authorized on account %s", api.Self.UserName)

	return &TelegramNotifier{api: api, chatID: chatID, logger: logger}, nil
}

func (t *TelegramNotifier) Notify(_ context.Context, n Notification) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", n.Title, n.Body))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
