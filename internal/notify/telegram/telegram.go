// Package telegram posts reminder digests to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cassa/internal/log"
	"cassa/internal/notify"
)

// Telegram rejects longer messages.
const maxMessageLen = 4096

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender posts every message to one household chat, addressed by name.
type Sender struct {
	bot    botSender
	chatID int64
	logger *log.Logger
}

var _ notify.Notifier = (*Sender)(nil)

func New(token string, chatID int64, logger *log.Logger) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newSender(bot, chatID, logger), nil
}

func newSender(bot botSender, chatID int64, logger *log.Logger) *Sender {
	return &Sender{bot: bot, chatID: chatID, logger: logger.WithComponent(log.ComponentNotifier)}
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) Notify(ctx context.Context, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, render(m))
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send telegram message",
			log.FieldOperation, log.OpNotify,
			"chat_id", s.chatID,
			log.FieldError, err)
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func render(m notify.Message) string {
	var b strings.Builder
	if name := strings.TrimSpace(m.To.Name); name != "" {
		b.WriteString("@" + name + " ")
	}
	b.WriteString(m.Subject)
	b.WriteString("\n\n")
	b.WriteString(m.Body)
	return truncate(b.String(), maxMessageLen)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
