package notify

import (
	"context"
	"fmt"

	"estateadmin/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAnnouncer mirrors staff notifications to one or more Telegram chats.
type TelegramAnnouncer struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegramAnnouncer(cfg config.TelegramConfig) (*TelegramAnnouncer, error) {
	if cfg.BotToken == "" || len(cfg.StaffChatIDs) == 0 {
		return nil, fmt.Errorf("telegram announcer requires bot_token and staff_chat_ids")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug

	return &TelegramAnnouncer{
		bot:     bot,
		chatIDs: cfg.StaffChatIDs,
	}, nil
}

func (t *TelegramAnnouncer) Announce(ctx context.Context, text string) error {
	var firstErr error
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := t.bot.Send(msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("telegram send to chat %d: %w", chatID, err)
		}
	}
	return firstErr
}
