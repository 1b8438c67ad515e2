package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"turnero/internal/domain"
	"turnero/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramScheme = "telegram:"

// TelegramNotifier sends notices to contacts of the form telegram:<chat id>.
type TelegramNotifier struct {
	bot domain.TelegramSender
}

func NewTelegramNotifier(bot domain.TelegramSender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// NewTelegramBot connects to the Bot API with the given token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func chatID(contact string) (int64, bool) {
	if !strings.HasPrefix(contact, telegramScheme) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(contact, telegramScheme), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (n *TelegramNotifier) Supports(contact string) bool {
	_, ok := chatID(contact)
	return ok && n.bot != nil
}

func (n *TelegramNotifier) NotifyCancellation(ctx context.Context, notice *models.CancellationNotice) error {
	id, ok := chatID(notice.ClientContact)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoChannel, notice.ClientContact)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(id, CancellationText(notice))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
