package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"gomhangpro/backend/internal/domain"
)

// Telegram sends alerts to a fixed chat via a bot account.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not provided")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Printf("[notify] telegram bot authorized as %s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[notify] telegram send failed: %v", err)
	}
}

func (t *Telegram) ShiftEnded(_ context.Context, shift domain.Shift, staffName string) {
	t.send(fmt.Sprintf(
		"Kết ca %s\nNhân viên: %s\nTiền giao ca: %dđ\nTiền hàng đã trả: %dđ\nQuỹ còn lại: %dđ",
		shift.Date, staffName, shift.CurrentFloat, shift.SpentTotal, shift.RemainingFund))
}

func (t *Telegram) SweepCompleted(_ context.Context, records []domain.SweepRecord) {
	if len(records) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quét ca quá hạn: đã đóng %d ca\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "- ca %s (%s): quỹ còn lại %dđ\n", r.ShiftID, r.Date, r.ClearedFund)
	}
	t.send(b.String())
}
