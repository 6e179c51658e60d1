package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

type TelegramConfig struct {
	Token    string `mapstructure:"token"`
	ChatID   int64  `mapstructure:"chat_id"`
	Endpoint string `mapstructure:"endpoint"`
}

func (c TelegramConfig) Configured() bool { return c.Token != "" && c.ChatID != 0 }

// Telegram connects on first use so a bad token only fails the notification,
// never startup.
type Telegram struct {
	cfg TelegramConfig

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	return &Telegram{cfg: cfg}
}

func (t *Telegram) SendSummary(ctx context.Context, s Summary) error {
	if !t.cfg.Configured() {
		log.Warn().Msg("telegram not configured, skipping notification")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.client()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.cfg.ChatID, Format(s, true))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	log.Info().Str("run_id", s.RunID).Msg("telegram notification sent")
	return nil
}

func (t *Telegram) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.cfg.Token, t.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}
