package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

const (
	DefaultModel   = openai.GPT4oMini
	DefaultTimeout = 20 * time.Second
	maxReplyRunes  = 280
)

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAI personalises replies with a chat model and falls back to another
// Writer on any error.
type OpenAI struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	fallback Writer
}

func NewOpenAI(cfg OpenAIConfig, fallback Writer) *OpenAI {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(c),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		fallback: fallback,
	}
}

func (o *OpenAI) Write(ctx context.Context, m domain.Message, lang string) string {
	text, err := o.complete(ctx, m, lang)
	if err != nil {
		log.Warn().Err(err).Str("contact", m.Contact.ID).Msg("reply personalisation failed, using template")
		return o.fallback.Write(ctx, m, lang)
	}
	return text
}

func (o *OpenAI) complete(ctx context.Context, m domain.Message, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You reply to birthday wishes on a professional network. " +
					"Write one short, warm thank-you sentence in the language with BCP 47 tag " + lang +
					". Address the sender by first name. Plain text only, at most one emoji.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Sender: %s\nMessage: %s", m.Contact.Name, m.Text),
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	if r := []rune(text); len(r) > maxReplyRunes {
		return "", fmt.Errorf("completion too long (%d runes)", len(r))
	}
	return text, nil
}
