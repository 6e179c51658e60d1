// Package notify delivers end-of-run summaries over Telegram and e-mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

// Summary is the human-facing tally of one run.
type Summary struct {
	RunID       string
	TaskName    string
	State       domain.RunState
	DryRun      bool
	Sent        []string
	Skipped     int
	Failed      int
	AbortReason string
	Result      string
}

type Notifier interface {
	SendSummary(ctx context.Context, s Summary) error
}

// Format renders s. With markdown set, the title is bold and contact names
// are escaped for Telegram's legacy Markdown mode.
func Format(s Summary, markdown bool) string {
	esc := func(v string) string { return v }
	title := "🎂 Birthday Wishes Agent - %s"
	if markdown {
		esc = func(v string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, v) }
		title = "🎂 *Birthday Wishes Agent - %s*"
	}

	mode := "✅ LIVE"
	if s.DryRun {
		mode = "🧪 DRY RUN"
	}
	names := "None"
	if len(s.Sent) > 0 {
		escaped := make([]string, len(s.Sent))
		for i, n := range s.Sent {
			escaped[i] = esc(n)
		}
		names = strings.Join(escaped, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, title+"\n", esc(s.TaskName))
	fmt.Fprintf(&b, "Mode: %s\n\n", mode)
	fmt.Fprintf(&b, "✅ Sent: %d\n", len(s.Sent))
	fmt.Fprintf(&b, "👥 Contacts: %s\n", names)
	fmt.Fprintf(&b, "⏭️ Skipped: %d\n", s.Skipped)
	if s.Failed > 0 {
		fmt.Fprintf(&b, "❌ Failed: %d\n", s.Failed)
	}
	if s.Result != "" {
		fmt.Fprintf(&b, "📊 Result: %s\n", esc(s.Result))
	}
	if s.AbortReason != "" {
		fmt.Fprintf(&b, "⚠️ Aborted: %s\n", esc(s.AbortReason))
	}
	return b.String()
}

func Subject(s Summary) string {
	subject := fmt.Sprintf("[Birthday Agent] %s Summary - %d sent", s.TaskName, len(s.Sent))
	if s.AbortReason != "" {
		subject += " (aborted)"
	}
	return subject
}

// Multi fans a summary out to every notifier and reports all failures.
type Multi []Notifier

func (m Multi) SendSummary(ctx context.Context, s Summary) error {
	if len(m) == 0 {
		log.Info().Str("task", s.TaskName).Str("run_id", s.RunID).Msg("no notifier configured, summary only logged")
		return nil
	}
	var errs []error
	for _, n := range m {
		if err := n.SendSummary(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
