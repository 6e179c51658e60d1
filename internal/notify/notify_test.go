package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

func TestFormat(t *testing.T) {
	s := Summary{
		TaskName: "wish-birthdays",
		DryRun:   true,
		Sent:     []string{"Jane Doe", "john_smith"},
		Skipped:  3,
	}

	plain := Format(s, false)
	assert.Equal(t, "🎂 Birthday Wishes Agent - wish-birthdays\n"+
		"Mode: 🧪 DRY RUN\n\n"+
		"✅ Sent: 2\n"+
		"👥 Contacts: Jane Doe, john_smith\n"+
		"⏭️ Skipped: 3\n", plain)

	md := Format(s, true)
	assert.True(t, strings.HasPrefix(md, "🎂 *Birthday Wishes Agent - wish"))
	assert.Contains(t, md, `john\_smith`)
}

func TestFormatReportsFailuresAndAbort(t *testing.T) {
	s := Summary{
		TaskName:    "reply-to-wishes",
		State:       domain.RunAborted,
		Failed:      1,
		AbortReason: "login failed",
	}
	out := Format(s, false)
	assert.Contains(t, out, "Mode: ✅ LIVE")
	assert.Contains(t, out, "👥 Contacts: None")
	assert.Contains(t, out, "❌ Failed: 1")
	assert.Contains(t, out, "⚠️ Aborted: login failed")
	assert.Equal(t, "[Birthday Agent] reply-to-wishes Summary - 0 sent (aborted)", Subject(s))
}

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) SendSummary(context.Context, Summary) error {
	f.calls++
	return f.err
}

func TestMultiJoinsErrors(t *testing.T) {
	errA, errB := errors.New("telegram down"), errors.New("smtp down")
	a, b, ok := &fakeNotifier{err: errA}, &fakeNotifier{err: errB}, &fakeNotifier{}

	err := Multi{a, ok, b}.SendSummary(context.Background(), Summary{})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, Multi{ok}.SendSummary(context.Background(), Summary{}))
	assert.NoError(t, Multi(nil).SendSummary(context.Background(), Summary{}))
}

func TestUnconfiguredChannelsSkip(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewTelegram(TelegramConfig{}).SendSummary(ctx, Summary{}))
	assert.NoError(t, NewEmail(EmailConfig{Sender: "me@example.com"}).SendSummary(ctx, Summary{}))
}

func TestTelegramSendsMarkdown(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"agent","username":"agent_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.Equal(t, "42", r.FormValue("chat_id"))
			assert.Equal(t, "Markdown", r.FormValue("parse_mode"))
			sent = append(sent, r.FormValue("text"))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 42, Endpoint: srv.URL + "/bot%s/%s"})
	s := Summary{TaskName: "wish-birthdays", Sent: []string{"Jane"}}
	require.NoError(t, tg.SendSummary(context.Background(), s))
	require.NoError(t, tg.SendSummary(context.Background(), s))

	require.Len(t, sent, 2)
	assert.Equal(t, Format(s, true), sent[0])
}

func TestBuildMessage(t *testing.T) {
	raw := string(buildMessage("me@example.com", "you@example.com", Summary{TaskName: "wish-birthdays", Sent: []string{"Jane"}}))
	assert.Contains(t, raw, "From: me@example.com\r\n")
	assert.Contains(t, raw, "To: you@example.com\r\n")
	assert.Contains(t, raw, "Subject: [Birthday Agent] wish-birthdays Summary - 1 sent\r\n")
	assert.Contains(t, raw, "\r\n\r\n🎂 Birthday Wishes Agent - wish-birthdays\r\n")
	assert.NotContains(t, raw, "*")
}
