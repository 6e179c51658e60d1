package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/coordinator"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

type fakeController struct {
	settings   coordinator.Settings
	triggerErr error
	triggered  []string
	canceled   bool
	lastLimit  int
	runs       []domain.Run
	records    []domain.ActionRecord
	lines      []string
	session    coordinator.SessionStatus
}

func (f *fakeController) Tasks() []string { return []string{"follower-check", "wish-birthdays"} }

func (f *fakeController) Trigger(_ context.Context, name string) (string, error) {
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	f.triggered = append(f.triggered, name)
	return "run_123", nil
}

func (f *fakeController) Cancel() bool { return f.canceled }

func (f *fakeController) Settings() coordinator.Settings { return f.settings }

func (f *fakeController) SetDryRun(d bool) (coordinator.Settings, error) {
	f.settings.DryRun = d
	return f.settings, nil
}

func (f *fakeController) SetSchedule(h, m int) (coordinator.Settings, error) {
	f.settings.Schedule = domain.ScheduleConfig{Hour: h, Minute: m}
	return f.settings, nil
}

func (f *fakeController) SetLists(w, b []string, days int) (coordinator.Settings, error) {
	f.settings.Whitelist, f.settings.Blacklist, f.settings.CooldownDays = w, b, days
	return f.settings, nil
}

func (f *fakeController) RecentHistory(_ context.Context, n int) ([]domain.ActionRecord, error) {
	f.lastLimit = n
	return f.records, nil
}

func (f *fakeController) RecentRuns(_ context.Context, n int) ([]domain.Run, error) {
	f.lastLimit = n
	return f.runs, nil
}

func (f *fakeController) LogLines(n int) ([]string, error) {
	f.lastLimit = n
	return f.lines, nil
}

func (f *fakeController) Session() coordinator.SessionStatus { return f.session }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewServer(&fakeController{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRunTask(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl)

	rec := do(t, h, http.MethodPost, "/api/tasks/wish-birthdays/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"run_id":"run_123"}`, rec.Body.String())
	assert.Equal(t, []string{"wish-birthdays"}, ctrl.triggered)

	ctrl.triggerErr = domain.ErrRunInProgress
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/tasks/wish-birthdays/run", "").Code)

	ctrl.triggerErr = domain.ErrUnknownTask
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/tasks/dance/run", "").Code)
}

func TestCancelRun(t *testing.T) {
	ctrl := &fakeController{canceled: true}
	rec := do(t, NewServer(ctrl), http.MethodPost, "/api/runs/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"canceled":true}`, rec.Body.String())
}

func TestSettingsEndpoints(t *testing.T) {
	ctrl := &fakeController{settings: coordinator.DefaultSettings()}
	h := NewServer(ctrl)

	rec := do(t, h, http.MethodPut, "/api/settings/dry-run", `{"dry_run": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.settings.DryRun)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings/dry-run", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings/dry-run", `nope`).Code)

	rec = do(t, h, http.MethodPut, "/api/settings/schedule", `{"hour": 0, "minute": 30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ScheduleConfig{Hour: 0, Minute: 30}, ctrl.settings.Schedule)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings/schedule", `{"hour": 24, "minute": 0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings/schedule", `{"hour": 9}`).Code)

	rec = do(t, h, http.MethodPut, "/api/settings/lists", `{"whitelist": ["alice"], "blacklist": ["bob"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, ctrl.settings.Whitelist)
	assert.Equal(t, 30, ctrl.settings.CooldownDays)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings/lists", `{"cooldown_days": 0}`).Code)

	rec = do(t, h, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got coordinator.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ctrl.settings, got)
}

func TestListEndpoints(t *testing.T) {
	reason := "blacklisted"
	at := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	ctrl := &fakeController{
		records: []domain.ActionRecord{{ID: "act_1", Contact: "bob", Kind: domain.ActionSkipped, Reason: &reason, TaskName: "wish-birthdays", CreatedAt: at}},
		runs:    []domain.Run{{ID: "run_1", TaskName: "wish-birthdays", State: domain.RunSucceeded, Sent: 2, StartedAt: at}},
		lines:   []string{"a", "b"},
	}
	h := NewServer(ctrl)

	rec := do(t, h, http.MethodGet, "/api/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ctrl.lastLimit)
	assert.JSONEq(t, `[{"id":"act_1","contact":"bob","kind":"skipped","reason":"blacklisted","task_name":"wish-birthdays","dry_run":false,"created_at":"2026-06-10T09:00:00Z"}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/runs?limit=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, ctrl.lastLimit)
	assert.Contains(t, rec.Body.String(), `"state":"succeeded"`)

	rec = do(t, h, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, ctrl.lastLimit)
	assert.JSONEq(t, `{"lines":["a","b"]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks", "")
	assert.JSONEq(t, `{"tasks":["follower-check","wish-birthdays"]}`, rec.Body.String())
}

func TestSessionEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl)

	rec := do(t, h, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())

	created := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	until := created.Add(12 * time.Hour)
	ctrl.session = coordinator.SessionStatus{Valid: true, CreatedAt: &created, ValidUntil: &until}
	rec = do(t, h, http.MethodGet, "/api/session", "")
	assert.JSONEq(t, `{"valid":true,"created_at":"2026-06-10T09:00:00Z","valid_until":"2026-06-10T21:00:00Z"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	at := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	ctrl := &fakeController{
		runs: []domain.Run{
			{ID: "run_3", TaskName: "wish-birthdays", State: domain.RunSucceeded, Sent: 2, Skipped: 1, StartedAt: at},
			{ID: "run_2", TaskName: "wish-birthdays", State: domain.RunSucceeded, Sent: 1, Failed: 1, StartedAt: at},
			{ID: "run_1", TaskName: "reply-to-wishes", State: domain.RunAborted, StartedAt: at},
		},
		session: coordinator.SessionStatus{Valid: true},
	}

	rec := do(t, NewServer(ctrl), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, ctrl.lastLimit)
	assert.Equal(t, strings.Join([]string{
		"birthdayagent_up 1",
		"birthdayagent_session_valid 1",
		`birthdayagent_runs{task="reply-to-wishes",state="aborted"} 1`,
		`birthdayagent_runs{task="wish-birthdays",state="succeeded"} 2`,
		`birthdayagent_contacts{task="reply-to-wishes",outcome="sent"} 0`,
		`birthdayagent_contacts{task="reply-to-wishes",outcome="skipped"} 0`,
		`birthdayagent_contacts{task="reply-to-wishes",outcome="failed"} 0`,
		`birthdayagent_contacts{task="wish-birthdays",outcome="sent"} 3`,
		`birthdayagent_contacts{task="wish-birthdays",outcome="skipped"} 1`,
		`birthdayagent_contacts{task="wish-birthdays",outcome="failed"} 1`,
	}, "\n")+"\n", rec.Body.String())
}
