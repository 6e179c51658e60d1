package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSettings(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.True(t, s.DryRun)

	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"dry_run": false, "schedule": {"hour": 7, "minute": 15}}`), 0o644))
	s, err = LoadSettings(partial)
	require.NoError(t, err)
	assert.False(t, s.DryRun)
	assert.Equal(t, domain.ScheduleConfig{Hour: 7, Minute: 15}, s.Schedule)
	assert.Equal(t, 30, s.CooldownDays)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"schedule": {"hour": 24}}`), 0o644))
	_, err = LoadSettings(bad)
	assert.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{`), 0o644))
	_, err = LoadSettings(corrupt)
	assert.Error(t, err)
}

func TestSaveSettingsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := DefaultSettings()
	s.Schedule.Minute = 60
	assert.Error(t, SaveSettings(path, s))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestControlSettingsArePersistedAndApplied(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	ctl := NewControl(h.coord, h.store, path, filepath.Join(dir, "agent.log"))

	rescheduled := 0
	ctl.OnScheduleChange(func() { rescheduled++ })

	_, err := ctl.SetDryRun(false)
	require.NoError(t, err)
	_, err = ctl.SetSchedule(21, 45)
	require.NoError(t, err)
	_, err = ctl.SetLists([]string{"alice"}, []string{"bob"}, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, rescheduled)
	assert.Equal(t, domain.ScheduleConfig{Hour: 21, Minute: 45}, ctl.Schedule())
	assert.False(t, h.coord.Settings().DryRun)

	onDisk, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, ctl.Settings(), onDisk)
	assert.Equal(t, []string{"alice"}, onDisk.Whitelist)
	assert.Equal(t, 7, onDisk.CooldownDays)

	_, err = ctl.SetSchedule(25, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, rescheduled)
	assert.Equal(t, 21, ctl.Schedule().Hour)
}

func TestControlReadsHistoryRunsAndLogs(t *testing.T) {
	h := newHarness(t, live())
	h.validSession(t)
	h.agent.contacts = birthdays("alice", "bob")
	_, err := h.coord.Run(context.Background(), TaskWishBirthdays)
	require.NoError(t, err)

	dir := t.TempDir()
	logFile := filepath.Join(dir, "agent.log")
	require.NoError(t, os.WriteFile(logFile, []byte("one\ntwo\nthree\n"), 0o644))
	ctl := NewControl(h.coord, h.store, filepath.Join(dir, "settings.json"), logFile)

	recs, err := ctl.RecentHistory(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	runs, err := ctl.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Sent)

	lines, err := ctl.LogLines(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)

	assert.False(t, ctl.Cancel())
}

func TestControlSession(t *testing.T) {
	h := newHarness(t, live())
	dir := t.TempDir()
	ctl := NewControl(h.coord, h.store, filepath.Join(dir, "settings.json"), filepath.Join(dir, "agent.log"))

	st := ctl.Session()
	assert.False(t, st.Valid)
	assert.Nil(t, st.ValidUntil)

	h.validSession(t)
	st = ctl.Session()
	assert.True(t, st.Valid)
	require.NotNil(t, st.ValidUntil)
	assert.True(t, h.now.Add(time.Hour).Equal(*st.ValidUntil))

	h.now = h.now.Add(2 * time.Hour)
	assert.False(t, ctl.Session().Valid)
}
