package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/coordinator"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

// Controller is the operator surface the HTTP API exposes.
type Controller interface {
	Tasks() []string
	Trigger(ctx context.Context, name string) (string, error)
	Cancel() bool
	Settings() coordinator.Settings
	SetDryRun(dryRun bool) (coordinator.Settings, error)
	SetSchedule(hour, minute int) (coordinator.Settings, error)
	SetLists(whitelist, blacklist []string, cooldownDays int) (coordinator.Settings, error)
	RecentHistory(ctx context.Context, n int) ([]domain.ActionRecord, error)
	RecentRuns(ctx context.Context, n int) ([]domain.Run, error)
	LogLines(n int) ([]string, error)
	Session() coordinator.SessionStatus
}

type Server struct {
	r    *chi.Mux
	ctrl Controller
}

func NewServer(ctrl Controller) http.Handler {
	return NewServerWithDebug(ctrl, false)
}

func NewServerWithDebug(ctrl Controller, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, ctrl: ctrl}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/api/tasks", s.listTasks)
	r.Post("/api/tasks/{name}/run", s.runTask)
	r.Post("/api/runs/cancel", s.cancelRun)
	r.Get("/api/runs", s.listRuns)
	r.Get("/api/history", s.listHistory)
	r.Get("/api/logs", s.logs)
	r.Get("/api/session", s.session)
	r.Get("/api/settings", s.getSettings)
	r.Put("/api/settings/dry-run", s.setDryRun)
	r.Put("/api/settings/schedule", s.setSchedule)
	r.Put("/api/settings/lists", s.setLists)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		r.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
		r.Handle("/debug/pprof/block", pprof.Handler("block"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// metricsWindow bounds how many recent runs /metrics aggregates.
const metricsWindow = 200

type runKey struct{ task, state string }

// metrics reports run and action totals over the most recent runs.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ctrl.RecentRuns(r.Context(), metricsWindow)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	counts := map[runKey]int{}
	actions := map[string]map[string]int{}
	for _, run := range runs {
		counts[runKey{run.TaskName, string(run.State)}]++
		a := actions[run.TaskName]
		if a == nil {
			a = map[string]int{}
			actions[run.TaskName] = a
		}
		a["sent"] += run.Sent
		a["skipped"] += run.Skipped
		a["failed"] += run.Failed
	}
	keys := make([]runKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].task != keys[j].task {
			return keys[i].task < keys[j].task
		}
		return keys[i].state < keys[j].state
	})
	tasks := make([]string, 0, len(actions))
	for t := range actions {
		tasks = append(tasks, t)
	}
	sort.Strings(tasks)

	session := 0
	if s.ctrl.Session().Valid {
		session = 1
	}

	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "birthdayagent_up 1")
	fmt.Fprintf(w, "birthdayagent_session_valid %d\n", session)
	for _, k := range keys {
		fmt.Fprintf(w, "birthdayagent_runs{task=%q,state=%q} %d\n", k.task, k.state, counts[k])
	}
	for _, t := range tasks {
		for _, kind := range []string{"sent", "skipped", "failed"} {
			fmt.Fprintf(w, "birthdayagent_contacts{task=%q,outcome=%q} %d\n", t, kind, actions[t][kind])
		}
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.ctrl.Tasks()})
}

type runResp struct {
	RunID string `json:"run_id"`
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.ctrl.Trigger(r.Context(), name)
	switch {
	case errors.Is(err, domain.ErrUnknownTask):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.Error().Err(err).Str("task", name).Msg("trigger run")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, runResp{RunID: id})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": s.ctrl.Cancel()})
}

type runView struct {
	ID          string  `json:"id"`
	TaskName    string  `json:"task_name"`
	State       string  `json:"state"`
	DryRun      bool    `json:"dry_run"`
	Sent        int     `json:"sent"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	AbortReason *string `json:"abort_reason,omitempty"`
	Result      *string `json:"result,omitempty"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  *string `json:"finished_at,omitempty"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ctrl.RecentRuns(r.Context(), limitParam(r, "limit", 20, 200))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		v := runView{
			ID: run.ID, TaskName: run.TaskName, State: string(run.State), DryRun: run.DryRun,
			Sent: run.Sent, Skipped: run.Skipped, Failed: run.Failed,
			AbortReason: run.AbortReason, Result: run.Result,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if run.FinishedAt != nil {
			f := run.FinishedAt.Format(time.RFC3339)
			v.FinishedAt = &f
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type actionView struct {
	ID        string  `json:"id"`
	RunID     string  `json:"run_id,omitempty"`
	Contact   string  `json:"contact"`
	Kind      string  `json:"kind"`
	Reason    *string `json:"reason,omitempty"`
	TaskName  string  `json:"task_name"`
	Language  string  `json:"language,omitempty"`
	DryRun    bool    `json:"dry_run"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ctrl.RecentHistory(r.Context(), limitParam(r, "limit", 50, 500))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]actionView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, actionView{
			ID: rec.ID, RunID: rec.RunID, Contact: rec.Contact, Kind: string(rec.Kind),
			Reason: rec.Reason, TaskName: rec.TaskName, Language: rec.Language,
			DryRun: rec.DryRun, CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	lines, err := s.ctrl.LogLines(limitParam(r, "lines", 100, 2000))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

type sessionView struct {
	Valid      bool    `json:"valid"`
	CreatedAt  *string `json:"created_at,omitempty"`
	ValidUntil *string `json:"valid_until,omitempty"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Session()
	v := sessionView{Valid: st.Valid}
	if st.CreatedAt != nil {
		c := st.CreatedAt.Format(time.RFC3339)
		v.CreatedAt = &c
	}
	if st.ValidUntil != nil {
		u := st.ValidUntil.Format(time.RFC3339)
		v.ValidUntil = &u
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

type dryRunReq struct {
	DryRun *bool `json:"dry_run"`
}

func (s *Server) setDryRun(w http.ResponseWriter, r *http.Request) {
	var req dryRunReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DryRun == nil {
		http.Error(w, "dry_run is required", http.StatusBadRequest)
		return
	}
	settings, err := s.ctrl.SetDryRun(*req.DryRun)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type scheduleReq struct {
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Hour == nil || req.Minute == nil {
		http.Error(w, "hour and minute are required", http.StatusBadRequest)
		return
	}
	if *req.Hour < 0 || *req.Hour > 23 || *req.Minute < 0 || *req.Minute > 59 {
		http.Error(w, "hour must be 0-23 and minute 0-59", http.StatusBadRequest)
		return
	}
	settings, err := s.ctrl.SetSchedule(*req.Hour, *req.Minute)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type listsReq struct {
	Whitelist    []string `json:"whitelist"`
	Blacklist    []string `json:"blacklist"`
	CooldownDays int      `json:"cooldown_days"`
}

func (s *Server) setLists(w http.ResponseWriter, r *http.Request) {
	req := listsReq{CooldownDays: s.ctrl.Settings().CooldownDays}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CooldownDays < 1 {
		http.Error(w, "cooldown_days must be at least 1", http.StatusBadRequest)
		return
	}
	settings, err := s.ctrl.SetLists(req.Whitelist, req.Blacklist, req.CooldownDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func limitParam(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
