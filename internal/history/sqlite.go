package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/history/migrations"
)

// Filter narrows a history query. Zero values mean "any".
type Filter struct {
	Contact  string
	Kinds    []domain.ActionKind
	TaskName string
	Since    time.Time
	Until    time.Time
	DryRun   *bool
	Limit    int
}

type Store interface {
	Append(ctx context.Context, rec domain.ActionRecord) error
	Query(ctx context.Context, f Filter) ([]domain.ActionRecord, error)

	// Run bookkeeping
	StartRun(ctx context.Context, run domain.Run) (string, error)
	FinishRun(ctx context.Context, run domain.Run) error
	RecentRuns(ctx context.Context, limit int) ([]domain.Run, error)
	RecordAttempts(ctx context.Context, attempts []domain.Attempt) error
	RecoverStale(ctx context.Context, now time.Time) (int, error)
}

// Open connects to the SQLite file at path and applies pending migrations.
func Open(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := migrateUp(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Debug().Msg("history migrations applied")
	return nil
}

type sqliteStore struct{ db *sqlx.DB }

func NewSQLiteStore(db *sqlx.DB) Store { return &sqliteStore{db: db} }

type actionRow struct {
	ID        string         `db:"id"`
	RunID     sql.NullString `db:"run_id"`
	Contact   string         `db:"contact"`
	Kind      string         `db:"kind"`
	Reason    sql.NullString `db:"reason"`
	TaskName  string         `db:"task_name"`
	Language  sql.NullString `db:"language"`
	DryRun    bool           `db:"dry_run"`
	CreatedAt int64          `db:"created_at"`
}

func (r actionRow) record() domain.ActionRecord {
	rec := domain.ActionRecord{
		ID:        r.ID,
		RunID:     r.RunID.String,
		Contact:   r.Contact,
		Kind:      domain.ActionKind(r.Kind),
		TaskName:  r.TaskName,
		Language:  r.Language.String,
		DryRun:    r.DryRun,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.Reason.Valid {
		s := r.Reason.String
		rec.Reason = &s
	}
	return rec
}

func (s *sqliteStore) Append(ctx context.Context, rec domain.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = "act_" + uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO actions (id,run_id,contact,kind,reason,task_name,language,dry_run,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, rec.ID, nullString(rec.RunID), rec.Contact, string(rec.Kind), rec.Reason, rec.TaskName,
		nullString(rec.Language), rec.DryRun, rec.CreatedAt.UnixMilli())
	if err != nil {
		return &domain.StorageError{Op: "append action", Err: err}
	}
	return nil
}

func (s *sqliteStore) Query(ctx context.Context, f Filter) ([]domain.ActionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Contact != "" {
		where = append(where, "contact = ?")
		args = append(args, f.Contact)
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, "kind IN (?)")
		args = append(args, kinds)
	}
	if f.TaskName != "" {
		where = append(where, "task_name = ?")
		args = append(args, f.TaskName)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.Until.UnixMilli())
	}
	if f.DryRun != nil {
		where = append(where, "dry_run = ?")
		args = append(args, *f.DryRun)
	}

	q := `SELECT id,run_id,contact,kind,reason,task_name,language,dry_run,created_at FROM actions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, err
	}
	var rows []actionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, &domain.StorageError{Op: "query actions", Err: err}
	}
	out := make([]domain.ActionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

type runRow struct {
	ID          string         `db:"id"`
	TaskName    string         `db:"task_name"`
	State       string         `db:"state"`
	DryRun      bool           `db:"dry_run"`
	Sent        int            `db:"sent"`
	Skipped     int            `db:"skipped"`
	Failed      int            `db:"failed"`
	AbortReason sql.NullString `db:"abort_reason"`
	Result      sql.NullString `db:"result"`
	StartedAt   int64          `db:"started_at"`
	FinishedAt  sql.NullInt64  `db:"finished_at"`
}

func (r runRow) run() domain.Run {
	run := domain.Run{
		ID:        r.ID,
		TaskName:  r.TaskName,
		State:     domain.RunState(r.State),
		DryRun:    r.DryRun,
		Sent:      r.Sent,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		StartedAt: time.UnixMilli(r.StartedAt).UTC(),
	}
	if r.AbortReason.Valid {
		s := r.AbortReason.String
		run.AbortReason = &s
	}
	if r.Result.Valid {
		s := r.Result.String
		run.Result = &s
	}
	if r.FinishedAt.Valid {
		t := time.UnixMilli(r.FinishedAt.Int64).UTC()
		run.FinishedAt = &t
	}
	return run
}

func (s *sqliteStore) StartRun(ctx context.Context, run domain.Run) (string, error) {
	id := run.ID
	if id == "" {
		id = "run_" + uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id,task_name,state,dry_run,started_at) VALUES (?,?,'running',?,?)
`, id, run.TaskName, run.DryRun, run.StartedAt.UnixMilli())
	if err != nil {
		return "", &domain.StorageError{Op: "start run", Err: err}
	}
	return id, nil
}

func (s *sqliteStore) FinishRun(ctx context.Context, run domain.Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE runs SET state=?,sent=?,skipped=?,failed=?,abort_reason=?,result=?,finished_at=? WHERE id=?
`, string(run.State), run.Sent, run.Skipped, run.Failed, run.AbortReason, run.Result, finished.UnixMilli(), run.ID)
	if err != nil {
		return &domain.StorageError{Op: "finish run", Err: err}
	}
	return nil
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id,task_name,state,dry_run,sent,skipped,failed,abort_reason,result,started_at,finished_at
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list runs", Err: err}
	}
	runs := make([]domain.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.run())
	}
	return runs, nil
}

func (s *sqliteStore) RecordAttempts(ctx context.Context, attempts []domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "record attempts", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range attempts {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_attempts (run_id,task_name,contact,attempt,error,created_at) VALUES (?,?,?,?,?,?)
`, a.RunID, a.TaskName, a.Contact, a.Attempt, a.Error, a.CreatedAt.UnixMilli()); err != nil {
			return &domain.StorageError{Op: "record attempts", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "record attempts", Err: err}
	}
	return nil
}

// RecoverStale marks runs left running by a previous process as aborted.
func (s *sqliteStore) RecoverStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET state='aborted', abort_reason='process exited during run', finished_at=?
WHERE state='running'`, now.UnixMilli())
	if err != nil {
		return 0, &domain.StorageError{Op: "recover stale runs", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
