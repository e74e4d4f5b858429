package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"noticer/internal/storage/migrations"
	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

const taskColumns = `id, name, description, expect_times, month, day, weekday, timepoint,
	time_gap, duration_start, duration_end, execute_times, last_executed_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := migrations.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %w", ErrUnavailable, err)
		}
		out = append(out, r.task())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tasks: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (task.Task, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: get task %d: %w", ErrUnavailable, id, err)
	}
	return r.task(), nil
}

func (s *sqliteStore) Save(ctx context.Context, t task.Task) error {
	r := toRow(t)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET execute_times = ?, last_executed_at = ? WHERE id = ?`,
		r.ExecuteTimes, nullTime(r.LastExecutedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: save task %d: %w", ErrUnavailable, t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: save task %d: %w", ErrUnavailable, t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, t.ID)
	}
	return nil
}

func (s *sqliteStore) Create(ctx context.Context, t task.Task) (int64, error) {
	r := toRow(t)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(name, description, expect_times, month, day, weekday, timepoint,
			time_gap, duration_start, duration_end, execute_times, last_executed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.Name, r.Description, nullInt(r.ExpectTimes), nullBits(r.Month), nullBits(r.Day), nullBits(r.Weekday),
		nullInt(r.Timepoint), nullInt(r.TimeGap), nullInt(r.DurationStart), nullInt(r.DurationEnd),
		r.ExecuteTimes, nullTime(r.LastExecutedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: create task: %w", ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: create task: %w", ErrUnavailable, err)
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (row, error) {
	var (
		r                                row
		expect, month, day, weekday      sql.NullInt64
		timepoint, gap, durStart, durEnd sql.NullInt64
		lastExecuted                     sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Description, &expect, &month, &day, &weekday, &timepoint,
		&gap, &durStart, &durEnd, &r.ExecuteTimes, &lastExecuted)
	if err != nil {
		return row{}, err
	}
	r.ExpectTimes = intPtr(expect)
	r.Month = bitsPtr(month)
	r.Day = bitsPtr(day)
	r.Weekday = bitsPtr(weekday)
	r.Timepoint = intPtr(timepoint)
	r.TimeGap = intPtr(gap)
	r.DurationStart = intPtr(durStart)
	r.DurationEnd = intPtr(durEnd)
	if lastExecuted.Valid && lastExecuted.String != "" {
		at, err := time.Parse(time.RFC3339Nano, lastExecuted.String)
		if err != nil {
			return row{}, fmt.Errorf("last_executed_at %q: %w", lastExecuted.String, err)
		}
		r.LastExecutedAt = &at
	}
	return r, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func bitsPtr(v sql.NullInt64) *uint32 {
	if !v.Valid {
		return nil
	}
	n := uint32(v.Int64)
	return &n
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullBits(p *uint32) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(time.RFC3339Nano)
}
