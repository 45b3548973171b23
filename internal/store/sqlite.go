package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		time_pref TEXT NOT NULL DEFAULT '',
		work_pref TEXT NOT NULL DEFAULT '',
		stress_base INTEGER NOT NULL DEFAULT 0,
		sleep_goal REAL,
		sleep_pref TEXT NOT NULL DEFAULT '',
		occupation TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		estimated_time INTEGER NOT NULL,
		deadline TEXT,
		fixed_time INTEGER NOT NULL DEFAULT 0,
		start_time TEXT,
		end_time TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		stress_entry INTEGER,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id) WHERE archived = 0;

	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		task_id INTEGER,
		label TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		type TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scheduled_user_start ON scheduled_tasks(user_id, start_time);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, time_pref, work_pref, stress_base,
		       sleep_goal, sleep_pref, occupation, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var focus, style string
	var sleepGoal sql.NullFloat64
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &focus, &style, &user.Preferences.StressLevel,
		&sleepGoal, &user.Preferences.SleepPref, &user.Preferences.Occupation,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Preferences.FocusPeriod = domain.FocusPeriod(focus)
	user.Preferences.WorkStyle = domain.WorkStyle(style)
	if sleepGoal.Valid {
		user.Preferences.SleepGoal = &sleepGoal.Float64
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, time_pref, work_pref, stress_base,
		sleep_goal, sleep_pref, occupation, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		time_pref = excluded.time_pref,
		work_pref = excluded.work_pref,
		stress_base = excluded.stress_base,
		sleep_goal = excluded.sleep_goal,
		sleep_pref = excluded.sleep_pref,
		occupation = excluded.occupation,
		updated_at = excluded.updated_at`

	p := user.Preferences
	var sleepGoal interface{}
	if p.SleepGoal != nil {
		sleepGoal = *p.SleepGoal
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, string(p.FocusPeriod), string(p.WorkStyle), p.StressLevel,
		sleepGoal, p.SleepPref, p.Occupation,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdatePreferences replaces the stored preferences of a user.
func (s *SQLiteStore) UpdatePreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	query := `
		UPDATE users SET time_pref = ?, work_pref = ?, stress_base = ?,
			sleep_goal = ?, sleep_pref = ?, occupation = ?, updated_at = ?
		WHERE user_id = ?`

	var sleepGoal interface{}
	if p.SleepGoal != nil {
		sleepGoal = *p.SleepGoal
	}
	result, err := s.db.ExecContext(ctx, query,
		string(p.FocusPeriod), string(p.WorkStyle), p.StressLevel,
		sleepGoal, p.SleepPref, p.Occupation, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return expectOneRow(result, ErrUserNotFound)
}

// CreateTask stores a new task and returns its ID.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) (int64, error) {
	query := `
		INSERT INTO tasks (user_id, name, category, description, estimated_time,
			deadline, fixed_time, start_time, end_time, priority, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query,
		task.UserID, task.Name, task.Category, task.Description, task.EstimatedTime,
		nullTimestamp(task.Deadline), task.FixedTime,
		nullTimestamp(task.StartTime), nullTimestamp(task.EndTime),
		int(task.Priority), task.Archived, createdAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get task id: %w", err)
	}
	return id, nil
}

// ListTasks returns a user's tasks in scheduling order.
func (s *SQLiteStore) ListTasks(ctx context.Context, userID string, includeArchived bool) ([]domain.Task, error) {
	return sqliteTasks(ctx, s.db, userID, includeArchived)
}

// ArchiveTask excludes a task from future scheduling.
func (s *SQLiteStore) ArchiveTask(ctx context.Context, userID string, taskID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET archived = 1 WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	return expectOneRow(result, ErrTaskNotFound)
}

// LogStressEntry records the stress a user reported for a task.
func (s *SQLiteStore) LogStressEntry(ctx context.Context, userID string, taskID int64, stress int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET stress_entry = ? WHERE id = ? AND user_id = ?`, stress, taskID, userID)
	if err != nil {
		return fmt.Errorf("log stress entry: %w", err)
	}
	return expectOneRow(result, ErrTaskNotFound)
}

// ListSchedule returns the stored entries of a user for one calendar day.
func (s *SQLiteStore) ListSchedule(ctx context.Context, userID string, day time.Time) ([]domain.ScheduleEntry, error) {
	from, to := dayRange(day)
	query := `
		SELECT task_id, label, start_time, end_time, type, priority
		FROM scheduled_tasks
		WHERE user_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, domain.FormatTimestamp(from), domain.FormatTimestamp(to))
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close schedule rows", "error", closeErr)
		}
	}()

	var entries []domain.ScheduleEntry
	for rows.Next() {
		var e domain.ScheduleEntry
		var taskID sql.NullInt64
		var start, end, typ string
		var priority int
		if err := rows.Scan(&taskID, &e.Label, &start, &end, &typ, &priority); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		if taskID.Valid {
			e.TaskID = &taskID.Int64
		}
		if e.Start, err = domain.ParseTimestamp(start); err != nil {
			return nil, fmt.Errorf("schedule row start: %w", err)
		}
		if e.End, err = domain.ParseTimestamp(end); err != nil {
			return nil, fmt.Errorf("schedule row end: %w", err)
		}
		e.Type = domain.EntryType(typ)
		e.Priority = domain.Priority(priority)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	return entries, nil
}

// ListUsersWithPendingTasks returns the IDs of users with unarchived tasks.
func (s *SQLiteStore) ListUsersWithPendingTasks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM tasks WHERE archived = 0 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query pending users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close pending users rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending users: %w", err)
	}
	return ids, nil
}

// Begin opens the transaction of one scheduling run.
func (s *SQLiteStore) Begin(ctx context.Context) (RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run transaction: %w", err)
	}
	return &sqliteRunTx{tx: tx}, nil
}

type sqliteRunTx struct {
	tx *sql.Tx
}

func (t *sqliteRunTx) FetchUserPrefs(ctx context.Context, userID string) (domain.UserPreferences, error) {
	var p domain.UserPreferences
	var focus, style string
	var sleepGoal sql.NullFloat64
	err := t.tx.QueryRowContext(ctx, `
		SELECT time_pref, stress_base, work_pref, sleep_goal, sleep_pref, occupation
		FROM users WHERE user_id = ?`, userID).
		Scan(&focus, &p.StressLevel, &style, &sleepGoal, &p.SleepPref, &p.Occupation)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("fetch preferences for %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("fetch preferences: %w", err)
	}
	p.FocusPeriod = domain.FocusPeriod(focus)
	p.WorkStyle = domain.WorkStyle(style)
	if sleepGoal.Valid {
		p.SleepGoal = &sleepGoal.Float64
	}
	return p, nil
}

func (t *sqliteRunTx) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	return sqliteTasks(ctx, t.tx, userID, false)
}

func (t *sqliteRunTx) ClearSchedule(ctx context.Context, userID string, day time.Time) (int64, error) {
	from, to := dayRange(day)
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM scheduled_tasks WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, domain.FormatTimestamp(from), domain.FormatTimestamp(to))
	if err != nil {
		return 0, fmt.Errorf("clear schedule: %w", err)
	}
	return result.RowsAffected()
}

func (t *sqliteRunTx) StoreSchedule(ctx context.Context, userID string, entries []domain.ScheduleEntry) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO scheduled_tasks (user_id, task_id, label, start_time, end_time, type, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare schedule insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close schedule insert statement", "error", closeErr)
		}
	}()

	now := time.Now().Unix()
	for _, e := range entries {
		var taskID interface{}
		if e.TaskID != nil {
			taskID = *e.TaskID
		}
		if _, err := stmt.ExecContext(ctx, userID, taskID, e.Label,
			domain.FormatTimestamp(e.Start), domain.FormatTimestamp(e.End),
			string(e.Type), int(e.Priority), now); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}

func (t *sqliteRunTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit run transaction: %w", err)
	}
	return nil
}

func (t *sqliteRunTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback run transaction: %w", err)
	}
	return nil
}

func sqliteTasks(ctx context.Context, q sqlQuerier, userID string, includeArchived bool) ([]domain.Task, error) {
	query := `
		SELECT id, user_id, name, category, description, estimated_time, deadline,
		       fixed_time, start_time, end_time, priority, stress_entry, archived, created_at
		FROM tasks
		WHERE user_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY fixed_time DESC, deadline IS NULL, deadline ASC, priority DESC, id ASC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close task rows", "error", closeErr)
		}
	}()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var deadline, start, end sql.NullString
		var priority int
		var stress sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Category, &t.Description,
			&t.EstimatedTime, &deadline, &t.FixedTime, &start, &end,
			&priority, &stress, &t.Archived, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		t.Priority = domain.Priority(priority)
		t.Deadline = lenientTimestamp(deadline, t.ID, "deadline")
		t.StartTime = lenientTimestamp(start, t.ID, "start_time")
		t.EndTime = lenientTimestamp(end, t.ID, "end_time")
		if stress.Valid {
			v := int(stress.Int64)
			t.StressEntry = &v
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// lenientTimestamp parses a stored timestamp, treating unparseable values as
// missing. Fixed tasks with a missing start fail later when their window is resolved.
func lenientTimestamp(ns sql.NullString, taskID int64, field string) *time.Time {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	t, err := domain.ParseTimestamp(ns.String)
	if err != nil {
		slog.Warn("Ignoring unparseable task timestamp", "task_id", taskID, "field", field, "value", ns.String)
		return nil
	}
	return &t
}

func nullTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return domain.FormatTimestamp(*t)
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
