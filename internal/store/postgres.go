package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Repository on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool and applies pending migrations. dsn may be empty
// to use DATABASE_URL.
func NewPostgres(ctx context.Context, dsn string) (Repository, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return s, nil
}

// migrate runs embedded migrations not yet recorded in schema_migrations.
func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type migration struct {
		version int
		sql     string
	}
	var pending []migration
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(strings.TrimSuffix(f.Name(), ".sql"), "_", 2)[0])
		if err != nil || applied[v] {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		pending = append(pending, migration{version: v, sql: string(body)})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`,
			m.version, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	var focus, style string
	var createdAt, updatedAt int64
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, username, time_pref, work_pref, stress_base,
		       sleep_goal, sleep_pref, occupation, created_at, updated_at
		FROM users WHERE user_id = $1`, userID).Scan(
		&user.UserID, &user.Username, &focus, &style, &user.Preferences.StressLevel,
		&user.Preferences.SleepGoal, &user.Preferences.SleepPref, &user.Preferences.Occupation,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.Preferences.FocusPeriod = domain.FocusPeriod(focus)
	user.Preferences.WorkStyle = domain.WorkStyle(style)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *domain.User) error {
	p := user.Preferences
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, time_pref, work_pref, stress_base,
			sleep_goal, sleep_pref, occupation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			time_pref = EXCLUDED.time_pref,
			work_pref = EXCLUDED.work_pref,
			stress_base = EXCLUDED.stress_base,
			sleep_goal = EXCLUDED.sleep_goal,
			sleep_pref = EXCLUDED.sleep_pref,
			occupation = EXCLUDED.occupation,
			updated_at = EXCLUDED.updated_at`,
		user.UserID, user.Username, string(p.FocusPeriod), string(p.WorkStyle), p.StressLevel,
		p.SleepGoal, p.SleepPref, p.Occupation, user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdatePreferences replaces the stored preferences of a user.
func (s *PostgresStore) UpdatePreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET time_pref = $1, work_pref = $2, stress_base = $3,
			sleep_goal = $4, sleep_pref = $5, occupation = $6, updated_at = $7
		WHERE user_id = $8`,
		string(p.FocusPeriod), string(p.WorkStyle), p.StressLevel,
		p.SleepGoal, p.SleepPref, p.Occupation, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateTask stores a new task and returns its ID.
func (s *PostgresStore) CreateTask(ctx context.Context, task *domain.Task) (int64, error) {
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (user_id, name, category, description, estimated_time,
			deadline, fixed_time, start_time, end_time, priority, archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		task.UserID, task.Name, task.Category, task.Description, task.EstimatedTime,
		task.Deadline, task.FixedTime, task.StartTime, task.EndTime,
		int(task.Priority), task.Archived, createdAt.Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// ListTasks returns a user's tasks in scheduling order.
func (s *PostgresStore) ListTasks(ctx context.Context, userID string, includeArchived bool) ([]domain.Task, error) {
	return pgTasks(ctx, s.pool, userID, includeArchived)
}

// ArchiveTask excludes a task from future scheduling.
func (s *PostgresStore) ArchiveTask(ctx context.Context, userID string, taskID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET archived = TRUE WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// LogStressEntry records the stress a user reported for a task.
func (s *PostgresStore) LogStressEntry(ctx context.Context, userID string, taskID int64, stress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET stress_entry = $1 WHERE id = $2 AND user_id = $3`, stress, taskID, userID)
	if err != nil {
		return fmt.Errorf("log stress entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListSchedule returns the stored entries of a user for one calendar day.
func (s *PostgresStore) ListSchedule(ctx context.Context, userID string, day time.Time) ([]domain.ScheduleEntry, error) {
	from, to := dayRange(day)
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, label, start_time, end_time, type, priority
		FROM scheduled_tasks
		WHERE user_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY id ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScheduleEntry
	for rows.Next() {
		var e domain.ScheduleEntry
		var typ string
		var priority int
		if err := rows.Scan(&e.TaskID, &e.Label, &e.Start, &e.End, &typ, &priority); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		e.Start = asLocal(e.Start)
		e.End = asLocal(e.End)
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
func (s *PostgresStore) ListUsersWithPendingTasks(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM tasks WHERE archived = FALSE ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query pending users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect pending users: %w", err)
	}
	return ids, nil
}

// Begin opens the transaction of one scheduling run.
func (s *PostgresStore) Begin(ctx context.Context) (RunTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run transaction: %w", err)
	}
	return &pgRunTx{tx: tx}, nil
}

type pgRunTx struct {
	tx pgx.Tx
}

func (t *pgRunTx) FetchUserPrefs(ctx context.Context, userID string) (domain.UserPreferences, error) {
	var p domain.UserPreferences
	var focus, style string
	err := t.tx.QueryRow(ctx, `
		SELECT time_pref, stress_base, work_pref, sleep_goal, sleep_pref, occupation
		FROM users WHERE user_id = $1`, userID).
		Scan(&focus, &p.StressLevel, &style, &p.SleepGoal, &p.SleepPref, &p.Occupation)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("fetch preferences for %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("fetch preferences: %w", err)
	}
	p.FocusPeriod = domain.FocusPeriod(focus)
	p.WorkStyle = domain.WorkStyle(style)
	return p, nil
}

func (t *pgRunTx) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	return pgTasks(ctx, t.tx, userID, false)
}

func (t *pgRunTx) ClearSchedule(ctx context.Context, userID string, day time.Time) (int64, error) {
	from, to := dayRange(day)
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM scheduled_tasks WHERE user_id = $1 AND start_time >= $2 AND start_time < $3`,
		userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("clear schedule: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgRunTx) StoreSchedule(ctx context.Context, userID string, entries []domain.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().Unix()
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO scheduled_tasks (user_id, task_id, label, start_time, end_time, type, priority, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			userID, e.TaskID, e.Label, e.Start, e.End, string(e.Type), int(e.Priority), now)
	}
	results := t.tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close schedule batch: %w", err)
	}
	return nil
}

func (t *pgRunTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run transaction: %w", err)
	}
	return nil
}

func (t *pgRunTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback run transaction: %w", err)
	}
	return nil
}

func pgTasks(ctx context.Context, q pgQuerier, userID string, includeArchived bool) ([]domain.Task, error) {
	query := `
		SELECT id, user_id, name, category, description, estimated_time, deadline,
		       fixed_time, start_time, end_time, priority, stress_entry, archived, created_at
		FROM tasks
		WHERE user_id = $1`
	if !includeArchived {
		query += ` AND archived = FALSE`
	}
	query += ` ORDER BY fixed_time DESC, deadline ASC NULLS LAST, priority DESC, id ASC`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var priority int
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Category, &t.Description,
			&t.EstimatedTime, &t.Deadline, &t.FixedTime, &t.StartTime, &t.EndTime,
			&priority, &t.StressEntry, &t.Archived, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		t.Priority = domain.Priority(priority)
		t.Deadline = asLocalPtr(t.Deadline)
		t.StartTime = asLocalPtr(t.StartTime)
		t.EndTime = asLocalPtr(t.EndTime)
		t.CreatedAt = time.Unix(createdAt, 0)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// asLocal reinterprets a zone-less TIMESTAMP value as local wall-clock time.
func asLocal(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

func asLocalPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	local := asLocal(*t)
	return &local
}
