// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

var (
	// ErrUserNotFound is returned when a user id does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrTaskNotFound is returned when a task does not exist or belongs to another user.
	ErrTaskNotFound = errors.New("task not found")
)

// Repository defines the interface for persisting users, tasks and schedules.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil if missing.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record including preferences.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdatePreferences replaces the stored preferences of a user.
	UpdatePreferences(ctx context.Context, userID string, prefs domain.UserPreferences) error

	// CreateTask stores a new task and returns its ID.
	CreateTask(ctx context.Context, task *domain.Task) (int64, error)

	// ListTasks returns a user's tasks in scheduling order.
	ListTasks(ctx context.Context, userID string, includeArchived bool) ([]domain.Task, error)

	// ArchiveTask excludes a task from future scheduling.
	ArchiveTask(ctx context.Context, userID string, taskID int64) error

	// LogStressEntry records the stress a user reported for a task.
	LogStressEntry(ctx context.Context, userID string, taskID int64, stress int) error

	// ListSchedule returns the stored entries of a user for the calendar day of day.
	ListSchedule(ctx context.Context, userID string, day time.Time) ([]domain.ScheduleEntry, error)

	// ListUsersWithPendingTasks returns the IDs of users with unarchived tasks.
	ListUsersWithPendingTasks(ctx context.Context) ([]string, error)

	// Begin opens the transaction one scheduling run reads and writes through.
	Begin(ctx context.Context) (RunTx, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// RunTx is the scoped store handle of one scheduling run. Rollback after a
// successful Commit is a no-op, so callers can always defer it.
type RunTx interface {
	// FetchUserPrefs returns the preferences of a user or ErrUserNotFound.
	FetchUserPrefs(ctx context.Context, userID string) (domain.UserPreferences, error)

	// FetchTasks returns unarchived tasks ordered by fixed_time desc,
	// deadline asc (missing deadlines last), priority desc.
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)

	// ClearSchedule deletes the stored entries of a user for the calendar day of day.
	ClearSchedule(ctx context.Context, userID string, day time.Time) (int64, error)

	// StoreSchedule appends entries for a user. It performs no merge.
	StoreSchedule(ctx context.Context, userID string, entries []domain.ScheduleEntry) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// dayRange returns [midnight, next midnight) of the calendar day of t.
func dayRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Options selects and configures a Repository backend.
type Options struct {
	Driver      string // "sqlite" or "postgres"
	Path        string
	DatabaseURL string
}

// Open returns the Repository selected by opts.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLite(opts.Path)
	case "postgres":
		return NewPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}
