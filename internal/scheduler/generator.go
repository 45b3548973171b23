package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

// ErrRunInProgress is returned when a schedule is already being generated for the user.
var ErrRunInProgress = errors.New("schedule generation already in progress")

// TxBeginner opens the scoped store transaction of a run.
type TxBeginner interface {
	Begin(ctx context.Context) (store.RunTx, error)
}

// TableStore loads and saves learned Q-tables between runs.
type TableStore interface {
	Load(userID string) (QTable, error)
	Save(userID string, table QTable) error
}

// RunRecorder receives run outcomes for monitoring.
type RunRecorder interface {
	ObserveRun(counts map[domain.EntryType]int, dropped int, reward float64, elapsed time.Duration)
	ObserveFailure(stage string)
}

// Schedule is the outcome of one generation run.
type Schedule struct {
	RunID   string                 `json:"run_id"`
	UserID  string                 `json:"user_id"`
	Date    string                 `json:"date"`
	Entries []domain.ScheduleEntry `json:"entries"`
	Reward  float64                `json:"reward"`
	Dropped []domain.Task          `json:"dropped,omitempty"`
	Cleared int64                  `json:"cleared"`
}

// GeneratorConfig controls a Generator.
type GeneratorConfig struct {
	Workday Workday
	// ClearExisting deletes the user's stored entries for the day before storing.
	ClearExisting bool
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTableStore enables cross-run learning through the given table store.
func WithTableStore(ts TableStore) GeneratorOption {
	return func(g *Generator) { g.tables = ts }
}

// WithRecorder sets the run recorder.
func WithRecorder(r RunRecorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// WithRandSource sets the factory for each run's exploration source.
func WithRandSource(newRand func() *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.newRand = newRand }
}

// Generator runs schedule generation for one user and one day at a time per user.
type Generator struct {
	repo     TxBeginner
	cfg      GeneratorConfig
	tables   TableStore
	recorder RunRecorder
	logger   *slog.Logger
	newRand  func() *rand.Rand

	// runLocks holds one mutex per user for the lifetime of the Generator.
	runLocks sync.Map
}

// NewGenerator creates a Generator.
func NewGenerator(repo TxBeginner, cfg GeneratorConfig, opts ...GeneratorOption) *Generator {
	if cfg.Workday == (Workday{}) {
		cfg.Workday = DefaultWorkday
	}
	g := &Generator{repo: repo, cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate builds, stores and scores the schedule of userID for the calendar
// day of day. Store failures abort the run and nothing is committed.
func (g *Generator) Generate(ctx context.Context, userID string, day time.Time) (*Schedule, error) {
	lock, _ := g.runLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		return nil, ErrRunInProgress
	}
	// Never removed from runLocks: every caller for userID contends on this mutex.
	defer mutex.Unlock()

	started := time.Now()
	runID := uuid.NewString()
	logger := g.logger.With("user_id", userID, "run_id", runID)

	sched, err := g.run(ctx, logger, userID, day)
	if err != nil {
		return nil, err
	}
	sched.RunID = runID

	if g.recorder != nil {
		g.recorder.ObserveRun(Result{Entries: sched.Entries}.Counts(), len(sched.Dropped), sched.Reward, time.Since(started))
	}
	logger.Info("Schedule generated",
		"date", sched.Date,
		"entries", len(sched.Entries),
		"dropped", len(sched.Dropped),
		"reward", sched.Reward,
		"elapsed", time.Since(started))
	return sched, nil
}

func (g *Generator) run(ctx context.Context, logger *slog.Logger, userID string, day time.Time) (*Schedule, error) {
	tx, err := g.repo.Begin(ctx)
	if err != nil {
		g.fail("begin")
		return nil, err
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("Failed to roll back run transaction", "error", rbErr)
		}
	}()

	prefs, err := tx.FetchUserPrefs(ctx, userID)
	if err != nil {
		g.fail("fetch_prefs")
		return nil, err
	}
	tasks, err := tx.FetchTasks(ctx, userID)
	if err != nil {
		g.fail("fetch_tasks")
		return nil, err
	}

	dayStart, dayEnd := g.cfg.Workday.Bounds(day)
	fixed, err := PrepareFixed(tasks, dayStart, dayEnd, logger)
	if err != nil {
		g.fail("resolve_fixed")
		return nil, err
	}
	var flexible []domain.Task
	for _, t := range tasks {
		if !t.FixedTime {
			flexible = append(flexible, t)
		}
	}

	policy, err := g.newPolicy(logger, userID, flexible)
	if err != nil {
		g.fail("load_policy")
		return nil, err
	}
	result := NewBuilder(policy, prefs, logger).Build(dayStart, dayEnd, fixed, flexible)

	var cleared int64
	if g.cfg.ClearExisting {
		if cleared, err = tx.ClearSchedule(ctx, userID, day); err != nil {
			g.fail("clear")
			return nil, err
		}
	}
	if err := tx.StoreSchedule(ctx, userID, result.Entries); err != nil {
		g.fail("store")
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		g.fail("commit")
		return nil, err
	}

	reward := Evaluate(result.Entries, prefs)
	policy.Finish(reward)

	if g.tables != nil {
		if err := g.tables.Save(userID, policy.Snapshot()); err != nil {
			logger.Warn("Failed to save policy table", "error", err)
		}
	}

	return &Schedule{
		UserID:  userID,
		Date:    day.Format(domain.DateLayout),
		Entries: result.Entries,
		Reward:  reward,
		Dropped: result.Dropped,
		Cleared: cleared,
	}, nil
}

func (g *Generator) newPolicy(logger *slog.Logger, userID string, flexible []domain.Task) (*Policy, error) {
	opts := []PolicyOption{WithPolicyLogger(logger)}
	if g.newRand != nil {
		opts = append(opts, WithRand(g.newRand()))
	}
	if g.tables != nil {
		table, err := g.tables.Load(userID)
		if err != nil {
			return nil, fmt.Errorf("load policy table: %w", err)
		}
		opts = append(opts, WithTable(table))
	}
	return NewPolicy(ActionsFor(flexible), opts...), nil
}

func (g *Generator) fail(stage string) {
	if g.recorder != nil {
		g.recorder.ObserveFailure(stage)
	}
}
