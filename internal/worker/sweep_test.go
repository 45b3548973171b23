package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

type listUsers []string

func (l listUsers) ListUsersWithPendingTasks(context.Context) ([]string, error) {
	return l, nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	results map[string][]error
	calls   map[string]int
	days    []time.Time
}

func (g *scriptedGenerator) Generate(_ context.Context, userID string, day time.Time) (*scheduler.Schedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.calls[userID]
	g.calls[userID]++
	g.days = append(g.days, day)
	if errs := g.results[userID]; n < len(errs) {
		return nil, errs[n]
	}
	return &scheduler.Schedule{UserID: userID}, nil
}

type sweepCounts struct {
	regenerated, skipped int
}

func (s *sweepCounts) ObserveSweep(regenerated, skipped int) {
	s.regenerated += regenerated
	s.skipped += skipped
}

func TestSweep(t *testing.T) {
	gen := &scriptedGenerator{
		calls: map[string]int{},
		results: map[string][]error{
			"busy":   {errors.New("SQLITE_BUSY"), errors.New("database is locked")},
			"racing": {scheduler.ErrRunInProgress},
			"broken": {errors.New("boom")},
		},
	}
	rec := &sweepCounts{}
	loc := time.FixedZone("test", 2*3600)
	s := NewSweeper(listUsers{"ok", "busy", "racing", "broken"}, gen,
		Config{Location: loc, RetryDelay: time.Millisecond}, rec, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC) }

	stats := s.Sweep(context.Background())

	assert.Equal(t, Stats{Regenerated: 2, Skipped: 1, Failed: 1}, stats)
	assert.Equal(t, 3, gen.calls["busy"], "conflicts are retried")
	assert.Equal(t, 1, gen.calls["broken"], "other errors are not retried")
	assert.Equal(t, sweepCounts{regenerated: 2, skipped: 1}, *rec)

	require.NotEmpty(t, gen.days)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), gen.days[0], "day is taken in the sweep location")
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewSweeper(listUsers{}, &scriptedGenerator{calls: map[string]int{}}, Config{Spec: "not a cron"}, nil, nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(listUsers{}, &scriptedGenerator{calls: map[string]int{}}, Config{Spec: "@daily"}, nil, nil)
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.c.Entries(), 1)
	cancel()
}
