package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(ctx context.Context, userID string, day time.Time) (*scheduler.Schedule, error) {
	if g.err != nil {
		return nil, g.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("missing deadline")
	}
	id := int64(4)
	start := time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, time.Local)
	return &scheduler.Schedule{
		RunID:  "run-1",
		UserID: userID,
		Date:   day.Format(domain.DateLayout),
		Entries: []domain.ScheduleEntry{
			{TaskID: &id, Label: "write", Start: start, End: start.Add(30 * time.Minute), Type: domain.EntryFlexible, Priority: domain.PriorityHigh},
			{Label: "Break", Start: start.Add(30 * time.Minute), End: start.Add(40 * time.Minute), Type: domain.EntryBreak},
		},
		Reward: 9.5,
	}, nil
}

type stubUsers map[string]*domain.User

func (u stubUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	return u[userID], nil
}

func startServer(t *testing.T, gen Generator) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	users := stubUsers{"u1": {UserID: "u1", Preferences: domain.UserPreferences{
		FocusPeriod: domain.FocusMorning, WorkStyle: domain.WorkStyleShortSprints, StressLevel: 2,
	}}}
	srv := NewGRPCServer(NewServer(gen, users, time.Second, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGenerateScheduleRoundTrip(t *testing.T) {
	client := startServer(t, &stubGenerator{})
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local)

	sched, err := client.GenerateSchedule(context.Background(), "u1", day)
	require.NoError(t, err)

	assert.Equal(t, "run-1", sched.RunID)
	assert.Equal(t, "2025-03-10", sched.Date)
	assert.InDelta(t, 9.5, sched.Reward, 1e-9)
	require.Len(t, sched.Entries, 2)
	require.NotNil(t, sched.Entries[0].TaskID)
	assert.Equal(t, int64(4), *sched.Entries[0].TaskID)
	assert.Equal(t, domain.PriorityHigh, sched.Entries[0].Priority)
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local), sched.Entries[0].Start)
	assert.Nil(t, sched.Entries[1].TaskID)
	assert.True(t, sched.Entries[1].IsBreak())
}

func TestGenerateScheduleErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{scheduler.ErrRunInProgress, codes.Aborted},
		{store.ErrUserNotFound, codes.NotFound},
		{errors.New("database is locked"), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		client := startServer(t, &stubGenerator{err: tt.err})
		_, err := client.GenerateSchedule(context.Background(), "u1", time.Now())
		assert.Equal(t, tt.want, status.Code(err), "error %v", tt.err)
	}

	client := startServer(t, &stubGenerator{})
	_, err := client.GenerateSchedule(context.Background(), "../etc", time.Now())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEvaluateSchedule(t *testing.T) {
	client := startServer(t, &stubGenerator{})
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	entries := []domain.ScheduleEntry{
		{Label: "Break", Start: start, End: start.Add(10 * time.Minute), Type: domain.EntryBreak},
	}

	reward, err := client.EvaluateSchedule(context.Background(), "u1", entries, nil)
	require.NoError(t, err)
	want := scheduler.Evaluate(entries, domain.UserPreferences{
		FocusPeriod: domain.FocusMorning, WorkStyle: domain.WorkStyleShortSprints, StressLevel: 2,
	})
	assert.InDelta(t, want, reward, 1e-9)

	prefs := domain.UserPreferences{FocusPeriod: domain.FocusEvening, WorkStyle: domain.WorkStyleLongChunks, StressLevel: 9}
	reward, err = client.EvaluateSchedule(context.Background(), "", entries, &prefs)
	require.NoError(t, err)
	assert.InDelta(t, scheduler.Evaluate(entries, prefs), reward, 1e-9)

	_, err = client.EvaluateSchedule(context.Background(), "ghost", entries, nil)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
