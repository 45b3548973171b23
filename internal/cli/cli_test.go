package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "fikactl", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	names := map[string]*cobra.Command{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = c
	}
	for _, want := range []string{"generate", "evaluate", "gaps", "version"} {
		assert.Contains(t, names, want)
	}

	gen := names["generate"]
	require.NotNil(t, gen)
	assert.Equal(t, "u", gen.Flags().Lookup("user").Shorthand)
	assert.NotNil(t, gen.Flags().Lookup("server"))
	assert.NotNil(t, gen.Flags().Lookup("policy-dir"))

	eval := names["evaluate"]
	require.NotNil(t, eval)
	assert.Equal(t, "f", eval.Flags().Lookup("file").Shorthand)
	assert.Equal(t, "5", eval.Flags().Lookup("stress").DefValue)
}

func TestGapsCommand(t *testing.T) {
	out, err := run(t, "gaps", "--date", "2025-03-10", "--fixed", "09:00-10:00", "--fixed", "12:00-13:00")
	require.NoError(t, err)
	assert.Equal(t, "08:00-09:00 (60 min)\n10:00-12:00 (120 min)\n13:00-17:00 (240 min)\n", out)
}

func TestGapsCommandRejectsBadBlock(t *testing.T) {
	_, err := run(t, "gaps", "--fixed", "09:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HH:MM-HH:MM")
}

func TestEvaluateCommandWithFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	doc := `{"entries": [
		{"task_id": 1, "task": "review", "start": "2025-03-10 08:00", "end": "2025-03-10 08:30", "type": "Flexible", "priority": "Medium"},
		{"task_id": null, "task": "Break", "start": "2025-03-10 08:30", "end": "2025-03-10 08:40", "type": "Break"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := run(t, "evaluate", "-f", path, "--focus", "morning", "--style", "short_sprints", "--stress", "0")
	require.NoError(t, err)

	var got struct {
		Reward  float64 `json:"reward"`
		Entries int     `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Entries)
	assert.InDelta(t, 2+2.0*16/24+1+3+5, got.Reward, 1e-9)
}

func TestEvaluateCommandRequiresPreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	_, err := run(t, "evaluate", "-f", path)
	require.Error(t, err)

	_, err = run(t, "evaluate", "-f", path, "--focus", "midnight", "--style", "long_chunks")
	require.Error(t, err)
}

func TestGenerateCommandAgainstSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fika.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("POLICY_DIR", "")
	t.Setenv("DAY_START", "08:00")
	t.Setenv("DAY_END", "17:00")

	repo, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID: "ada",
		Preferences: domain.UserPreferences{
			FocusPeriod: domain.FocusMorning,
			WorkStyle:   domain.WorkStyleLongChunks,
			StressLevel: 4,
		},
	}))
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	end := start.Add(30 * time.Minute)
	for _, task := range []*domain.Task{
		{UserID: "ada", Name: "standup", EstimatedTime: 30, FixedTime: true, StartTime: &start, EndTime: &end, Priority: domain.PriorityMedium},
		{UserID: "ada", Name: "review", EstimatedTime: 45, Priority: domain.PriorityHigh},
	} {
		_, err := repo.CreateTask(ctx, task)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	out, err := run(t, "generate", "-u", "ada", "-d", "2025-03-10")
	require.NoError(t, err)

	var sched scheduler.Schedule
	require.NoError(t, json.Unmarshal([]byte(out), &sched))
	assert.Equal(t, "ada", sched.UserID)
	assert.Equal(t, "2025-03-10", sched.Date)
	require.NotEmpty(t, sched.Entries)
	assert.Equal(t, domain.EntryFixed, sched.Entries[0].Type)
	assert.Equal(t, start, sched.Entries[0].Start)
}

func TestGenerateCommandRequiresUser(t *testing.T) {
	_, err := run(t, "generate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user is required")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fikactl "+Version+"\n", out)
}
