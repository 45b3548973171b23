//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

func TestGenerateAgainstSQLite(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "fika.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	gen := scheduler.NewGenerator(repo, scheduler.GeneratorConfig{ClearExisting: true})
	h := NewRouter(RouterConfig{Repo: repo, Generator: gen, GenerateTimeout: 5 * time.Second})

	rr := do(t, h, http.MethodPost, "/api/users", "", map[string]interface{}{
		"user_id": "ada",
		"preferences": map[string]interface{}{
			"focus_period": "morning",
			"work_style":   "short_sprints",
			"stress_level": 5,
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rr.Code, rr.Body.String())
	}
	for _, body := range []map[string]interface{}{
		{"name": "standup", "estimated_time": 15, "fixed_time": true, "start_time": "2025-03-10 09:00", "end_time": "2025-03-10 09:15"},
		{"name": "review", "estimated_time": 40, "priority": "High"},
		{"name": "email", "estimated_time": 20, "priority": "Low"},
	} {
		if rr := do(t, h, http.MethodPost, "/api/tasks", "ada", body); rr.Code != http.StatusCreated {
			t.Fatalf("create task: %d %s", rr.Code, rr.Body.String())
		}
	}

	for run := 0; run < 2; run++ {
		rr = do(t, h, http.MethodPost, "/api/schedule/generate?date=2025-03-10", "ada", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("generate run %d: %d %s", run, rr.Code, rr.Body.String())
		}
	}
	var generated scheduler.Schedule
	decode(t, rr, &generated)

	stored, err := repo.ListSchedule(context.Background(), "ada", time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("list schedule: %v", err)
	}
	if len(stored) != len(generated.Entries) {
		t.Fatalf("clear-before-generate must replace the day: stored %d, generated %d", len(stored), len(generated.Entries))
	}
	if stored[0].Type != domain.EntryFixed || stored[0].Start.Hour() != 9 {
		t.Fatalf("expected the fixed standup first, got %+v", stored[0])
	}
}
