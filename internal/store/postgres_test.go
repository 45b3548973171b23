package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostgres_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	ctx := context.Background()
	repo, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	require.NoError(t, repo.Ping(ctx))

	userID := "pgtest-" + time.Now().Format("150405.000000")
	seedUser(t, repo, userID)

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	prefs, err := tx.FetchUserPrefs(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 6, prefs.StressLevel)

	tasks, err := tx.FetchTasks(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, tasks)
}
