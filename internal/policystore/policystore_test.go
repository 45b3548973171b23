package policystore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

func TestLoadMissingReturnsNil(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	table, err := s.Load("u1")
	require.NoError(t, err)
	assert.Nil(t, table)
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	morning := scheduler.AgentState{Hour: 8, RemainingTasks: 3, StressLevel: 4, Style: scheduler.StyleShortSprints}
	noon := scheduler.AgentState{Hour: 12, RemainingTasks: 1, StressLevel: 4, Style: scheduler.StyleShortSprints}
	table := scheduler.QTable{
		morning: {scheduler.TaskAction(7): 0.1, scheduler.BreakAction: 0.005},
		noon:    {scheduler.TaskAction(9): 0.19},
	}

	require.NoError(t, s.Save("u1", table))
	_, err = os.Stat(filepath.Join(dir, "u1.yaml.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded, err := s.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, table, loaded)
}

func TestRejectsUnsafeUserID(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("../etc/passwd")
	assert.True(t, errors.Is(err, ErrInvalidUserID))
	assert.True(t, errors.Is(s.Save("a/b", scheduler.QTable{}), ErrInvalidUserID))
}

func TestCorruptedAndIncompatibleFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("rows: [unterminated"), 0o644))
	_, err = s.Load("bad")
	assert.True(t, errors.Is(err, ErrCorruptedTable))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.yaml"), []byte("version: 7\nrows: []\n"), 0o644))
	_, err = s.Load("old")
	assert.True(t, errors.Is(err, ErrIncompatibleVersion))
}
