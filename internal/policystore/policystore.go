// Package policystore persists learned Q-tables as one YAML file per user.
package policystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

const schemaVersion = 1

var (
	// ErrCorruptedTable is returned when a table file cannot be decoded.
	ErrCorruptedTable = errors.New("corrupted policy table")
	// ErrIncompatibleVersion is returned for files written with another schema version.
	ErrIncompatibleVersion = errors.New("incompatible policy table version")
	// ErrInvalidUserID is returned for ids that cannot be used as file names.
	ErrInvalidUserID = errors.New("invalid user id for policy table")
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// row is one (state, action) value. YAML map keys cannot be structs, so the
// table is flattened.
type row struct {
	State  scheduler.AgentState `yaml:"state"`
	Action scheduler.Action     `yaml:"action"`
	Value  float64              `yaml:"value"`
}

type document struct {
	Version   int       `yaml:"version"`
	UserID    string    `yaml:"user_id"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Rows      []row     `yaml:"rows"`
}

var _ scheduler.TableStore = (*FileStore)(nil)

// FileStore keeps tables under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// New creates the directory if needed and returns a store rooted at it.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create policy dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) (string, error) {
	if !safeID.MatchString(userID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return filepath.Join(s.dir, userID+".yaml"), nil
}

// Load returns the stored table of userID, or nil when none was saved yet.
func (s *FileStore) Load(userID string) (scheduler.QTable, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy table: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedTable, err)
	}
	if doc.Version != schemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, doc.Version, schemaVersion)
	}

	table := make(scheduler.QTable)
	for _, r := range doc.Rows {
		actions, ok := table[r.State]
		if !ok {
			actions = make(map[scheduler.Action]float64)
			table[r.State] = actions
		}
		actions[r.Action] = r.Value
	}
	return table, nil
}

// Save replaces the stored table of userID atomically.
func (s *FileStore) Save(userID string, table scheduler.QTable) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}

	doc := document{
		Version:   schemaVersion,
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
		Rows:      flatten(table),
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal policy table: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write policy table: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename policy table: %w", err)
	}
	return nil
}

// flatten returns the rows of table in a stable order.
func flatten(table scheduler.QTable) []row {
	rows := make([]row, 0, len(table))
	for state, actions := range table {
		for action, value := range actions {
			rows = append(rows, row{State: state, Action: action, Value: value})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.State != b.State {
			if a.State.Hour != b.State.Hour {
				return a.State.Hour < b.State.Hour
			}
			if a.State.RemainingTasks != b.State.RemainingTasks {
				return a.State.RemainingTasks < b.State.RemainingTasks
			}
			if a.State.StressLevel != b.State.StressLevel {
				return a.State.StressLevel < b.State.StressLevel
			}
			return a.State.Style < b.State.Style
		}
		if a.Action.Break != b.Action.Break {
			return !a.Action.Break
		}
		return a.Action.TaskID < b.Action.TaskID
	})
	return rows
}
