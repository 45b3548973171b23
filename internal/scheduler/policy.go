package scheduler

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

// Learning parameters of the placement policy.
const (
	LearningRate   = 0.1
	DiscountFactor = 0.95
	Epsilon        = 0.1
)

// Style flags carried in AgentState.
const (
	StyleLongChunks   = 0
	StyleShortSprints = 1
)

// AgentState is the discretized decision context. It is comparable and used
// directly as a Q-table key.
type AgentState struct {
	Hour           int `yaml:"hour"`
	RemainingTasks int `yaml:"remaining_tasks"`
	StressLevel    int `yaml:"stress_level"`
	Style          int `yaml:"style"`
}

// NewAgentState builds the state observed at cursor with remaining flexible tasks.
func NewAgentState(cursor time.Time, remaining int, prefs domain.UserPreferences) AgentState {
	style := StyleShortSprints
	if prefs.WorkStyle == domain.WorkStyleLongChunks {
		style = StyleLongChunks
	}
	return AgentState{
		Hour:           cursor.Hour(),
		RemainingTasks: remaining,
		StressLevel:    prefs.StressLevel,
		Style:          style,
	}
}

// Action is either "place the task with TaskID" or "insert a break".
type Action struct {
	TaskID int64 `yaml:"task_id,omitempty"`
	Break  bool  `yaml:"break,omitempty"`
}

// BreakAction is the sentinel break action.
var BreakAction = Action{Break: true}

// TaskAction returns the action placing the given task.
func TaskAction(taskID int64) Action {
	return Action{TaskID: taskID}
}

func (a Action) String() string {
	if a.Break {
		return "break"
	}
	return fmt.Sprintf("task:%d", a.TaskID)
}

// QTable maps a state to the learned value of each action.
type QTable map[AgentState]map[Action]float64

// Clone returns a deep copy of the table.
func (q QTable) Clone() QTable {
	out := make(QTable, len(q))
	for s, row := range q {
		cp := make(map[Action]float64, len(row))
		for a, v := range row {
			cp[a] = v
		}
		out[s] = cp
	}
	return out
}

// Policy is an epsilon-greedy tabular Q-learning agent. It is not safe for
// concurrent use; build one per scheduling run.
type Policy struct {
	table   QTable
	actions []Action
	rng     *rand.Rand
	alpha   float64
	gamma   float64
	epsilon float64
	rewards []float64
	logger  *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithRand sets the random source used for exploration.
func WithRand(rng *rand.Rand) PolicyOption {
	return func(p *Policy) { p.rng = rng }
}

// WithTable seeds the policy with a previously learned table. The table is
// used in place; pass a clone to keep the original.
func WithTable(table QTable) PolicyOption {
	return func(p *Policy) {
		if table != nil {
			p.table = table
		}
	}
}

// WithEpsilon overrides the exploration rate.
func WithEpsilon(epsilon float64) PolicyOption {
	return func(p *Policy) { p.epsilon = epsilon }
}

// WithPolicyLogger sets the logger used for terminal reward reporting.
func WithPolicyLogger(logger *slog.Logger) PolicyOption {
	return func(p *Policy) { p.logger = logger }
}

// NewPolicy creates a policy over a fixed action space.
func NewPolicy(actions []Action, opts ...PolicyOption) *Policy {
	p := &Policy{
		table:   make(QTable),
		actions: append([]Action(nil), actions...),
		alpha:   LearningRate,
		gamma:   DiscountFactor,
		epsilon: Epsilon,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Actions returns the action space fixed at construction.
func (p *Policy) Actions() []Action {
	return append([]Action(nil), p.actions...)
}

// Select picks among the available actions. With probability epsilon it
// explores uniformly; otherwise it takes the highest-valued action, ties going
// to the earliest in available. Returns false when nothing is available.
func (p *Policy) Select(state AgentState, available []Action) (Action, bool) {
	if len(available) == 0 {
		return Action{}, false
	}
	if p.rng.Float64() < p.epsilon {
		return available[p.rng.IntN(len(available))], true
	}

	row := p.table[state]
	best := available[0]
	bestValue := row[best]
	for _, a := range available[1:] {
		if v := row[a]; v > bestValue {
			best, bestValue = a, v
		}
	}
	return best, true
}

// Update applies one-step Q-learning for the transition (state, action, reward, next).
func (p *Policy) Update(state AgentState, action Action, reward float64, next AgentState) {
	row := p.row(state)
	nextRow := p.row(next)
	if _, ok := row[action]; !ok {
		row[action] = 0
	}

	nextMax := 0.0
	first := true
	for _, v := range nextRow {
		if first || v > nextMax {
			nextMax, first = v, false
		}
	}

	row[action] = (1-p.alpha)*row[action] + p.alpha*(reward+p.gamma*nextMax)
}

// Finish records the whole-schedule reward. It is kept for reporting only and
// never written to the table.
func (p *Policy) Finish(reward float64) {
	p.rewards = append(p.rewards, reward)
	p.logger.Info("Final schedule reward", "reward", reward)
}

// Value returns the stored value of an action in a state, 0 when unseen.
func (p *Policy) Value(state AgentState, action Action) float64 {
	return p.table[state][action]
}

// Rewards returns the terminal rewards recorded so far.
func (p *Policy) Rewards() []float64 {
	return append([]float64(nil), p.rewards...)
}

// Snapshot returns a copy of the learned table.
func (p *Policy) Snapshot() QTable {
	return p.table.Clone()
}

// row returns the row for state, creating it with every action at 0.
func (p *Policy) row(state AgentState) map[Action]float64 {
	row, ok := p.table[state]
	if !ok {
		row = make(map[Action]float64, len(p.actions))
		for _, a := range p.actions {
			row[a] = 0
		}
		p.table[state] = row
	}
	return row
}
