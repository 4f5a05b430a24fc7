package history

import (
	"errors"
	"slices"
	"sync"

	"github.com/hupe1980/reactmesh/coordinator"
	"github.com/hupe1980/reactmesh/core"
)

// ErrNotFound is returned for unknown ids.
var ErrNotFound = errors.New("history entry not found")

// Store records finished runs and workflows.
type Store interface {
	SaveRun(r *core.AgentResult) error
	SaveWorkflow(r *coordinator.Result) error
	Run(runID string) (*core.AgentResult, error)
	Workflow(id string) (*coordinator.Result, error)
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a volatile Store keeping the most recent entries in process
// memory. It is safe for concurrent access and best suited for tests or
// ephemeral servers. Results are stored by reference; their traces are frozen
// and must not be mutated by callers.
type InMemoryStore struct {
	mu        sync.RWMutex
	limit     int
	runs      map[string]*core.AgentResult
	runOrder  []string
	workflows map[string]*coordinator.Result
	wfOrder   []string
}

// NewInMemoryStore constructs an empty store keeping at most limit runs and
// limit workflows; zero or negative means unbounded.
func NewInMemoryStore(limit int) *InMemoryStore {
	return &InMemoryStore{
		limit:     limit,
		runs:      make(map[string]*core.AgentResult),
		workflows: make(map[string]*coordinator.Result),
	}
}

// SaveRun records a finished run under its RunID.
func (s *InMemoryStore) SaveRun(r *core.AgentResult) error {
	if r == nil || r.RunID == "" {
		return errors.New("history: run without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[r.RunID]; !ok {
		s.runOrder = append(s.runOrder, r.RunID)
	}

	s.runs[r.RunID] = r
	s.runOrder = evict(s.runOrder, s.limit, func(id string) { delete(s.runs, id) })

	return nil
}

// SaveWorkflow records a workflow result and every agent result it contains.
func (s *InMemoryStore) SaveWorkflow(r *coordinator.Result) error {
	if r == nil || r.ID == "" {
		return errors.New("history: workflow without id")
	}

	for _, res := range r.Results {
		if res != nil {
			if err := s.SaveRun(res); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[r.ID]; !ok {
		s.wfOrder = append(s.wfOrder, r.ID)
	}

	s.workflows[r.ID] = r
	s.wfOrder = evict(s.wfOrder, s.limit, func(id string) { delete(s.workflows, id) })

	return nil
}

// Run returns a recorded run.
func (s *InMemoryStore) Run(runID string) (*core.AgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.runs[runID]; ok {
		return r, nil
	}

	return nil, ErrNotFound
}

// Workflow returns a recorded workflow result.
func (s *InMemoryStore) Workflow(id string) (*coordinator.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.workflows[id]; ok {
		return r, nil
	}

	return nil, ErrNotFound
}

// RunsOf returns the recorded runs of agent, oldest first.
func (s *InMemoryStore) RunsOf(agent string) []*core.AgentResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.AgentResult

	for _, id := range s.runOrder {
		if r := s.runs[id]; r.Agent == agent {
			out = append(out, r)
		}
	}

	return out
}

// Len returns the number of recorded runs and workflows.
func (s *InMemoryStore) Len() (runs, workflows int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.runs), len(s.workflows)
}

// evict drops the oldest ids beyond limit; caller holds the write lock.
func evict(order []string, limit int, drop func(id string)) []string {
	if limit <= 0 || len(order) <= limit {
		return order
	}

	n := len(order) - limit
	for _, id := range order[:n] {
		drop(id)
	}

	return slices.Clone(order[n:])
}
