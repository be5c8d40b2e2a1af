package service

import (
	"sort"
	"sync"
	"time"

	"github.com/mweber/stocklens/internal/domain"
)

// RunRegistry tracks the status of ingestion runs keyed by collection
// name. It is the explicit, shared replacement for a process-global status
// map: one instance is constructed at startup and handed to whoever needs
// to read or advance run state. Records are ephemeral and vanish on
// restart.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]domain.PipelineRun
}

// NewRunRegistry creates an empty run registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{
		runs: make(map[string]domain.PipelineRun),
	}
}

// Start registers a new run in the starting state.
func (r *RunRegistry) Start(name, symbol string) {
	r.set(domain.PipelineRun{
		Name:      name,
		Symbol:    symbol,
		Status:    domain.RunStatusStarting,
		Message:   "run accepted",
		Timestamp: time.Now().UTC(),
	})
}

// Update advances a run to the given status. Unknown names are created on
// the fly so CLI-driven runs show up too.
func (r *RunRegistry) Update(name string, status domain.RunStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.runs[name]
	run.Name = name
	run.Status = status
	run.Message = message
	run.Timestamp = time.Now().UTC()
	r.runs[name] = run
}

func (r *RunRegistry) set(run domain.PipelineRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.Name] = run
}

// Get returns the run record for a name.
func (r *RunRegistry) Get(name string) (domain.PipelineRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[name]
	return run, ok
}

// Names returns all known run names sorted lexicographically.
func (r *RunRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.runs))
	for name := range r.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
