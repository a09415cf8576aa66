// Package session holds the mutable state of one walkthrough run: per-step
// statuses, stored results, and manual-completion signals.
//
// A Session is exclusively owned by one run; there is no cross-session
// sharing. Writes still go through a mutex, following the engine's state
// store contract, so a driver that chooses to execute eligible steps
// concurrently stays correct without changes here.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Status is the execution state of a step within a session.
type Status int

const (
	// Pending indicates the step has not been attempted yet.
	Pending Status = iota
	// Running indicates the step is currently being executed.
	Running
	// Completed indicates the step finished successfully, or a manual step
	// was marked complete by the user.
	Completed
	// Failed indicates the step's render or execution failed.
	Failed
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one step execution (or manual completion).
type Result struct {
	Status Status
	// StatusCode is the HTTP status code, 0 when no response was received.
	StatusCode int
	// RawBody is the unparsed response body.
	RawBody string
	// Fields holds the named values extracted from the response (or supplied
	// by the user for a manual step), consumed by downstream substitutions.
	Fields map[string]string
	// Err carries the failure cause for a failed step.
	Err error
}

// InvariantError signals engine-internal state corruption: it should never
// occur under correct driving logic and is fatal to the session.
type InvariantError struct {
	StepID string
	Detail string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("session invariant violated: step %s: %s", e.StepID, e.Detail)
}

// Session is the process-scoped state of a single run. It is created at
// session start, mutated step by step, and discarded at session end.
type Session struct {
	id string

	mu       sync.RWMutex
	statuses map[string]Status
	results  map[string]Result
}

// New creates an empty session with a fresh ULID identifier.
func New() *Session {
	return &Session{
		id:       ulid.Make().String(),
		statuses: make(map[string]Status),
		results:  make(map[string]Result),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current status of the given step. Unknown steps are
// Pending.
func (s *Session) Status(stepID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[stepID]
}

// Result returns the stored result for the given step, if any.
func (s *Session) Result(stepID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[stepID]
	return r, ok
}

// Field returns the named extracted field of a completed step. The second
// return is false when the step has no result, is not completed, or the
// field was never extracted.
func (s *Session) Field(stepID, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[stepID]
	if !ok || r.Status != Completed {
		return "", false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Begin transitions a step from Pending to Running. Any other starting
// state is a driving-logic bug and yields an InvariantError.
func (s *Session) Begin(stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.statuses[stepID]; st != Pending {
		return &InvariantError{StepID: stepID, Detail: fmt.Sprintf("Begin called in state %s", st)}
	}
	s.statuses[stepID] = Running
	return nil
}

// Finish records the result of a step. Results are written exactly once per
// run per step; a second write without an intervening Restart is an
// InvariantError.
func (s *Session) Finish(stepID string, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[stepID]; exists {
		return &InvariantError{StepID: stepID, Detail: "result written twice"}
	}
	s.results[stepID] = r
	s.statuses[stepID] = r.Status
	return nil
}

// CompleteManual injects a synthetic completed result for a manual step,
// carrying the user-supplied field values. It is the only completion path
// that does not go through the executor.
func (s *Session) CompleteManual(stepID string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[stepID]; exists {
		return &InvariantError{StepID: stepID, Detail: "result written twice"}
	}
	if fields == nil {
		fields = map[string]string{}
	}
	s.results[stepID] = Result{Status: Completed, Fields: fields}
	s.statuses[stepID] = Completed
	return nil
}

// Restart clears the result of a step and cascades invalidation over the
// given dependent set (typically the transitive dependents from the graph),
// resetting every affected step to Pending. This is the explicit policy for
// re-running an upstream step: stale substituted values never survive.
func (s *Session) Restart(stepID string, dependents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, stepID)
	delete(s.statuses, stepID)
	for _, dep := range dependents {
		delete(s.results, dep)
		delete(s.statuses, dep)
	}
}

// CompletedIDs returns the sorted IDs of all completed steps.
func (s *Session) CompletedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, st := range s.statuses {
		if st == Completed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of all stored results keyed by step ID, for the
// presentation layer.
func (s *Session) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.results))
	for id, r := range s.results {
		out[id] = r
	}
	return out
}
