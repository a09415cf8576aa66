// Package scheduler drives a session through the flow graph: it repeatedly
// resolves the set of eligible steps, renders and executes the automatic
// ones, and surfaces manual ones to a prompter until nothing is eligible.
//
// Dependency ordering is the correctness property; whether simultaneously
// eligible steps run sequentially or concurrently is not. This scheduler
// runs them sequentially in declared order, which keeps runs reproducible.
package scheduler

import (
	"context"
	"fmt"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/ctxlog"
	"github.com/vk/tokengridgo/internal/dag"
	"github.com/vk/tokengridgo/internal/executor"
	"github.com/vk/tokengridgo/internal/render"
	"github.com/vk/tokengridgo/internal/session"
)

// ManualPrompter supplies completions for manual steps. Await blocks until
// the external actor marks one of the offered steps complete, returning its
// ID and the user-supplied field values. An error means no completion will
// arrive (for example, end of input); the run then parks as "waiting".
type ManualPrompter interface {
	Await(ctx context.Context, eligible []*config.Step) (stepID string, fields map[string]string, err error)
}

// Summary describes where a run ended up. A run blocked on manual steps is
// not an error state; it is waiting.
type Summary struct {
	Completed      []string
	Failed         []string
	AwaitingManual []string
	Blocked        []string
	Waiting        bool
}

// Scheduler owns the driving loop for one flow.
type Scheduler struct {
	flow       *config.Flow
	graph      *dag.Graph
	exec       *executor.Executor
	discovered map[string]string
	baseURL    string
	prompter   ManualPrompter
}

// New assembles a scheduler. A nil prompter makes the run non-interactive:
// eligible manual steps park the run instead of prompting.
func New(flow *config.Flow, graph *dag.Graph, exec *executor.Executor, discovered map[string]string, baseURL string, prompter ManualPrompter) *Scheduler {
	return &Scheduler{
		flow:       flow,
		graph:      graph,
		exec:       exec,
		discovered: discovered,
		baseURL:    baseURL,
		prompter:   prompter,
	}
}

// Eligible returns, in declared order, every step that is not completed and
// whose dependencies are all completed. Manual steps are included so the
// caller can present them; the scheduler never executes them itself.
//
// A completed step with a non-completed dependency means the driving logic
// corrupted the session; that is an InvariantError, not something to
// silently recover from.
func (s *Scheduler) Eligible(sess *session.Session) ([]*config.Step, error) {
	var eligible []*config.Step
	for _, step := range s.flow.Steps {
		depsDone := true
		for _, dep := range step.DependsOn {
			if sess.Status(dep) != session.Completed {
				depsDone = false
				break
			}
		}
		if sess.Status(step.ID) == session.Completed {
			if !depsDone {
				return nil, &session.InvariantError{
					StepID: step.ID,
					Detail: "completed while a dependency is not completed",
				}
			}
			continue
		}
		if depsDone {
			eligible = append(eligible, step)
		}
	}
	return eligible, nil
}

// RunStep renders and executes one automatic step. Substitution failures
// mark the step failed (dependents stay blocked, retry is possible after a
// restart); only session invariant violations are returned as errors.
func (s *Scheduler) RunStep(ctx context.Context, sess *session.Session, step *config.Step) (session.Result, error) {
	logger := ctxlog.FromContext(ctx).With("step", step.ID)

	req, err := render.Render(step, sess, s.discovered, s.flow.EndpointDefaults, s.baseURL)
	if err != nil {
		logger.Warn("Step template could not be rendered.", "error", err)
		if berr := sess.Begin(step.ID); berr != nil {
			return session.Result{}, berr
		}
		result := session.Result{Status: session.Failed, Err: err}
		if ferr := sess.Finish(step.ID, result); ferr != nil {
			return session.Result{}, ferr
		}
		return result, nil
	}

	return s.exec.Execute(ctx, sess, step, req)
}

// Run drives the session until no step is eligible-and-pending: either the
// flow completed, a failure blocked the rest, or the remaining eligible
// steps are manual and no prompter can complete them.
func (s *Scheduler) Run(ctx context.Context, sess *session.Session) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	attempted := make(map[string]bool)
	waiting := false

loop:
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		eligible, err := s.Eligible(sess)
		if err != nil {
			return nil, err
		}

		// Automatic steps first; re-evaluate eligibility after each one so
		// fresh results unblock dependents immediately.
		for _, step := range eligible {
			if step.Manual || attempted[step.ID] || sess.Status(step.ID) != session.Pending {
				continue
			}
			attempted[step.ID] = true
			if _, err := s.RunStep(ctx, sess, step); err != nil {
				return nil, err
			}
			continue loop
		}

		// Only manual (or already attempted) steps remain eligible.
		var manuals []*config.Step
		for _, step := range eligible {
			if step.Manual && sess.Status(step.ID) == session.Pending {
				manuals = append(manuals, step)
			}
		}
		if len(manuals) == 0 {
			break
		}
		if s.prompter == nil {
			logger.Info("⏸️ Run is waiting on manual steps.", "count", len(manuals))
			waiting = true
			break
		}

		id, fields, err := s.prompter.Await(ctx, manuals)
		if err != nil {
			logger.Info("Manual input ended, parking run.", "reason", err)
			waiting = true
			break
		}
		if !containsStep(manuals, id) {
			logger.Warn("Ignoring completion for a step that is not an eligible manual step.", "step", id)
			continue
		}
		if err := sess.CompleteManual(id, fields); err != nil {
			return nil, err
		}
		logger.Info("✅ Manual step marked complete.", "step", id, "fields", len(fields))
	}

	return s.summarize(sess, waiting), nil
}

// summarize buckets every step by its final state, in declared order.
func (s *Scheduler) summarize(sess *session.Session, waiting bool) *Summary {
	sum := &Summary{Waiting: waiting}
	eligible, err := s.Eligible(sess)
	eligibleSet := make(map[string]bool)
	if err == nil {
		for _, step := range eligible {
			eligibleSet[step.ID] = true
		}
	}
	for _, step := range s.flow.Steps {
		switch sess.Status(step.ID) {
		case session.Completed:
			sum.Completed = append(sum.Completed, step.ID)
		case session.Failed:
			sum.Failed = append(sum.Failed, step.ID)
		default:
			if step.Manual && eligibleSet[step.ID] {
				sum.AwaitingManual = append(sum.AwaitingManual, step.ID)
			} else {
				sum.Blocked = append(sum.Blocked, step.ID)
			}
		}
	}
	return sum
}

// Restart clears a step's result and cascades invalidation over its
// transitive dependents, so the step (and everything downstream) can be
// re-entered with fresh upstream values.
func (s *Scheduler) Restart(sess *session.Session, stepID string) error {
	if s.flow.Step(stepID) == nil {
		return fmt.Errorf("unknown step: %s", stepID)
	}
	dependents, err := s.graph.TransitiveDependents(stepID)
	if err != nil {
		return err
	}
	sess.Restart(stepID, dependents)
	return nil
}

func containsStep(steps []*config.Step, id string) bool {
	for _, s := range steps {
		if s.ID == id {
			return true
		}
	}
	return false
}
