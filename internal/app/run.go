package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/tokengridgo/internal/ctxlog"
	"github.com/vk/tokengridgo/internal/dag"
	"github.com/vk/tokengridgo/internal/discovery"
	"github.com/vk/tokengridgo/internal/executor"
	"github.com/vk/tokengridgo/internal/scheduler"
	"github.com/vk/tokengridgo/internal/session"
)

// Run executes the walkthrough: build the graph, discover the server's
// endpoints, then drive a fresh session through the scheduler until the
// flow is complete or parked on manual steps.
func (a *App) Run(ctx context.Context) (*scheduler.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	a.logger.Debug("Building dependency graph from flow model...")
	graph, err := dag.Build(ctx, a.flow)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(a.flow.Steps))

	disco := discovery.NewClient(a.config.RequestTimeout)
	defer disco.Close()
	doc, err := disco.Fetch(ctx, a.config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("authorization server validation failed: %w", err)
	}

	exec := executor.New(a.config.RequestTimeout)
	defer exec.Close()

	var prompter scheduler.ManualPrompter
	if !a.config.NonInteractive {
		prompter = scheduler.NewLinePrompter(a.inR, a.outW)
	}

	sess := session.New()
	a.logger.Info("🚀 Starting walkthrough session.", "session", sess.ID(), "steps", len(a.flow.Steps))

	sched := scheduler.New(a.flow, graph, exec, doc.Endpoints, a.config.ServerURL, prompter)
	summary, err := sched.Run(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	a.printSummary(summary)
	a.logger.Debug("App.Run method finished.")
	return summary, nil
}

// printSummary writes the terminal state of the run for the user.
func (a *App) printSummary(summary *scheduler.Summary) {
	fmt.Fprintf(a.outW, "\nCompleted: %s\n", joinOrDash(summary.Completed))
	fmt.Fprintf(a.outW, "Failed:    %s\n", joinOrDash(summary.Failed))
	fmt.Fprintf(a.outW, "Blocked:   %s\n", joinOrDash(summary.Blocked))
	if summary.Waiting {
		fmt.Fprintf(a.outW, "Waiting on manual steps: %s\n", joinOrDash(summary.AwaitingManual))
	}
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
