package dag

import (
	"context"
	"fmt"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/ctxlog"
)

// Build constructs a complete, validated dependency graph from a flow model.
// Unknown references and cycles are reported as fatal *config.Error values.
func Build(ctx context.Context, flow *config.Flow) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.")

	graph := New()

	// First pass: create a node per declared step.
	for _, s := range flow.Steps {
		graph.AddNode(s.ID)
	}
	logger.Debug("Build: node creation complete.", "node_count", len(flow.Steps))

	// Second pass: link dependency edges.
	for _, s := range flow.Steps {
		for _, dep := range s.DependsOn {
			if flow.Step(dep) == nil {
				return nil, &config.Error{
					Kind:    config.UnknownStepReference,
					Subject: s.ID,
					Detail:  fmt.Sprintf("depends_on references undeclared step %q", dep),
				}
			}
			if err := graph.AddEdge(dep, s.ID); err != nil {
				return nil, &config.Error{
					Kind:    config.CyclicDependency,
					Subject: s.ID,
					Detail:  err.Error(),
				}
			}
		}
	}
	logger.Debug("Build: edge linking complete.")

	if err := graph.DetectCycles(); err != nil {
		return nil, &config.Error{
			Kind:    config.CyclicDependency,
			Subject: "dependencies",
			Detail:  err.Error(),
		}
	}
	logger.Debug("Build: cycle detection passed.")

	return graph, nil
}
