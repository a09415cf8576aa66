// Package hcl is the HCL-specific implementation of the config.Loader
// interface. Flow files declare step blocks, their request templates and
// substitution rules, and an endpoints block with default paths.
package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/ctxlog"
	"github.com/vk/tokengridgo/internal/dag"
)

// Loader parses flow HCL files into the format-agnostic config model.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all possible top-level blocks from any flow file.
type fileRoot struct {
	Endpoints *endpointsBlock `hcl:"endpoints,block"`
	Steps     []*stepBlock    `hcl:"step,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type endpointsBlock struct {
	Defaults hcl.Expression `hcl:"defaults"`
}

type stepBlock struct {
	ID          string         `hcl:"id,label"`
	Title       string         `hcl:"title"`
	Description string         `hcl:"description,optional"`
	Manual      bool           `hcl:"manual,optional"`
	DependsOn   []string       `hcl:"depends_on,optional"`
	Extract     []string       `hcl:"extract,optional"`
	Substitute  hcl.Expression `hcl:"substitute,optional"`
	Request     *requestBlock  `hcl:"request,block"`
}

type requestBlock struct {
	Method    string         `hcl:"method"`
	URL       string         `hcl:"url"`
	Headers   hcl.Expression `hcl:"headers,optional"`
	Body      string         `hcl:"body,optional"`
	BasicAuth string         `hcl:"basic_auth,optional"`
}

// Load orchestrates the whole flow-loading process: discover files, parse
// and decode them, assemble the Flow model, and validate the dependency
// graph. It has no side effects beyond returning the immutable model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Flow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl flow files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered flow files.", "count", len(files))

	parser := hclparse.NewParser()

	var steps []*config.Step
	defaults := make(map[string]string)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		if root.Endpoints != nil {
			m, err := decodeStringMap(root.Endpoints.Defaults, "endpoints.defaults")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			for k, v := range m {
				defaults[k] = v
			}
		}

		for _, sb := range root.Steps {
			step, err := sb.toModel()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			steps = append(steps, step)
		}
	}

	flow, err := config.NewFlow(steps, defaults)
	if err != nil {
		return nil, err
	}

	// The graph is rebuilt cheaply by the app later; building it here makes
	// unknown references and cycles fatal at load time, before anything runs.
	if _, err := dag.Build(ctx, flow); err != nil {
		return nil, err
	}

	logger.Debug("Flow loaded and validated.", "steps", len(flow.Steps), "endpoint_defaults", len(defaults))
	return flow, nil
}

// toModel converts a decoded step block into the config model, evaluating
// the headers and substitute expressions into plain string maps.
func (sb *stepBlock) toModel() (*config.Step, error) {
	step := &config.Step{
		ID:          sb.ID,
		Title:       sb.Title,
		Description: sb.Description,
		Manual:      sb.Manual,
		DependsOn:   sb.DependsOn,
		Extract:     sb.Extract,
	}

	if sb.Request != nil {
		headers, err := decodeStringMap(sb.Request.Headers, fmt.Sprintf("step %q headers", sb.ID))
		if err != nil {
			return nil, err
		}
		step.Request = &config.RequestTemplate{
			Method:    sb.Request.Method,
			URL:       sb.Request.URL,
			Headers:   headers,
			Body:      sb.Request.Body,
			BasicAuth: sb.Request.BasicAuth,
		}
	}

	subs, err := decodeStringMap(sb.Substitute, fmt.Sprintf("step %q substitute", sb.ID))
	if err != nil {
		return nil, err
	}
	// HCL objects are unordered; sort by placeholder so rule application
	// order is stable across runs.
	placeholders := make([]string, 0, len(subs))
	for placeholder := range subs {
		placeholders = append(placeholders, placeholder)
	}
	sort.Strings(placeholders)
	for _, placeholder := range placeholders {
		rule, err := config.ParseRule(placeholder, subs[placeholder])
		if err != nil {
			return nil, err
		}
		step.Substitutions = append(step.Substitutions, rule)
	}

	return step, nil
}

// decodeStringMap evaluates an object-valued expression into a Go string
// map. Flow files are static data: expressions are evaluated without any
// variable context, and every value must be a string.
func decodeStringMap(expr hcl.Expression, what string) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate %s: %w", what, diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("%s must be a map of strings, got %s", what, val.Type().FriendlyName())
	}

	out := make(map[string]string)
	for it := val.ElementIterator(); it.Next(); {
		key, elem := it.Element()
		if elem.IsNull() || elem.Type() != cty.String {
			return nil, fmt.Errorf("%s: value for %q must be a string, got %s", what, key.AsString(), elem.Type().FriendlyName())
		}
		out[key.AsString()] = elem.AsString()
	}
	return out, nil
}

// findAllHCLFiles expands the given paths into a sorted list of .hcl files.
// Directories are walked recursively.
func findAllHCLFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access flow path %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk flow path %s: %w", path, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
