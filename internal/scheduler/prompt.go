package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vk/tokengridgo/internal/config"
)

// LinePrompter is the interactive ManualPrompter: it lists the eligible
// manual steps on Out and reads a completion line from In of the form
//
//	<step-id> [key=value ...]
//
// End of input yields io.EOF, which parks the run as waiting.
type LinePrompter struct {
	Out io.Writer

	reader *bufio.Reader
}

// NewLinePrompter creates a prompter reading completions from in and
// writing prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{Out: out, reader: bufio.NewReader(in)}
}

// Await implements ManualPrompter.
func (p *LinePrompter) Await(ctx context.Context, eligible []*config.Step) (string, map[string]string, error) {
	fmt.Fprintln(p.Out, "Manual steps awaiting completion:")
	for _, step := range eligible {
		fmt.Fprintf(p.Out, "  %s) %s", step.ID, step.Title)
		if step.Description != "" {
			fmt.Fprintf(p.Out, ": %s", step.Description)
		}
		fmt.Fprintln(p.Out)
	}
	fmt.Fprint(p.Out, "Mark complete with: <step-id> [key=value ...]\n> ")

	for {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			return "", nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil {
				return "", nil, err
			}
			fmt.Fprint(p.Out, "> ")
			continue
		}

		parts := strings.Fields(line)
		id := parts[0]
		fields := make(map[string]string, len(parts)-1)
		ok := true
		for _, kv := range parts[1:] {
			key, value, found := strings.Cut(kv, "=")
			if !found || key == "" {
				fmt.Fprintf(p.Out, "Cannot parse %q, expected key=value.\n> ", kv)
				ok = false
				break
			}
			fields[key] = value
		}
		if !ok {
			continue
		}
		return id, fields, nil
	}
}
