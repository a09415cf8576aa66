package config

import "context"

// Loader abstracts the concrete configuration format. Implementations parse
// one or more files into the format-agnostic Flow model, or fail with a
// fatal *Error. Loading has no side effects and never executes a step.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Flow, error)
}
