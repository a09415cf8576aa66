package config

import "fmt"

// ErrorKind classifies fatal configuration errors. Any one of them aborts
// startup; no partial flow is ever served.
type ErrorKind int

const (
	// UnknownStepReference marks a dependency or substitution rule that
	// names a step not declared in the flow.
	UnknownStepReference ErrorKind = iota
	// CyclicDependency marks a dependency mapping that is not a DAG.
	CyclicDependency
	// DuplicateStep marks two step declarations sharing one ID.
	DuplicateStep
	// InvalidReference marks a substitution reference that does not parse
	// as step.<id>.<field>.
	InvalidReference
	// MissingRequest marks an automatic step without a request template.
	MissingRequest
	// ManualWithRequest marks a manual step that declares a request template.
	ManualWithRequest
)

// String returns the symbolic name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case UnknownStepReference:
		return "UnknownStepReference"
	case CyclicDependency:
		return "CyclicDependency"
	case DuplicateStep:
		return "DuplicateStep"
	case InvalidReference:
		return "InvalidReference"
	case MissingRequest:
		return "MissingRequest"
	case ManualWithRequest:
		return "ManualWithRequest"
	default:
		return "UnknownConfigError"
	}
}

// Error is a fatal, load-time configuration error.
type Error struct {
	Kind ErrorKind
	// Subject is the step ID or token the error is about.
	Subject string
	// Detail is an optional human-readable elaboration.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("config: %s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("config: %s: %s: %s", e.Kind, e.Subject, e.Detail)
}

// Is reports whether target is a config.Error of the same kind, which lets
// callers match on kinds with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Subject == "" || t.Subject == e.Subject)
}
