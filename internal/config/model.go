package config

import (
	"fmt"
	"strings"
)

// Step is a single node in the flow: one HTTP operation, or a manual action
// whose completion is signaled externally. Steps are immutable after load.
type Step struct {
	// ID is the unique identifier of the step within the flow.
	ID string
	// Title is the human-readable name shown to the user.
	Title string
	// Description explains what the step does.
	Description string
	// Manual marks a step that is completed by an external actor rather
	// than by executing a request.
	Manual bool
	// DependsOn lists the IDs of steps that must be completed before this
	// step becomes eligible.
	DependsOn []string
	// Request is the HTTP request template for automatic steps. Nil for
	// manual steps.
	Request *RequestTemplate
	// Substitutions maps placeholder tokens in the template to values
	// produced by upstream steps.
	Substitutions []Rule
	// Extract names the response-body fields to capture into the step's
	// result for downstream substitution.
	Extract []string
}

// RequestTemplate describes an HTTP request before substitution. All string
// fields may contain {endpoint} and <placeholder> tokens.
type RequestTemplate struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	// BasicAuth is an optional "user:password" pair, itself subject to
	// substitution.
	BasicAuth string
}

// Rule binds a literal placeholder token to a field of an upstream step's
// result, parsed from a "step.<id>.<field>" reference string.
type Rule struct {
	// Placeholder is the literal token replaced in the template, e.g.
	// "<backend-client-id>".
	Placeholder string
	// SourceID is the step whose result provides the value.
	SourceID string
	// Field is the key within the source step's extracted fields.
	Field string
	// Raw preserves the original reference string for error messages.
	Raw string
}

// ParseRule parses a "step.<id>.<field>" reference into a Rule. The field
// part may itself contain dots.
func ParseRule(placeholder, ref string) (Rule, error) {
	rest, ok := strings.CutPrefix(ref, "step.")
	if !ok {
		return Rule{}, &Error{
			Kind:    InvalidReference,
			Subject: placeholder,
			Detail:  fmt.Sprintf("reference %q must have the form step.<id>.<field>", ref),
		}
	}
	id, field, ok := strings.Cut(rest, ".")
	if !ok || id == "" || field == "" {
		return Rule{}, &Error{
			Kind:    InvalidReference,
			Subject: placeholder,
			Detail:  fmt.Sprintf("reference %q must have the form step.<id>.<field>", ref),
		}
	}
	return Rule{Placeholder: placeholder, SourceID: id, Field: field, Raw: ref}, nil
}

// Flow is the validated, immutable graph of steps loaded from configuration.
type Flow struct {
	// Steps holds every step in declared order. The declared order is the
	// stable tie-break used when several steps are eligible at once.
	Steps []*Step
	// EndpointDefaults maps endpoint placeholder names to default paths,
	// joined onto the server base URL when discovery did not provide the
	// endpoint.
	EndpointDefaults map[string]string

	byID map[string]*Step
}

// NewFlow assembles a Flow from its parts and checks the model invariants
// that do not require the dependency graph: unique IDs, known references,
// and the manual/request exclusivity rule. Graph acyclicity is validated
// separately by the dag package.
func NewFlow(steps []*Step, endpointDefaults map[string]string) (*Flow, error) {
	f := &Flow{
		Steps:            steps,
		EndpointDefaults: endpointDefaults,
		byID:             make(map[string]*Step, len(steps)),
	}
	for _, s := range steps {
		if _, exists := f.byID[s.ID]; exists {
			return nil, &Error{Kind: DuplicateStep, Subject: s.ID}
		}
		f.byID[s.ID] = s
	}
	for _, s := range steps {
		if s.Manual && s.Request != nil {
			return nil, &Error{
				Kind:    ManualWithRequest,
				Subject: s.ID,
				Detail:  "a manual step is completed externally and cannot carry a request template",
			}
		}
		if !s.Manual && s.Request == nil {
			return nil, &Error{
				Kind:    MissingRequest,
				Subject: s.ID,
				Detail:  "an automatic step needs a request template",
			}
		}
		for _, dep := range s.DependsOn {
			if _, ok := f.byID[dep]; !ok {
				return nil, &Error{
					Kind:    UnknownStepReference,
					Subject: s.ID,
					Detail:  fmt.Sprintf("depends_on references undeclared step %q", dep),
				}
			}
		}
		for _, r := range s.Substitutions {
			if _, ok := f.byID[r.SourceID]; !ok {
				return nil, &Error{
					Kind:    UnknownStepReference,
					Subject: s.ID,
					Detail:  fmt.Sprintf("substitution %s references undeclared step %q", r.Placeholder, r.SourceID),
				}
			}
		}
	}
	return f, nil
}

// Step returns the step with the given ID, or nil if it is not declared.
func (f *Flow) Step(id string) *Step {
	return f.byID[id]
}
