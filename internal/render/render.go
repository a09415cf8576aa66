// Package render implements the template substitution engine. Rendering is
// pure: it reads the step template, the session state, and the endpoint
// mappings, and produces either a fully substituted request or a typed
// SubstitutionError. It performs no I/O and mutates nothing, which is the
// property the property-style tests lean on.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/session"
)

// Request is a fully rendered HTTP request with no remaining unresolved
// tokens, ready for execution.
type Request struct {
	StepID  string
	Method  string
	URL     string
	Headers map[string]string
	Body    string

	// Username and Password carry rendered basic-auth credentials when
	// HasBasicAuth is true.
	HasBasicAuth bool
	Username     string
	Password     string
}

// ErrorKind classifies per-step, recoverable substitution failures.
type ErrorKind int

const (
	// UnresolvedEndpoint marks an {endpoint} token present neither in the
	// discovered endpoints nor in the configured defaults.
	UnresolvedEndpoint ErrorKind = iota
	// MissingUpstreamValue marks a substitution rule whose source step is
	// not completed or did not produce the referenced field.
	MissingUpstreamValue
	// UnboundPlaceholder marks a <placeholder> token left in the template
	// after all declared rules were applied.
	UnboundPlaceholder
)

// String returns the symbolic name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case UnresolvedEndpoint:
		return "UnresolvedEndpoint"
	case MissingUpstreamValue:
		return "MissingUpstreamValue"
	case UnboundPlaceholder:
		return "UnboundPlaceholder"
	default:
		return "UnknownSubstitutionError"
	}
}

// SubstitutionError reports why a step's template could not be rendered.
// The step stays blocked but may be re-rendered once upstream state changes.
type SubstitutionError struct {
	Kind   ErrorKind
	StepID string
	// Token is the offending endpoint or placeholder token.
	Token string
	// Ref is the substitution reference for MissingUpstreamValue errors.
	Ref string
}

// Error implements the error interface.
func (e *SubstitutionError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("render step %s: %s: %s (%s)", e.StepID, e.Kind, e.Token, e.Ref)
	}
	return fmt.Sprintf("render step %s: %s: %s", e.StepID, e.Kind, e.Token)
}

// Is reports whether target is a SubstitutionError of the same kind.
func (e *SubstitutionError) Is(target error) bool {
	t, ok := target.(*SubstitutionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StepID == "" || t.StepID == e.StepID)
}

// endpointToken matches {snake_case} endpoint placeholders. JSON bodies are
// immune because their braces are followed by a quote or another brace.
var endpointToken = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// placeholderToken matches the literal <placeholder> tokens used by
// substitution rules.
var placeholderToken = regexp.MustCompile(`<[A-Za-z0-9][A-Za-z0-9._-]*>`)

// Render produces the executable request for a step by resolving endpoint
// placeholders against the discovered endpoints (falling back to configured
// defaults joined onto baseURL) and replacing every declared placeholder
// token with the value extracted from its completed source step.
//
// Values are inserted verbatim as plain string substitutions; the template
// author is responsible for quoting.
func Render(step *config.Step, state *session.Session, discovered map[string]string, defaults map[string]string, baseURL string) (*Request, error) {
	if step.Request == nil {
		return nil, &SubstitutionError{Kind: UnboundPlaceholder, StepID: step.ID, Token: "no request template"}
	}
	tpl := step.Request

	req := &Request{
		StepID:  step.ID,
		Method:  tpl.Method,
		URL:     tpl.URL,
		Headers: make(map[string]string, len(tpl.Headers)),
		Body:    tpl.Body,
	}
	for k, v := range tpl.Headers {
		req.Headers[k] = v
	}
	auth := tpl.BasicAuth

	// Pass 1: endpoint placeholders.
	resolve := func(text string) (string, error) {
		var firstErr error
		out := endpointToken.ReplaceAllStringFunc(text, func(token string) string {
			name := strings.Trim(token, "{}")
			if v, ok := discovered[name]; ok && v != "" {
				return v
			}
			if p, ok := defaults[name]; ok {
				return strings.TrimRight(baseURL, "/") + p
			}
			if firstErr == nil {
				firstErr = &SubstitutionError{Kind: UnresolvedEndpoint, StepID: step.ID, Token: name}
			}
			return token
		})
		return out, firstErr
	}

	var err error
	if req.URL, err = resolve(req.URL); err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(req.Headers) {
		if req.Headers[k], err = resolve(req.Headers[k]); err != nil {
			return nil, err
		}
	}
	if req.Body, err = resolve(req.Body); err != nil {
		return nil, err
	}
	if auth, err = resolve(auth); err != nil {
		return nil, err
	}

	// Pass 2: substitution rules. Every declared rule must be resolvable,
	// whether or not its token still occurs; an unresolvable rule means the
	// caller scheduled this render too early.
	for _, rule := range step.Substitutions {
		if state.Status(rule.SourceID) != session.Completed {
			return nil, &SubstitutionError{Kind: MissingUpstreamValue, StepID: step.ID, Token: rule.Placeholder, Ref: rule.Raw}
		}
		value, ok := state.Field(rule.SourceID, rule.Field)
		if !ok {
			return nil, &SubstitutionError{Kind: MissingUpstreamValue, StepID: step.ID, Token: rule.Placeholder, Ref: rule.Raw}
		}
		req.URL = strings.ReplaceAll(req.URL, rule.Placeholder, value)
		for k, v := range req.Headers {
			req.Headers[k] = strings.ReplaceAll(v, rule.Placeholder, value)
		}
		req.Body = strings.ReplaceAll(req.Body, rule.Placeholder, value)
		auth = strings.ReplaceAll(auth, rule.Placeholder, value)
	}

	// Pass 3: nothing placeholder-shaped may remain.
	for _, text := range append([]string{req.URL, req.Body, auth}, sortedValues(req.Headers)...) {
		if token := placeholderToken.FindString(text); token != "" {
			return nil, &SubstitutionError{Kind: UnboundPlaceholder, StepID: step.ID, Token: token}
		}
	}

	if auth != "" {
		user, pass, ok := strings.Cut(auth, ":")
		if !ok {
			return nil, &SubstitutionError{Kind: UnboundPlaceholder, StepID: step.ID, Token: "basic_auth must be user:password"}
		}
		req.HasBasicAuth = true
		req.Username = user
		req.Password = pass
	}

	return req, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(m map[string]string) []string {
	vals := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		vals = append(vals, m[k])
	}
	return vals
}
