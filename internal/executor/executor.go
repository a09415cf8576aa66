// Package executor issues rendered HTTP requests against the authorization
// server and records the outcome, including the named fields extracted from
// the JSON response body, into the session.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"resty.dev/v3"

	"github.com/vk/tokengridgo/internal/config"
	"github.com/vk/tokengridgo/internal/ctxlog"
	"github.com/vk/tokengridgo/internal/render"
	"github.com/vk/tokengridgo/internal/session"
)

// DefaultTimeout bounds a single step request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TransportError reports a failure to reach the server at all: connection
// refused, DNS failure, or timeout expiry.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response. The body is still captured on the
// step result.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s", e.Status)
}

// Executor runs rendered requests over a shared resty client with a bounded
// per-request timeout. At most one step executes at a time from the
// scheduler's perspective; the client itself is safe for concurrent use.
type Executor struct {
	client *resty.Client
}

// New creates an executor whose requests are bounded by the given timeout.
// A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		client: resty.New().SetTimeout(timeout),
	}
}

// Close releases the underlying client's resources.
func (e *Executor) Close() error {
	return e.client.Close()
}

// Execute issues the rendered request for a step and writes the resulting
// StepResult into the session. This is the sole mutation point for
// automatic-step completion state.
//
// HTTP-level failure (transport error, non-2xx status) is recorded on the
// result, not returned: the returned error is reserved for session
// invariant violations, which are fatal to the run.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, step *config.Step, req *render.Request) (session.Result, error) {
	logger := ctxlog.FromContext(ctx).With("step", step.ID)

	if err := sess.Begin(step.ID); err != nil {
		return session.Result{}, err
	}

	logger.Info("▶️ Executing step request", "method", req.Method, "url", req.URL)

	r := e.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)
	if req.Body != "" {
		r.SetBody(req.Body)
	}
	if req.HasBasicAuth {
		r.SetBasicAuth(req.Username, req.Password)
	}

	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		logger.Warn("Step request failed in transport.", "error", err)
		result := session.Result{
			Status: session.Failed,
			Err:    &TransportError{URL: req.URL, Err: err},
		}
		if ferr := sess.Finish(step.ID, result); ferr != nil {
			return session.Result{}, ferr
		}
		return result, nil
	}

	body := res.String()
	// Extraction runs regardless of status so error payloads are inspectable
	// too; a declared key absent from the body is a non-fatal partial result.
	fields := extractFields(ctx, body, step.Extract)

	result := session.Result{
		StatusCode: res.StatusCode(),
		RawBody:    body,
		Fields:     fields,
	}
	if res.IsSuccess() {
		result.Status = session.Completed
		logger.Info("✅ Step completed", "status", res.StatusCode(), "fields", len(fields))
	} else {
		result.Status = session.Failed
		result.Err = &HTTPError{StatusCode: res.StatusCode(), Status: res.Status()}
		logger.Warn("Step failed with HTTP error.", "status", res.StatusCode())
	}

	if ferr := sess.Finish(step.ID, result); ferr != nil {
		return session.Result{}, ferr
	}
	return result, nil
}

// extractFields pulls the declared scalar keys out of a JSON response body.
// A non-JSON body or a missing key simply yields no field; downstream rules
// depending on it fail cleanly at render time instead.
func extractFields(ctx context.Context, body string, keys []string) map[string]string {
	fields := make(map[string]string)
	if len(keys) == 0 || body == "" {
		return fields
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		ctxlog.FromContext(ctx).Debug("Response body is not a JSON object, skipping extraction.", "error", err)
		return fields
	}

	for _, key := range keys {
		raw, ok := parsed[key]
		if !ok {
			ctxlog.FromContext(ctx).Debug("Declared extraction key absent from response.", "key", key)
			continue
		}
		switch v := raw.(type) {
		case string:
			fields[key] = v
		case float64:
			fields[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			// Arrays and objects are not scalar values; leave the field unset.
			ctxlog.FromContext(ctx).Debug("Extraction key is not a scalar, skipping.", "key", key)
		}
	}
	return fields
}
