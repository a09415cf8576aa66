// Package discovery fetches and validates OAuth2 authorization-server
// metadata from the well-known endpoint, producing the discovered-endpoints
// mapping the substitution engine resolves {endpoint} tokens against.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/tokengridgo/internal/ctxlog"
)

// WellKnownPath is the RFC 8414 authorization-server metadata path.
const WellKnownPath = "/.well-known/oauth-authorization-server"

// requiredMetadata lists fields that must be present for the walkthrough to
// make sense at all; their absence is a fatal startup error.
var requiredMetadata = []string{
	"issuer",
	"registration_endpoint",
	"authorization_endpoint",
	"token_endpoint",
}

// endpointMetadata lists the URL-valued fields collected into the
// discovered-endpoints mapping. Anything missing falls back to the
// configured defaults at render time.
var endpointMetadata = []string{
	"issuer",
	"authorization_endpoint",
	"token_endpoint",
	"userinfo_endpoint",
	"introspection_endpoint",
	"registration_endpoint",
	"end_session_endpoint",
	"jwks_uri",
	"device_authorization_endpoint",
}

// Document is the parsed server metadata.
type Document struct {
	// Endpoints maps metadata field names to discovered absolute URLs.
	// Only fields the server actually advertised are present.
	Endpoints map[string]string
	// ScopesSupported, ResponseTypesSupported and GrantTypesSupported are
	// advertised server capabilities, kept for display.
	ScopesSupported        []string
	ResponseTypesSupported []string
	GrantTypesSupported    []string
}

// Client wraps a resty client for metadata retrieval.
type Client struct {
	http *resty.Client
}

// NewClient creates a discovery client with a bounded request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: resty.New().SetTimeout(timeout)}
}

// Close releases the underlying client's resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Fetch retrieves and validates the metadata document for the server at
// baseURL. Transport failures, non-2xx responses, invalid JSON, and missing
// required fields are all errors; the engine refuses to run without a
// validated server.
func (c *Client) Fetch(ctx context.Context, baseURL string) (*Document, error) {
	logger := ctxlog.FromContext(ctx)

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("server URL %q must start with http:// or https://", baseURL)
	}

	url := strings.TrimRight(baseURL, "/") + WellKnownPath
	logger.Debug("Fetching authorization-server metadata.", "url", url)

	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("discovery request to %s failed: %w", url, err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("discovery endpoint %s returned %s", url, res.Status())
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(res.String()), &raw); err != nil {
		return nil, fmt.Errorf("discovery endpoint %s returned invalid JSON: %w", url, err)
	}

	var missing []string
	for _, field := range requiredMetadata {
		if _, ok := raw[field].(string); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("server metadata is missing required fields: %s", strings.Join(missing, ", "))
	}

	doc := &Document{Endpoints: make(map[string]string)}
	for _, field := range endpointMetadata {
		if v, ok := raw[field].(string); ok && v != "" {
			doc.Endpoints[field] = v
		}
	}
	doc.ScopesSupported = stringSlice(raw["scopes_supported"])
	doc.ResponseTypesSupported = stringSlice(raw["response_types_supported"])
	doc.GrantTypesSupported = stringSlice(raw["grant_types_supported"])

	logger.Info("✅ Authorization server validated.",
		"issuer", doc.Endpoints["issuer"],
		"endpoints", len(doc.Endpoints),
	)
	for _, field := range endpointMetadata {
		if _, ok := doc.Endpoints[field]; !ok {
			logger.Warn("Endpoint not advertised, configured default will be used.", "endpoint", field)
		}
	}

	return doc, nil
}

// stringSlice converts a decoded JSON array of strings, tolerating absence
// and mixed content.
func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
