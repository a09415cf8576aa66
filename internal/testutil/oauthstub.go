package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeAuthServer is a minimal OAuth2/OIDC stub covering the endpoints the
// walkthrough exercises: metadata discovery, dynamic client registration,
// device authorization, token (device_code, token-exchange, refresh_token
// grants), userinfo, and introspection.
//
// The stub is deliberately permissive about credentials; tests assert on
// the requests it records, not on real OAuth semantics.
type FakeAuthServer struct {
	*httptest.Server

	mu sync.Mutex
	// registered counts client registrations to hand out distinct IDs.
	registered int
	// Requests records method+path of every call in arrival order.
	Requests []string
	// OmitIntrospection removes introspection_endpoint from the metadata so
	// tests can exercise the configured-defaults fallback.
	OmitIntrospection bool
}

// NewFakeAuthServer starts a stub server; it is closed on test cleanup.
func NewFakeAuthServer(t *testing.T) *FakeAuthServer {
	t.Helper()
	f := &FakeAuthServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeAuthServer) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, r.Method+" "+r.URL.Path)
}

// RequestLog returns a copy of the recorded method+path pairs.
func (f *FakeAuthServer) RequestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Requests...)
}

func (f *FakeAuthServer) handle(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	switch {
	case r.URL.Path == "/.well-known/oauth-authorization-server":
		f.metadata(w)
	case r.URL.Path == "/register":
		f.register(w)
	case r.URL.Path == "/device/authorize":
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":               "dev-code-1",
			"user_code":                 "WXYZ-1234",
			"verification_uri_complete": f.URL + "/device?user_code=WXYZ-1234",
			"expires_in":                600,
		})
	case r.URL.Path == "/token":
		f.token(w, r)
	case r.URL.Path == "/userinfo":
		f.userinfo(w, r)
	case r.URL.Path == "/introspect":
		writeJSON(w, http.StatusOK, map[string]any{"active": true, "sub": "user-1"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
	}
}

func (f *FakeAuthServer) metadata(w http.ResponseWriter) {
	doc := map[string]any{
		"issuer":                        f.URL,
		"registration_endpoint":         f.URL + "/register",
		"authorization_endpoint":        f.URL + "/authorize",
		"token_endpoint":                f.URL + "/token",
		"userinfo_endpoint":             f.URL + "/userinfo",
		"device_authorization_endpoint": f.URL + "/device/authorize",
		"scopes_supported":              []string{"openid", "profile", "offline_access"},
		"response_types_supported":      []string{"code"},
		"grant_types_supported":         []string{"urn:ietf:params:oauth:grant-type:device_code", "refresh_token"},
	}
	if !f.OmitIntrospection {
		doc["introspection_endpoint"] = f.URL + "/introspect"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *FakeAuthServer) register(w http.ResponseWriter) {
	f.mu.Lock()
	f.registered++
	n := f.registered
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":     fmt.Sprintf("client-%d", n),
		"client_secret": fmt.Sprintf("secret-%d", n),
	})
}

func (f *FakeAuthServer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}
	switch r.PostForm.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:device_code":
		if r.PostForm.Get("device_code") != "dev-code-1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "frontend-access-1",
			"refresh_token": "frontend-refresh-1",
			"token_type":    "Bearer",
		})
	case "urn:ietf:params:oauth:grant-type:token-exchange":
		if _, _, ok := r.BasicAuth(); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
			return
		}
		if r.PostForm.Get("subject_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "backend-access-1",
			"refresh_token": "backend-refresh-1",
			"token_type":    "Bearer",
		})
	case "refresh_token":
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "backend-access-2",
			"token_type":   "Bearer",
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (f *FakeAuthServer) userinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub": "user-1"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
