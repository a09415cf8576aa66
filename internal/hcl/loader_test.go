package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/tokengridgo/internal/config"
)

// writeFlow writes the given HCL files into a fresh temp dir and returns it.
func writeFlow(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadValidFlow(t *testing.T) {
	dir := writeFlow(t, map[string]string{
		"flow.hcl": `
endpoints {
  defaults = {
    introspection_endpoint = "/introspect"
  }
}

step "a" {
  title   = "Register the backend client"
  extract = ["client_id", "client_secret"]

  request {
    method = "POST"
    url    = "{registration_endpoint}"
    body   = "{\"client_name\": \"backend\"}"
    headers = {
      Content-Type = "application/json"
    }
  }
}

step "c" {
  title      = "Request a device code"
  depends_on = ["a"]

  substitute = {
    "<backend-client-id>" = "step.a.client_id"
  }

  request {
    method = "POST"
    url    = "{device_authorization_endpoint}"
    body   = "client_id=<backend-client-id>&scope=openid"
  }
}

step "f" {
  title  = "Hand over the refresh token"
  manual = true

  depends_on = ["c"]
}
`,
	})

	flow, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, flow.Steps, 3)
	assert.Equal(t, "/introspect", flow.EndpointDefaults["introspection_endpoint"])

	a := flow.Step("a")
	require.NotNil(t, a)
	assert.Equal(t, "Register the backend client", a.Title)
	assert.Equal(t, []string{"client_id", "client_secret"}, a.Extract)
	require.NotNil(t, a.Request)
	assert.Equal(t, "POST", a.Request.Method)
	assert.Equal(t, "{registration_endpoint}", a.Request.URL)
	assert.Equal(t, "application/json", a.Request.Headers["Content-Type"])

	c := flow.Step("c")
	require.NotNil(t, c)
	assert.Equal(t, []string{"a"}, c.DependsOn)
	require.Len(t, c.Substitutions, 1)
	assert.Equal(t, "<backend-client-id>", c.Substitutions[0].Placeholder)
	assert.Equal(t, "a", c.Substitutions[0].SourceID)
	assert.Equal(t, "client_id", c.Substitutions[0].Field)

	f := flow.Step("f")
	require.NotNil(t, f)
	assert.True(t, f.Manual)
	assert.Nil(t, f.Request)
}

func TestLoadMergesMultipleFiles(t *testing.T) {
	dir := writeFlow(t, map[string]string{
		"01_endpoints.hcl": `
endpoints {
  defaults = {
    token_endpoint = "/token"
  }
}
`,
		"02_steps.hcl": `
step "a" {
  title = "First"
  request {
    method = "GET"
    url    = "{token_endpoint}"
  }
}
`,
		"03_more.hcl": `
step "b" {
  title      = "Second"
  depends_on = ["a"]
  request {
    method = "GET"
    url    = "{token_endpoint}"
  }
}
`,
	})

	flow, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, flow.Steps, 2)
	assert.Equal(t, "/token", flow.EndpointDefaults["token_endpoint"])
}

func TestLoadSingleFilePath(t *testing.T) {
	dir := writeFlow(t, map[string]string{
		"flow.hcl": `
step "a" {
  title = "Only"
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`,
	})

	flow, err := NewLoader().Load(context.Background(), filepath.Join(dir, "flow.hcl"))
	require.NoError(t, err)
	assert.Len(t, flow.Steps, 1)
}

func TestLoadErrors(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), t.TempDir())
		assert.ErrorContains(t, err, "no .hcl flow files found")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), "/does/not/exist")
		assert.ErrorContains(t, err, "cannot access flow path")
	})

	t.Run("malformed HCL", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"bad.hcl": `step "a" {`})
		_, err := NewLoader().Load(context.Background(), dir)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("duplicate step across files", func(t *testing.T) {
		body := `
step "a" {
  title = "Twice"
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`
		dir := writeFlow(t, map[string]string{"one.hcl": body, "two.hcl": body})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, &config.Error{Kind: config.DuplicateStep, Subject: "a"})
	})

	t.Run("manual step with request block", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"flow.hcl": `
step "f" {
  title  = "Manual"
  manual = true
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, &config.Error{Kind: config.ManualWithRequest, Subject: "f"})
	})

	t.Run("unknown dependency", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"flow.hcl": `
step "a" {
  title      = "Orphan"
  depends_on = ["ghost"]
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, &config.Error{Kind: config.UnknownStepReference})
	})

	t.Run("dependency cycle", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"flow.hcl": `
step "a" {
  title      = "A"
  depends_on = ["b"]
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}

step "b" {
  title      = "B"
  depends_on = ["a"]
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, &config.Error{Kind: config.CyclicDependency})
	})

	t.Run("malformed substitution reference", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"flow.hcl": `
step "a" {
  title = "Bad rule"
  substitute = {
    "<x>" = "not-a-reference"
  }
  request {
    method = "GET"
    url    = "https://as.example/x"
  }
}
`})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, &config.Error{Kind: config.InvalidReference})
	})

	t.Run("non-string header value", func(t *testing.T) {
		dir := writeFlow(t, map[string]string{"flow.hcl": `
step "a" {
  title = "Bad header"
  request {
    method = "GET"
    url    = "https://as.example/x"
    headers = {
      Retries = 3
    }
  }
}
`})
		_, err := NewLoader().Load(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorContains(t, err, "must be a string")
	})
}
