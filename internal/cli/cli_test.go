package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("flow flag and server", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-flow", "flows/", "-server", "https://as.example"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		require.NotNil(t, cfg)
		assert.Equal(t, "flows/", cfg.FlowPath)
		assert.Equal(t, "https://as.example", cfg.ServerURL)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
		assert.False(t, cfg.NonInteractive)
	})

	t.Run("shorthand flag", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-f", "flow.hcl", "-server", "https://as.example"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "flow.hcl", cfg.FlowPath)
	})

	t.Run("positional flow path", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-server", "https://as.example", "flows/"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "flows/", cfg.FlowPath)
	})

	t.Run("all options", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{
			"-flow", "flows/",
			"-server", "https://as.example",
			"-healthcheck-port", "8080",
			"-log-format", "json",
			"-log-level", "debug",
			"-timeout", "30s",
			"-non-interactive",
		}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, 8080, cfg.HealthcheckPort)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
		assert.True(t, cfg.NonInteractive)
	})

	t.Run("no flow path prints usage and exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-server", "https://as.example"}, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("missing server is an exit error", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-flow", "flows/"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "ServerURL")
	})

	t.Run("invalid log format", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-flow", "f", "-server", "s://x", "-log-format", "xml"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-flow", "f", "-server", "s://x", "-log-level", "loud"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-level")
	})

	t.Run("unknown flag", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-bogus"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}
