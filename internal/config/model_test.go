package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func autoStep(id string, deps ...string) *Step {
	return &Step{
		ID:        id,
		DependsOn: deps,
		Request:   &RequestTemplate{Method: "GET", URL: "{issuer}"},
	}
}

func TestParseRule(t *testing.T) {
	t.Run("valid reference", func(t *testing.T) {
		r, err := ParseRule("<frontend-client-id>", "step.b.client_id")
		require.NoError(t, err)
		assert.Equal(t, "<frontend-client-id>", r.Placeholder)
		assert.Equal(t, "b", r.SourceID)
		assert.Equal(t, "client_id", r.Field)
		assert.Equal(t, "step.b.client_id", r.Raw)
	})

	t.Run("field may contain dots", func(t *testing.T) {
		r, err := ParseRule("<x>", "step.d.token.access")
		require.NoError(t, err)
		assert.Equal(t, "d", r.SourceID)
		assert.Equal(t, "token.access", r.Field)
	})

	t.Run("invalid references", func(t *testing.T) {
		for _, ref := range []string{"b.client_id", "step.b", "step..field", "step.b.", "step."} {
			_, err := ParseRule("<x>", ref)
			require.Error(t, err, "ref %q", ref)
			assert.ErrorIs(t, err, &Error{Kind: InvalidReference})
		}
	})
}

func TestNewFlow(t *testing.T) {
	t.Run("valid flow resolves steps by ID", func(t *testing.T) {
		f, err := NewFlow([]*Step{autoStep("a"), autoStep("b", "a")}, map[string]string{"token_endpoint": "/token"})
		require.NoError(t, err)
		require.NotNil(t, f.Step("a"))
		assert.Equal(t, "b", f.Step("b").ID)
		assert.Nil(t, f.Step("zz"))
		assert.Equal(t, "/token", f.EndpointDefaults["token_endpoint"])
	})

	t.Run("duplicate step IDs are fatal", func(t *testing.T) {
		_, err := NewFlow([]*Step{autoStep("a"), autoStep("a")}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: DuplicateStep, Subject: "a"})
	})

	t.Run("unknown dependency is fatal", func(t *testing.T) {
		_, err := NewFlow([]*Step{autoStep("a", "ghost")}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: UnknownStepReference, Subject: "a"})
	})

	t.Run("substitution referencing undeclared step is fatal", func(t *testing.T) {
		s := autoStep("b")
		rule, err := ParseRule("<v>", "step.ghost.value")
		require.NoError(t, err)
		s.Substitutions = []Rule{rule}
		_, err = NewFlow([]*Step{s}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: UnknownStepReference, Subject: "b"})
	})

	t.Run("manual step with a request template is fatal", func(t *testing.T) {
		s := autoStep("f")
		s.Manual = true
		_, err := NewFlow([]*Step{s}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: ManualWithRequest, Subject: "f"})
	})

	t.Run("automatic step without a request template is fatal", func(t *testing.T) {
		_, err := NewFlow([]*Step{{ID: "a"}}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, &Error{Kind: MissingRequest, Subject: "a"})
	})

	t.Run("manual step without a request is allowed", func(t *testing.T) {
		_, err := NewFlow([]*Step{{ID: "f", Manual: true}}, nil)
		assert.NoError(t, err)
	})
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	err := &Error{Kind: DuplicateStep, Subject: "a", Detail: "declared twice"}
	assert.True(t, errors.Is(err, &Error{Kind: DuplicateStep}))
	assert.True(t, errors.Is(err, &Error{Kind: DuplicateStep, Subject: "a"}))
	assert.False(t, errors.Is(err, &Error{Kind: DuplicateStep, Subject: "b"}))
	assert.False(t, errors.Is(err, &Error{Kind: CyclicDependency}))
	assert.Contains(t, err.Error(), "DuplicateStep")
}
