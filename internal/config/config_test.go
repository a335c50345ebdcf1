package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOrDefaultFallsBackWhenUnset(t *testing.T) {
	require.Equal(t, "fallback", envOrDefault("WORKFLOW_ENGINE_TEST_UNSET_VAR", "fallback"))
}

func TestEnvOrDefaultUsesSetValue(t *testing.T) {
	t.Setenv("WORKFLOW_ENGINE_TEST_VAR", "custom")
	require.Equal(t, "custom", envOrDefault("WORKFLOW_ENGINE_TEST_VAR", "fallback"))
}

func TestEnvIntOrDefaultParsesValidInt(t *testing.T) {
	t.Setenv("WORKFLOW_ENGINE_TEST_INT", "42")
	require.Equal(t, 42, envIntOrDefault("WORKFLOW_ENGINE_TEST_INT", 7))
}

func TestEnvIntOrDefaultFallsBackOnGarbage(t *testing.T) {
	t.Setenv("WORKFLOW_ENGINE_TEST_INT_BAD", "not-a-number")
	require.Equal(t, 7, envIntOrDefault("WORKFLOW_ENGINE_TEST_INT_BAD", 7))
}
