package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("openai.chat")
	require.False(t, ok)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("openai.chat", func(ctx context.Context, params map[string]interface{}) (*Result, error) {
		return &Result{Output: map[string]interface{}{"text": "hi"}}, nil
	})

	a, ok := r.Lookup("openai.chat")
	require.True(t, ok)
	result, err := a(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "hi", result.Output["text"])
	require.Equal(t, []string{"openai.chat"}, r.RegisteredActions())
}

func TestSimulateReturnsSyntheticOutput(t *testing.T) {
	orig := SimulationDelay
	SimulationDelay = time.Millisecond
	defer func() { SimulationDelay = orig }()

	result, err := Simulate(context.Background(), "unregistered.action", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "simulated", result.Output["result"])
	require.Equal(t, "unregistered.action", result.Output["action"])
	require.Equal(t, true, result.Metadata["simulated"])
}

func TestSimulateRespectsContextCancellation(t *testing.T) {
	orig := SimulationDelay
	SimulationDelay = time.Minute
	defer func() { SimulationDelay = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, "anything", nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestRegisterFromEnvironmentSkipsMissingCredentials(t *testing.T) {
	r := NewRegistry()
	t.Setenv("OPENAI_API_KEY", "")

	RegisterFromEnvironment(r, DefaultCredentialSpecs())

	_, ok := r.Lookup("openai.chat")
	require.False(t, ok)
}

func TestRegisterFromEnvironmentWiresPresentCredentials(t *testing.T) {
	r := NewRegistry()
	t.Setenv("OPENAI_API_KEY", "sk-test")

	specs := []CredentialSpec{
		{
			Action: "openai.chat",
			EnvVar: "OPENAI_API_KEY",
			Build: func(apiKey string) Adapter {
				return func(ctx context.Context, params map[string]interface{}) (*Result, error) {
					return &Result{Output: map[string]interface{}{"key": apiKey}}, nil
				}
			},
		},
	}
	RegisterFromEnvironment(r, specs)

	a, ok := r.Lookup("openai.chat")
	require.True(t, ok)
	result, err := a(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "sk-test", result.Output["key"])
}
