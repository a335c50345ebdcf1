package adapter

import "os"

// CredentialSpec names the environment variable that gates registration of
// a real adapter for a given action (spec §6: "one credential per
// adapter, e.g. OPENAI_API_KEY, DEEPSEEK_API_KEY, GEMINI_API_KEY").
type CredentialSpec struct {
	Action   string
	EnvVar   string
	Build    func(apiKey string) Adapter
}

// DefaultCredentialSpecs lists the model-adapter actions this core knows
// how to gate on credentials. The adapters themselves are out of scope
// (spec §1), so Build is nil in every returned spec and
// RegisterFromEnvironment registers none of them until a caller fills
// Build in; cmd/workflow-engine passes these specs through unchanged, so
// its actions run as simulations.
func DefaultCredentialSpecs() []CredentialSpec {
	return []CredentialSpec{
		{Action: "openai.chat", EnvVar: "OPENAI_API_KEY"},
		{Action: "deepseek.chat", EnvVar: "DEEPSEEK_API_KEY"},
		{Action: "gemini.generate", EnvVar: "GEMINI_API_KEY"},
	}
}

// RegisterFromEnvironment wires every spec whose EnvVar is set and whose
// Build func is non-nil. Actions with no credential present are left
// unregistered, so the worker will simulate them (spec §4.3).
func RegisterFromEnvironment(r *Registry, specs []CredentialSpec) {
	for _, spec := range specs {
		apiKey := os.Getenv(spec.EnvVar)
		if apiKey == "" || spec.Build == nil {
			continue
		}
		r.Register(spec.Action, spec.Build(apiKey))
	}
}
