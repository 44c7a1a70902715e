package ai

import "context"

// GenerateRequest describes a single prompt round-trip.
type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	UseCache     bool
	// JSONMode asks providers that support it to constrain output to a JSON object.
	JSONMode bool
	// Cacheable, when set, decides whether an output may be stored in the
	// response cache. Outputs it rejects are returned but never cached.
	Cacheable func(output string) bool
}

// LanguageModel produces raw text for a system/user prompt pair. Callers are
// expected to extract JSON from the returned text themselves.
type LanguageModel interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ModelInfo is implemented by models that can name their provider.
type ModelInfo interface {
	Provider() string
	ModelName() string
}
