package llm

import "context"

// Provider is a reasoning backend the pipeline's agents complete against.
// The briefing, verification, generation, and feedback agents share one
// Provider; per-agent model and temperature ride on the request.
type Provider interface {
	// Complete sends one completion request and returns the model's reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name identifies the backing provider.
	Name() string
}
