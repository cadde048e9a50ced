package agent

import (
	"context"

	"ampere/pkg/proto"
)

// EventPublisher is the slice of the bus this package needs.
type EventPublisher interface {
	Publish(event *proto.Event) error
}

// Provider is one LLM behind a prompt-in, text-out surface. The system
// prompt is always the agent's spark stack rendered at call time; the user
// prompt carries the phase-specific request.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ModelName() string
}
