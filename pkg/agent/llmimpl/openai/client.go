// Package openai adapts the OpenAI API to the agent.Provider surface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"ampere/pkg/agent"
)

const defaultMaxOutputTokens = 4096

// Client wraps the official OpenAI SDK client to implement agent.Provider.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates an OpenAI-backed provider with the given model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate implements agent.Provider using the Responses API.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	input := userPrompt
	if systemPrompt != "" {
		input = fmt.Sprintf("System: %s\n\n%s", systemPrompt, userPrompt)
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(defaultMaxOutputTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	text := resp.OutputText()
	if text == "" {
		return "", agent.NewTransientError(fmt.Errorf("empty response from OpenAI API"))
	}
	return text, nil
}

// ModelName implements agent.Provider.
func (c *Client) ModelName() string {
	return c.model
}

// classifyError wraps transient failures so the retry layer knows to retry.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	errStr := strings.ToLower(err.Error())
	transient := strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "rate") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
	if transient {
		return agent.NewTransientError(err)
	}
	return fmt.Errorf("openai request failed: %w", err)
}
