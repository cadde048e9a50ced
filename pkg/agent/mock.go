package agent

import (
	"context"
	"sync"
)

// MockCall records one Generate invocation on a MockProvider.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// MockProvider is a scripted Provider for tests: it returns the configured
// responses in order (repeating the last one) and records every call.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error
	calls     []MockCall
}

// NewMockProvider creates a provider scripted with the given responses. With
// no responses it returns an empty string.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailWith makes every subsequent Generate call return err.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Generate implements Provider.
func (m *MockProvider) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	response := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}
	return response, nil
}

// ModelName implements Provider.
func (m *MockProvider) ModelName() string {
	return "mock"
}

// Calls returns a copy of the recorded invocations.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how many times Generate was invoked.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
