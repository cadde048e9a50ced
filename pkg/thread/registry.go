package thread

import (
	"context"
	"sync"
	"time"

	"ampere/pkg/logx"
	"ampere/pkg/proto"
)

// NoResponse is the sentinel returned when a human never answered: timeout,
// cancellation, or context expiry. Waiters never see an error.
const NoResponse = "<no-response>"

// DefaultResponseTimeout bounds how long a waiter blocks on a human.
const DefaultResponseTimeout = 30 * time.Minute

// HumanResponseRegistry is a pending-request table keyed by a generated ID.
// WaitForResponse suspends the caller, ProvideResponse resumes it, and
// CancelRequest aborts it.
type HumanResponseRegistry struct {
	mu      sync.Mutex
	pending map[string]chan string
	timeout time.Duration
	logger  *logx.Logger
}

// NewHumanResponseRegistry creates a registry. A non-positive timeout falls
// back to the 30 minute default.
func NewHumanResponseRegistry(timeout time.Duration) *HumanResponseRegistry {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	return &HumanResponseRegistry{
		pending: make(map[string]chan string),
		timeout: timeout,
		logger:  logx.NewLogger("human-response"),
	}
}

// NewRequestID generates an identifier for a pending request.
func (r *HumanResponseRegistry) NewRequestID() string {
	return proto.NewID()
}

// WaitForResponse blocks until ProvideResponse delivers text for the ID, the
// request is cancelled, the registry timeout elapses, or ctx is done. Every
// non-response path yields the NoResponse sentinel.
func (r *HumanResponseRegistry) WaitForResponse(ctx context.Context, requestID string) string {
	ch := make(chan string, 1)

	r.mu.Lock()
	r.pending[requestID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case response, ok := <-ch:
		if !ok {
			return NoResponse
		}
		return response
	case <-timer.C:
		r.logger.Warn("Request %s timed out after %s", requestID, r.timeout)
		return NoResponse
	case <-ctx.Done():
		return NoResponse
	}
}

// ProvideResponse delivers a human's answer to the waiter. Returns false if
// no waiter is registered under the ID.
func (r *HumanResponseRegistry) ProvideResponse(requestID, text string) bool {
	r.mu.Lock()
	ch, exists := r.pending[requestID]
	if exists {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	ch <- text
	return true
}

// CancelRequest aborts a pending request. The waiter receives NoResponse.
func (r *HumanResponseRegistry) CancelRequest(requestID string) {
	r.mu.Lock()
	ch, exists := r.pending[requestID]
	if exists {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()

	if exists {
		close(ch)
	}
}

// PendingCount returns the number of outstanding requests.
func (r *HumanResponseRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
