package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/ticket"
)

func TestArchitectureReasonClassifiesAsDiscussion(t *testing.T) {
	classifier := NewClassifier(nil)

	decision := classifier.Classify(context.Background(),
		"architecture decision needed between JWT and OAuth2", TicketSignals{})

	assert.Equal(t, DiscussionArchitecture, decision.Kind)
	assert.Equal(t, ProcessAgentMeeting, decision.Process())
	assert.Equal(t, UrgencyNormal, decision.Urgency)
	assert.NotEmpty(t, decision.Reasons)
}

func TestKeywordPathIsDeterministic(t *testing.T) {
	// The LLM must not be consulted when keywords resolve the reason.
	llmCalled := false
	classifier := NewClassifier(func(_ context.Context, _ string) (string, error) {
		llmCalled = true
		return "", errors.New("should not be called")
	})

	first := classifier.Classify(context.Background(), "need more budget for GPU time", TicketSignals{})
	second := classifier.Classify(context.Background(), "need more budget for GPU time", TicketSignals{})

	assert.False(t, llmCalled)
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Urgency, second.Urgency)
}

func TestHumanKeywordsElevateUrgency(t *testing.T) {
	classifier := NewClassifier(nil)

	decision := classifier.Classify(context.Background(),
		"waiting on sign-off before deploying", TicketSignals{})
	assert.Equal(t, UrgencyElevated, decision.Urgency)
	assert.Equal(t, ProcessHumanApproval, decision.Process())
}

func TestCriticalPriorityForcesCriticalUrgency(t *testing.T) {
	classifier := NewClassifier(nil)

	decision := classifier.Classify(context.Background(),
		"design discussion needed", TicketSignals{Priority: ticket.PriorityCritical})
	assert.Equal(t, UrgencyCritical, decision.Urgency)
}

func TestPastDeadlineForcesCriticalUrgency(t *testing.T) {
	classifier := NewClassifier(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	classifier.SetClock(func() time.Time { return now })

	past := now.Add(-time.Hour)
	decision := classifier.Classify(context.Background(),
		"design discussion needed", TicketSignals{DueDate: &past})
	assert.Equal(t, UrgencyCritical, decision.Urgency)

	future := now.Add(time.Hour)
	decision = classifier.Classify(context.Background(),
		"design discussion needed", TicketSignals{DueDate: &future})
	assert.Equal(t, UrgencyNormal, decision.Urgency)
}

func TestLLMFallbackOnUnmatchedReason(t *testing.T) {
	var prompt string
	classifier := NewClassifier(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "This looks like Scope.Expansion to me.", nil
	})

	decision := classifier.Classify(context.Background(),
		"the feature keeps growing beyond what was agreed", TicketSignals{})

	assert.Equal(t, ScopeExpansion, decision.Kind)
	assert.Equal(t, ProcessHumanApproval, decision.Process())
	assert.Contains(t, prompt, "Scope.Expansion")
	assert.Contains(t, prompt, "the feature keeps growing")
}

func TestAmbiguousKeywordsConsultLLM(t *testing.T) {
	// "budget" and "approval" tie with equal weight on different kinds.
	llmCalled := false
	classifier := NewClassifier(func(_ context.Context, _ string) (string, error) {
		llmCalled = true
		return "Budget.CostApproval", nil
	})

	decision := classifier.Classify(context.Background(), "budget approval needed", TicketSignals{})
	assert.True(t, llmCalled)
	assert.Equal(t, BudgetCostApproval, decision.Kind)
}

func TestLLMFailureDefaultsToTechnicalDecision(t *testing.T) {
	classifier := NewClassifier(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("provider down")
	})

	decision := classifier.Classify(context.Background(), "something odd happened", TicketSignals{})
	assert.Equal(t, DecisionTechnical, decision.Kind)
}

func TestParseKindFuzzy(t *testing.T) {
	kind, err := ParseKind("discussion.architecture")
	require.NoError(t, err)
	assert.Equal(t, DiscussionArchitecture, kind)

	kind, err = ParseKind("I would say this is an Architecture issue")
	require.NoError(t, err)
	assert.Equal(t, DiscussionArchitecture, kind)

	_, err = ParseKind("weather report")
	assert.Error(t, err)
}

func TestEveryKindHasAProcess(t *testing.T) {
	for _, kind := range AllKinds() {
		assert.NotEmpty(t, kind.Process(), "kind %s has no process", kind)
	}
}
