// Package escalation categorizes blocker reasons into a closed taxonomy of
// escalation kinds, each bound to the process that resolves it.
package escalation

import (
	"fmt"
	"strings"
)

// Process names how an escalation gets resolved.
type Process string

const (
	ProcessAgentMeeting       Process = "AGENT_MEETING"
	ProcessHumanMeeting       Process = "HUMAN_MEETING"
	ProcessHumanApproval      Process = "HUMAN_APPROVAL"
	ProcessExternalDependency Process = "EXTERNAL_DEPENDENCY"
)

// String returns the string representation of Process.
func (p Process) String() string {
	return string(p)
}

// Kind is one variant of the closed escalation taxonomy.
type Kind string

const (
	DiscussionCodeReview   Kind = "Discussion.CodeReview"
	DiscussionDesign       Kind = "Discussion.Design"
	DiscussionArchitecture Kind = "Discussion.Architecture"
	DiscussionRequirements Kind = "Discussion.Requirements"
	DecisionTechnical      Kind = "Decision.Technical"
	DecisionProduct        Kind = "Decision.Product"
	DecisionAuthorization  Kind = "Decision.Authorization"
	BudgetResourceAlloc    Kind = "Budget.ResourceAllocation"
	BudgetCostApproval     Kind = "Budget.CostApproval"
	BudgetTimeline         Kind = "Budget.Timeline"
	PrioritiesConflict     Kind = "Priorities.Conflict"
	PrioritiesReprioritize Kind = "Priorities.Reprioritization"
	PrioritiesDependency   Kind = "Priorities.Dependency"
	ScopeExpansion         Kind = "Scope.Expansion"
	ScopeReduction         Kind = "Scope.Reduction"
	ScopeClarification     Kind = "Scope.Clarification"
	ExternalVendor         Kind = "External.Vendor"
	ExternalCustomer       Kind = "External.Customer"
)

//nolint:gochecknoglobals // Static kind-to-process table
var kindProcesses = map[Kind]Process{
	DiscussionCodeReview:   ProcessAgentMeeting,
	DiscussionDesign:       ProcessAgentMeeting,
	DiscussionArchitecture: ProcessAgentMeeting,
	DiscussionRequirements: ProcessAgentMeeting,
	DecisionTechnical:      ProcessAgentMeeting,
	DecisionProduct:        ProcessHumanMeeting,
	DecisionAuthorization:  ProcessHumanApproval,
	BudgetResourceAlloc:    ProcessHumanApproval,
	BudgetCostApproval:     ProcessHumanApproval,
	BudgetTimeline:         ProcessHumanMeeting,
	PrioritiesConflict:     ProcessHumanMeeting,
	PrioritiesReprioritize: ProcessHumanMeeting,
	PrioritiesDependency:   ProcessAgentMeeting,
	ScopeExpansion:         ProcessHumanApproval,
	ScopeReduction:         ProcessHumanMeeting,
	ScopeClarification:     ProcessHumanMeeting,
	ExternalVendor:         ProcessExternalDependency,
	ExternalCustomer:       ProcessExternalDependency,
}

// AllKinds returns every taxonomy variant in a stable order.
func AllKinds() []Kind {
	return []Kind{
		DiscussionCodeReview, DiscussionDesign, DiscussionArchitecture, DiscussionRequirements,
		DecisionTechnical, DecisionProduct, DecisionAuthorization,
		BudgetResourceAlloc, BudgetCostApproval, BudgetTimeline,
		PrioritiesConflict, PrioritiesReprioritize, PrioritiesDependency,
		ScopeExpansion, ScopeReduction, ScopeClarification,
		ExternalVendor, ExternalCustomer,
	}
}

// Process returns the constant resolution process for the kind.
func (k Kind) Process() Process {
	return kindProcesses[k]
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves a free-form identifier to a taxonomy variant using
// case-insensitive containment, so LLM answers like "this is a
// discussion.architecture escalation" resolve cleanly.
func ParseKind(s string) (Kind, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	if needle == "" {
		return "", fmt.Errorf("empty escalation kind")
	}
	for _, kind := range AllKinds() {
		if strings.Contains(needle, strings.ToLower(string(kind))) {
			return kind, nil
		}
	}
	// Second pass without the group prefix: "architecture" alone resolves.
	for _, kind := range AllKinds() {
		parts := strings.SplitN(string(kind), ".", 2)
		if len(parts) == 2 && strings.Contains(needle, strings.ToLower(parts[1])) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown escalation kind: %s", s)
}

// Urgency grades how fast an escalation needs attention. Distinct from event
// urgency: this is about the human process, not bus delivery.
type Urgency string

const (
	UrgencyNormal   Urgency = "NORMAL"
	UrgencyElevated Urgency = "ELEVATED"
	UrgencyCritical Urgency = "CRITICAL"
)

// String returns the string representation of Urgency.
func (u Urgency) String() string {
	return string(u)
}

// Decision is the classifier's verdict.
type Decision struct {
	Kind    Kind     `json:"kind"`
	Urgency Urgency  `json:"urgency"`
	Reasons []string `json:"reasons"`
}

// Process returns the resolution process for the decided kind.
func (d Decision) Process() Process {
	return d.Kind.Process()
}
