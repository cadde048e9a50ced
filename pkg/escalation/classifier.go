package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ampere/pkg/logx"
	"ampere/pkg/proto"
	"ampere/pkg/ticket"
)

// LLMFunc is the provider slice the classifier needs for its fallback path.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

// keyword annotates one vocabulary term with the kind it suggests and the
// flags that feed urgency. Weight breaks ties: more specific terms outrank
// generic ones, so "architecture decision" classifies as architecture.
type keyword struct {
	term            string
	kind            Kind
	weight          int
	requiresMeeting bool
	requiresHuman   bool
}

//nolint:gochecknoglobals // Fixed classification vocabulary
var vocabulary = []keyword{
	{term: "architecture", kind: DiscussionArchitecture, weight: 3, requiresMeeting: true},
	{term: "design", kind: DiscussionDesign, weight: 3, requiresMeeting: true},
	{term: "review", kind: DiscussionCodeReview, weight: 3, requiresMeeting: true},
	{term: "clarification", kind: ScopeClarification, weight: 3},
	{term: "scope", kind: ScopeClarification, weight: 3},
	{term: "budget", kind: BudgetCostApproval, weight: 3, requiresHuman: true},
	{term: "resource", kind: BudgetResourceAlloc, weight: 3, requiresHuman: true},
	{term: "timeline", kind: BudgetTimeline, weight: 3, requiresHuman: true},
	{term: "priority", kind: PrioritiesConflict, weight: 3},
	{term: "approval", kind: DecisionAuthorization, weight: 3, requiresHuman: true},
	{term: "permission", kind: DecisionAuthorization, weight: 3, requiresHuman: true},
	{term: "authorize", kind: DecisionAuthorization, weight: 3, requiresHuman: true},
	{term: "sign-off", kind: DecisionAuthorization, weight: 3, requiresHuman: true},
	{term: "vendor", kind: ExternalVendor, weight: 3},
	{term: "external", kind: ExternalVendor, weight: 2},
	{term: "customer", kind: ExternalCustomer, weight: 3, requiresHuman: true},
	{term: "user", kind: ExternalCustomer, weight: 2, requiresHuman: true},
	{term: "stakeholder", kind: DecisionProduct, weight: 3, requiresHuman: true},
	{term: "manager", kind: DecisionProduct, weight: 3, requiresHuman: true},
	{term: "human", kind: DecisionAuthorization, weight: 2, requiresHuman: true},
	{term: "requirements", kind: DiscussionRequirements, weight: 2, requiresMeeting: true},
	{term: "decision", kind: DecisionTechnical, weight: 1, requiresMeeting: true},
	{term: "discuss", kind: DecisionTechnical, weight: 1, requiresMeeting: true},
	{term: "meeting", kind: DecisionTechnical, weight: 1, requiresMeeting: true},
}

// TicketSignals are the project-state hints that elevate urgency.
type TicketSignals struct {
	Priority ticket.Priority
	DueDate  *time.Time
}

// Classifier maps a blocker reason to an escalation Decision. The keyword
// path is a pure function of the reason's token multiset; the LLM is
// consulted only when keywords are empty or ambiguous.
type Classifier struct {
	llm    LLMFunc
	clock  proto.Clock
	logger *logx.Logger
}

// NewClassifier creates a classifier. The LLM may be nil, in which case
// unmatched reasons fall back to Decision.Technical.
func NewClassifier(llm LLMFunc) *Classifier {
	return &Classifier{
		llm:    llm,
		clock:  proto.SystemClock,
		logger: logx.NewLogger("escalation"),
	}
}

// SetClock overrides the time source (tests).
func (c *Classifier) SetClock(clock proto.Clock) {
	c.clock = clock
}

// Classify produces a Decision for the reason, elevated by ticket signals.
func (c *Classifier) Classify(ctx context.Context, reason string, signals TicketSignals) Decision {
	kind, matched, ambiguous := classifyByKeywords(reason)

	var reasons []string
	requiresHuman := false
	for _, kw := range matched {
		flags := ""
		switch {
		case kw.requiresMeeting && kw.requiresHuman:
			flags = " (meeting, human)"
		case kw.requiresMeeting:
			flags = " (meeting)"
		case kw.requiresHuman:
			flags = " (human)"
		}
		reasons = append(reasons, fmt.Sprintf("matched keyword %q%s", kw.term, flags))
		requiresHuman = requiresHuman || kw.requiresHuman
	}

	if len(matched) == 0 || ambiguous {
		llmKind, err := c.classifyByLLM(ctx, reason)
		if err != nil {
			c.logger.Warn("LLM classification failed, defaulting to %s: %v", DecisionTechnical, err)
			if len(matched) == 0 {
				kind = DecisionTechnical
				reasons = append(reasons, "no keyword match; LLM unavailable")
			}
		} else {
			kind = llmKind
			reasons = append(reasons, fmt.Sprintf("LLM classified as %s", llmKind))
		}
	}

	urgency := UrgencyNormal
	if requiresHuman {
		urgency = UrgencyElevated
	}
	if signals.Priority == ticket.PriorityCritical {
		urgency = UrgencyCritical
		reasons = append(reasons, "ticket priority is CRITICAL")
	}
	if signals.DueDate != nil && signals.DueDate.Before(c.clock()) {
		urgency = UrgencyCritical
		reasons = append(reasons, "ticket deadline has passed")
	}

	return Decision{Kind: kind, Urgency: urgency, Reasons: reasons}
}

// classifyByKeywords scores every vocabulary hit. The winning kind is the
// one with the highest summed weight; an exact tie between distinct kinds is
// ambiguous and defers to the LLM.
func classifyByKeywords(reason string) (Kind, []keyword, bool) {
	lower := strings.ToLower(reason)

	var matched []keyword
	scores := make(map[Kind]int)
	for _, kw := range vocabulary {
		if strings.Contains(lower, kw.term) {
			matched = append(matched, kw)
			scores[kw.kind] += kw.weight
		}
	}
	if len(matched) == 0 {
		return "", nil, false
	}

	var best Kind
	bestScore := -1
	ambiguous := false
	for _, kind := range AllKinds() {
		score, ok := scores[kind]
		if !ok {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, ambiguous = kind, score, false
		case score == bestScore:
			ambiguous = true
		}
	}
	return best, matched, ambiguous
}

// classifyByLLM asks the provider to pick a taxonomy variant and parses the
// answer with fuzzy containment.
func (c *Classifier) classifyByLLM(ctx context.Context, reason string) (Kind, error) {
	if c.llm == nil {
		return "", fmt.Errorf("no LLM provider configured")
	}

	var b strings.Builder
	b.WriteString("Classify the following blocker reason into exactly one escalation kind.\n")
	b.WriteString("Respond with only the kind identifier.\n\nKinds:\n")
	for _, kind := range AllKinds() {
		fmt.Fprintf(&b, "- %s\n", kind)
	}
	fmt.Fprintf(&b, "\nReason: %s\n", reason)

	response, err := c.llm(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	kind, err := ParseKind(response)
	if err != nil {
		return "", fmt.Errorf("unparseable LLM response %q: %w", response, err)
	}
	return kind, nil
}
