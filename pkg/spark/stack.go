// Package spark implements specialization layers for agents. A Spark adds
// prompt text and may narrow the tools and files an agent can touch; a Stack
// composes sparks over a fixed affinity into an effective capability set and
// system prompt.
package spark

import (
	"sort"
	"strings"
)

// Kind groups sparks by what they specialize.
type Kind string

const (
	KindRole          Kind = "ROLE"
	KindTask          Kind = "TASK"
	KindCoordination  Kind = "COORDINATION"
	KindObservability Kind = "OBSERVABILITY"
	KindPhase         Kind = "PHASE"
)

// Spark is one specialization layer. Nil AllowedTools and FileAccess mean
// "inherit": the spark does not constrain that dimension.
type Spark struct {
	Kind               Kind             `json:"kind"`
	Name               string           `json:"name"`
	PromptContribution string           `json:"prompt_contribution"`
	AllowedTools       []string         `json:"allowed_tools,omitempty"`
	FileAccess         *FileAccessScope `json:"file_access,omitempty"`
}

// Affinity is the fixed cognitive base type of an agent. It anchors the
// system prompt and never changes after construction.
type Affinity struct {
	Name       string `json:"name"`
	BasePrompt string `json:"base_prompt"`
}

// Stack is an immutable stack of sparks over an affinity. Push and Pop
// return new values; a Stack may be freely shared across goroutines.
type Stack struct {
	affinity Affinity
	sparks   []Spark
}

// NewStack creates an empty stack over the affinity.
func NewStack(affinity Affinity) Stack {
	return Stack{affinity: affinity}
}

// Affinity returns the stack's fixed base type.
func (s Stack) Affinity() Affinity {
	return s.affinity
}

// Push returns a new stack with the spark on top.
func (s Stack) Push(spark Spark) Stack {
	sparks := make([]Spark, len(s.sparks)+1)
	copy(sparks, s.sparks)
	sparks[len(s.sparks)] = spark
	return Stack{affinity: s.affinity, sparks: sparks}
}

// Pop returns the stack without its top spark and the removed spark. Popping
// an empty stack returns the stack unchanged and nil.
func (s Stack) Pop() (Stack, *Spark) {
	if len(s.sparks) == 0 {
		return s, nil
	}
	top := s.sparks[len(s.sparks)-1]
	return Stack{affinity: s.affinity, sparks: s.sparks[:len(s.sparks)-1]}, &top
}

// Peek returns the top spark without removing it, or nil.
func (s Stack) Peek() *Spark {
	if len(s.sparks) == 0 {
		return nil
	}
	top := s.sparks[len(s.sparks)-1]
	return &top
}

// Depth returns the number of sparks on the stack.
func (s Stack) Depth() int {
	return len(s.sparks)
}

// Contains reports whether any spark of the kind is on the stack.
func (s Stack) Contains(kind Kind) bool {
	return s.FindSpark(kind) != nil
}

// FindSpark returns the topmost spark of the kind, or nil.
func (s Stack) FindSpark(kind Kind) *Spark {
	for i := len(s.sparks) - 1; i >= 0; i-- {
		if s.sparks[i].Kind == kind {
			spark := s.sparks[i]
			return &spark
		}
	}
	return nil
}

// BuildSystemPrompt composes the deterministic system prompt: the affinity
// header first, then each spark's contribution in push order, separated by a
// horizontal rule.
func (s Stack) BuildSystemPrompt() string {
	parts := []string{s.affinity.BasePrompt}
	for _, spark := range s.sparks {
		if spark.PromptContribution != "" {
			parts = append(parts, spark.PromptContribution)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// EffectiveAllowedTools intersects every constraining spark's tool set. nil
// means no spark constrains tools.
func (s Stack) EffectiveAllowedTools() []string {
	var effective map[string]bool
	for _, spark := range s.sparks {
		if spark.AllowedTools == nil {
			continue
		}
		if effective == nil {
			effective = make(map[string]bool, len(spark.AllowedTools))
			for _, tool := range spark.AllowedTools {
				effective[tool] = true
			}
			continue
		}
		narrowed := make(map[string]bool, len(spark.AllowedTools))
		for _, tool := range spark.AllowedTools {
			if effective[tool] {
				narrowed[tool] = true
			}
		}
		effective = narrowed
	}
	if effective == nil {
		return nil
	}
	tools := make([]string, 0, len(effective))
	for tool := range effective {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// EffectiveFileAccess folds every constraining spark's scope. With no
// constraints the result is Permissive; NoAccess absorbs everything.
func (s Stack) EffectiveFileAccess() FileAccessScope {
	effective := Permissive()
	for _, spark := range s.sparks {
		if spark.FileAccess != nil {
			effective = effective.Intersect(*spark.FileAccess)
		}
	}
	return effective
}

// Describe renders the stack for logs: affinity first, then each spark name
// in push order.
func (s Stack) Describe() string {
	parts := []string{"[" + s.affinity.Name + "]"}
	for _, spark := range s.sparks {
		parts = append(parts, "["+spark.Name+"]")
	}
	return strings.Join(parts, " -> ")
}
