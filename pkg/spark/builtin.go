package spark

import "fmt"

// Tool identifiers the built-in sparks reference.
const (
	ToolFileRead   = "file.read"
	ToolFileWrite  = "file.write"
	ToolShell      = "shell"
	ToolGit        = "git"
	ToolSearch     = "search"
	ToolWebFetch   = "web.fetch"
	ToolMessaging  = "messaging"
	ToolMonitoring = "monitoring"
)

// RoleCodeSpark specializes an agent for writing code: full tool access
// inside source trees, docs and secrets off limits for writes.
func RoleCodeSpark() Spark {
	return Spark{
		Kind: KindRole,
		Name: "Role.Code",
		PromptContribution: "You are acting as a software engineer. Write clean, tested code. " +
			"Prefer small, reviewable changes and explain tradeoffs when they matter.",
		AllowedTools: []string{ToolFileRead, ToolFileWrite, ToolShell, ToolGit, ToolSearch},
		FileAccess: &FileAccessScope{
			ReadPatterns:      []string{"**"},
			WritePatterns:     []string{"src/**", "pkg/**", "cmd/**", "internal/**", "**/*_test.go"},
			ForbiddenPatterns: []string{"**/.env", "**/secrets/**"},
		},
	}
}

// RoleResearchSpark specializes an agent for investigation: read and search
// everywhere, write nothing.
func RoleResearchSpark() Spark {
	return Spark{
		Kind: KindRole,
		Name: "Role.Research",
		PromptContribution: "You are acting as a researcher. Gather evidence before concluding, " +
			"cite what you read, and separate facts from hypotheses.",
		AllowedTools: []string{ToolFileRead, ToolSearch, ToolWebFetch},
		FileAccess: &FileAccessScope{
			ReadPatterns:  []string{"**"},
			WritePatterns: []string{},
		},
	}
}

// RoleOperationsSpark specializes an agent for running systems: shell and
// monitoring tools, config trees writable, source read-only.
func RoleOperationsSpark() Spark {
	return Spark{
		Kind: KindRole,
		Name: "Role.Operations",
		PromptContribution: "You are acting as an operations engineer. Favor reversible actions, " +
			"verify system state before and after every change, and record what you did.",
		AllowedTools: []string{ToolFileRead, ToolShell, ToolMonitoring},
		FileAccess: &FileAccessScope{
			ReadPatterns:      []string{"**"},
			WritePatterns:     []string{"config/**", "deploy/**"},
			ForbiddenPatterns: []string{"**/secrets/**"},
		},
	}
}

// RolePlanningSpark specializes an agent for planning work: read everything,
// touch nothing but planning documents.
func RolePlanningSpark() Spark {
	return Spark{
		Kind: KindRole,
		Name: "Role.Planning",
		PromptContribution: "You are acting as a planner. Decompose work into small verifiable steps, " +
			"surface dependencies and risks, and estimate complexity honestly.",
		AllowedTools: []string{ToolFileRead, ToolSearch, ToolMessaging},
		FileAccess: &FileAccessScope{
			ReadPatterns:  []string{"**"},
			WritePatterns: []string{"docs/plans/**"},
		},
	}
}

// TaskSpark focuses the agent on one concrete task. It adds prompt text only
// and inherits all capability constraints.
func TaskSpark(taskID, description string) Spark {
	return Spark{
		Kind:               KindTask,
		Name:               "Task:" + taskID,
		PromptContribution: fmt.Sprintf("Current task (%s): %s", taskID, description),
	}
}

// HandoffSpark marks a coordinator delegating work to another agent. Pushed
// for the duration of the coordinator's planning phase.
func HandoffSpark(workerID string) Spark {
	return Spark{
		Kind: KindCoordination,
		Name: "Coordination.Handoff",
		PromptContribution: fmt.Sprintf(
			"You are delegating execution to agent %s. Produce a plan another agent can follow "+
				"without additional context; do not execute steps yourself.", workerID),
	}
}

// VerboseSpark asks the agent to narrate its reasoning for observability.
func VerboseSpark() Spark {
	return Spark{
		Kind: KindObservability,
		Name: "Observability.Verbose",
		PromptContribution: "Narrate your reasoning as you work: state what you are doing, " +
			"why, and what you expect to observe.",
	}
}

// Phase names for PhaseSpark.
const (
	PhasePerceive = "Perceive"
	PhasePlan     = "Plan"
	PhaseExecute  = "Execute"
	PhaseLearn    = "Learn"
)

//nolint:gochecknoglobals // Static phase-to-prompt table
var phasePrompts = map[string]string{
	PhasePerceive: "You are in the PERCEIVE phase: observe the current state and generate ideas. Do not act yet.",
	PhasePlan:     "You are in the PLAN phase: turn the chosen idea into ordered, verifiable steps.",
	PhaseExecute:  "You are in the EXECUTE phase: carry out the plan step by step and report each result.",
	PhaseLearn:    "You are in the LEARN phase: extract what worked, what failed, and what to remember.",
}

// PhaseSpark marks which phase of the cognitive loop the agent is in. Pushed
// on phase entry and popped on every exit path.
func PhaseSpark(phase string) Spark {
	return Spark{
		Kind:               KindPhase,
		Name:               "Phase." + phase,
		PromptContribution: phasePrompts[phase],
	}
}
