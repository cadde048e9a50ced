package spark

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// candidateSparks is the pool random stacks are drawn from: a mix of
// unconstrained, tool-constraining, and file-constraining sparks.
func candidateSparks() []Spark {
	readDocs := FileAccessScope{
		ReadPatterns:      []string{"docs/**", "pkg/**"},
		ForbiddenPatterns: []string{"**/.env"},
	}
	writeTests := FileAccessScope{
		WritePatterns:     []string{"**/*_test.go"},
		ForbiddenPatterns: []string{"**/secrets/**"},
	}
	locked := NoAccess()

	return []Spark{
		RoleCodeSpark(),
		RoleResearchSpark(),
		RoleOperationsSpark(),
		RolePlanningSpark(),
		TaskSpark("t-1", "unconstrained task"),
		HandoffSpark("worker"),
		VerboseSpark(),
		PhaseSpark(PhaseExecute),
		{Kind: KindTask, Name: "tools:read", AllowedTools: []string{ToolFileRead}},
		{Kind: KindTask, Name: "tools:none", AllowedTools: []string{}},
		{Kind: KindTask, Name: "files:docs", FileAccess: &readDocs},
		{Kind: KindTask, Name: "files:tests", FileAccess: &writeTests},
		{Kind: KindTask, Name: "files:locked", FileAccess: &locked},
	}
}

func genSpark() gopter.Gen {
	pool := candidateSparks()
	return gen.IntRange(0, len(pool)-1).Map(func(i int) Spark { return pool[i] })
}

func genStack() gopter.Gen {
	return gen.SliceOf(genSpark()).Map(func(sparks []Spark) Stack {
		stack := NewStack(Affinity{Name: "Engineer", BasePrompt: "base"})
		for _, s := range sparks {
			stack = stack.Push(s)
		}
		return stack
	})
}

func toolSubset(narrow, wide []string) bool {
	if wide == nil {
		return true
	}
	if narrow == nil {
		return false
	}
	allowed := make(map[string]bool, len(wide))
	for _, tool := range wide {
		allowed[tool] = true
	}
	for _, tool := range narrow {
		if !allowed[tool] {
			return false
		}
	}
	return true
}

func forbiddenSuperset(narrow, wide FileAccessScope) bool {
	if narrow.IsNoAccess() {
		return true
	}
	if wide.IsNoAccess() {
		return false
	}
	have := make(map[string]bool, len(narrow.ForbiddenPatterns))
	for _, p := range narrow.ForbiddenPatterns {
		have[p] = true
	}
	for _, p := range wide.ForbiddenPatterns {
		if !have[p] {
			return false
		}
	}
	return true
}

func TestPushOnlyNarrows(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("pushed tools are a subset of the base tools",
		prop.ForAll(func(stack Stack, spark Spark) bool {
			return toolSubset(stack.Push(spark).EffectiveAllowedTools(), stack.EffectiveAllowedTools())
		}, genStack(), genSpark()))

	properties.Property("forbidden patterns grow monotonically with depth",
		prop.ForAll(func(stack Stack, spark Spark) bool {
			return forbiddenSuperset(stack.Push(spark).EffectiveFileAccess(), stack.EffectiveFileAccess())
		}, genStack(), genSpark()))

	properties.Property("paths writable after a push were writable before",
		prop.ForAll(func(stack Stack, spark Spark, path string) bool {
			pushed := stack.Push(spark)
			if pushed.EffectiveFileAccess().CanWrite(path) {
				return stack.EffectiveFileAccess().CanWrite(path)
			}
			return true
		}, genStack(), genSpark(),
			gen.OneConstOf("pkg/bus/bus.go", "pkg/bus/bus_test.go", "docs/plan.md",
				"config/app.yaml", "secrets/api.key", ".env")))

	properties.TestingRun(t)
}
