// Command ampere runs the coordination core: sqlite store, event bus, ticket
// orchestration, and one engineering agent wired to an LLM provider. Without
// provider credentials the binary runs against the scripted mock, which is
// enough to exercise the full loop locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ampere/pkg/agent"
	"ampere/pkg/agent/llmimpl/anthropic"
	"ampere/pkg/agent/llmimpl/openai"
	"ampere/pkg/bus"
	"ampere/pkg/config"
	"ampere/pkg/logx"
	"ampere/pkg/memory"
	"ampere/pkg/orchestrator"
	"ampere/pkg/proto"
	"ampere/pkg/spark"
	"ampere/pkg/thread"
)

// Version information - set by the release pipeline via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath  = flag.String("config", "ampere.yaml", "Path to configuration file")
		agentID     = flag.String("agent", "eng", "Identity of the engineering agent")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ampere %s (%s)\n", version, commit)
		os.Exit(0)
	}

	os.Exit(run(*configPath, *agentID))
}

// run contains the main logic and returns an exit code, so defers execute
// before the process exits.
func run(configPath, agentID string) int {
	logger := logx.NewLogger("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	provider := buildProvider(logger)

	core, err := orchestrator.NewAmpereContext(&cfg, func(ctx context.Context, prompt string) (string, error) {
		return provider.Generate(ctx, "", prompt)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize core: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := core.Close(); closeErr != nil {
			logger.Error("Shutdown error: %v", closeErr)
		}
	}()

	// Escalations surface on the console until a real channel is wired.
	escalations := thread.NewEscalationEventHandler(&consoleNotifier{logger: logx.NewLogger("escalation")})
	escalationSub := core.Bus.Subscribe("escalation-console", bus.ByClass(proto.ClassMessage), escalations.HandleEvent)
	defer escalationSub.Cancel()

	eng := buildAgent(agentID, provider, core)
	agentSub := core.Bus.Subscribe(agentID, bus.ByClass(proto.ClassTicket), eng.HandleEvent)
	defer agentSub.Cancel()

	logger.Info("ampere %s running (agent=%s, db=%s)", version, agentID, cfg.DatabasePath)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("Received %s, shutting down", sig)
	return 0
}

// buildProvider picks the configured LLM backend: Anthropic, then OpenAI,
// then the scripted mock. Every backend is wrapped with retry.
func buildProvider(logger *logx.Logger) agent.Provider {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := envOr("AMPERE_ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
		logger.Info("Using Anthropic provider (%s)", model)
		return agent.NewRetryProvider(anthropic.NewClient(key, model), agent.DefaultRetryConfig)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := envOr("AMPERE_OPENAI_MODEL", "gpt-5")
		logger.Info("Using OpenAI provider (%s)", model)
		return agent.NewRetryProvider(openai.NewClient(key, model), agent.DefaultRetryConfig)
	}
	logger.Warn("No provider credentials found; using the scripted mock")
	return agent.NewMockProvider(
		"inspect the ticket and propose a minimal change",
		"read the relevant code\nmake the change\nverify behavior")
}

// buildAgent wires the engineering agent over the shared core.
func buildAgent(agentID string, provider agent.Provider, core *orchestrator.AmpereContext) *agent.Agent {
	role := spark.RoleCodeSpark()
	executor := agent.NewPlanExecutor(core.Config.PlanMaxSteps, llmStepExecutor(provider), core.Bus)

	return agent.NewAgent(agent.Options{
		ID:          agentID,
		Affinity:    spark.Affinity{Name: "Engineer", BasePrompt: "You are an autonomous engineering agent."},
		Role:        &role,
		Provider:    provider,
		Memory:      memory.NewService(core.Knowledge, agentID),
		Tickets:     core.Tickets,
		Coordinator: core.Lifecycle,
		Bus:         core.Bus,
		Executor:    executor,
		States:      agent.NewStateStore(core.DB),
	})
}

// llmStepExecutor performs each plan step as a provider call. Tool-backed
// execution plugs in here once the sandbox lands.
func llmStepExecutor(provider agent.Provider) agent.StepExecutor {
	return func(ctx context.Context, step agent.Task, snapshot map[string]string) (agent.StepResult, error) {
		prompt := fmt.Sprintf("Perform this step and report the result: %s", step.Description)
		if len(snapshot) > 0 {
			prompt += fmt.Sprintf("\nContext so far: %v", snapshot)
		}
		response, err := provider.Generate(ctx, "", prompt)
		if err != nil {
			return agent.StepResult{}, err
		}
		return agent.StepResult{Status: agent.StepSuccess, Message: response}, nil
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// consoleNotifier prints escalations to the log until a chat or pager
// integration replaces it.
type consoleNotifier struct {
	logger *logx.Logger
}

func (n *consoleNotifier) NotifyEscalation(threadID, agentID, reason string, context map[string]string) error {
	n.logger.Warn("HUMAN ATTENTION NEEDED on thread %s (from %s): %s %v", threadID, agentID, reason, context)
	return nil
}
