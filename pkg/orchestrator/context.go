package orchestrator

import (
	"database/sql"
	"fmt"

	"ampere/pkg/bus"
	"ampere/pkg/config"
	"ampere/pkg/escalation"
	"ampere/pkg/eventlog"
	"ampere/pkg/knowledge"
	"ampere/pkg/logx"
	"ampere/pkg/persistence"
	"ampere/pkg/thread"
	"ampere/pkg/ticket"
)

// AmpereContext is the explicit wiring object: the bus and repositories
// every component shares. It is initialized before agents start and torn
// down after their scopes are cancelled; there are no process-wide
// singletons behind it.
type AmpereContext struct {
	Config    *config.CoreConfig
	DB        *sql.DB
	Bus       *bus.Bus
	AuditLog  *eventlog.Writer
	Tickets   *ticket.Repository
	Threads   *thread.API
	Knowledge *knowledge.Repository
	Responses *thread.HumanResponseRegistry
	Lifecycle *TicketOrchestrator

	logger *logx.Logger
}

// NewAmpereContext opens the store and wires every core component. llm may
// be nil; the classifier then resolves unmatched reasons to a technical
// decision.
func NewAmpereContext(cfg *config.CoreConfig, llm escalation.LLMFunc) (*AmpereContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var audit *eventlog.Writer
	if cfg.EventLogDir != "" {
		audit, err = eventlog.NewWriter(cfg.EventLogDir)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}

	eventBus := bus.NewBus(db, bus.Options{
		QueueSize:           cfg.BusQueueSize,
		SubscriberQueueSize: cfg.SubscriberQueueSize,
		ReplayBatchSize:     cfg.ReplayBatchSize,
		AuditLog:            audit,
	})

	tickets := ticket.NewRepository(db)
	threads := thread.NewAPI(db, eventBus)
	classifier := escalation.NewClassifier(llm)

	ctx := &AmpereContext{
		Config:    cfg,
		DB:        db,
		Bus:       eventBus,
		AuditLog:  audit,
		Tickets:   tickets,
		Threads:   threads,
		Knowledge: knowledge.NewRepository(db),
		Responses: thread.NewHumanResponseRegistry(cfg.HumanResponseTimeout),
		Lifecycle: NewTicketOrchestrator(tickets, threads, eventBus, classifier),
		logger:    logx.NewLogger("ampere"),
	}

	ctx.logger.Info("Core initialized (db=%s, logs=%s)", cfg.DatabasePath, cfg.EventLogDir)
	return ctx, nil
}

// Close tears the context down in reverse initialization order.
func (c *AmpereContext) Close() error {
	var firstErr error
	if err := c.Bus.Close(); err != nil {
		firstErr = err
	}
	if c.AuditLog != nil {
		if err := c.AuditLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.logger.Info("Core shut down")
	return firstErr
}
