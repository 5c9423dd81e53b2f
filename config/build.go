package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/agentloop/agentloop"
	agctx "github.com/kadirpekel/agentloop/context"
	"github.com/kadirpekel/agentloop/observability"
	"github.com/kadirpekel/agentloop/permission"
	"github.com/kadirpekel/agentloop/provider"
	"github.com/kadirpekel/agentloop/session"
	"github.com/kadirpekel/agentloop/tool"
	"github.com/kadirpekel/agentloop/toolmanager"
)

// BuildOptions supplies the collaborators a Config cannot describe
// declaratively: the provider implementation, an optional approval
// callback, and an audit sink.
type BuildOptions struct {
	Provider provider.Port
	Approve  permission.ApprovalCallback
	Audit    toolmanager.AuditFunc
	Logger   *slog.Logger
}

// Build turns a loaded Config into a ready-to-run agentloop.Coordinator,
// wiring the session store, permission manager's allow/block/per-tool
// overrides, and context manager's compaction strategy named in the
// config. Grounded on the teacher's cmd/hector wiring of a loaded Config
// into a running Agent (pkg/agent/agent.go's NewAgent collaborator
// assembly), generalized from the teacher's per-agent LLM/tool/vector-store
// graph down to this module's single coordinator.
func Build(cfg *Config, opts BuildOptions) (*agentloop.Coordinator, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("config: BuildOptions.Provider is required")
	}

	store, err := buildStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(logLevel(cfg.Observability.LogLevel))
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	coord, err := agentloop.New(agentloop.CoordinatorConfig{
		Provider:                opts.Provider,
		Store:                   store,
		Budget:                  budgetFrom(cfg.Context),
		Strategy:                strategyFrom(cfg.Context),
		MaxInputMessages:        cfg.Run.MaxInputMessages,
		Bounds:                  boundsFrom(cfg.Run),
		ErrorHandling:           errorHandlingFrom(cfg.Run.ErrorHandling),
		SystemPrompt:            cfg.Run.Instructions,
		DefaultScope:            tool.Scope(cfg.Permission.DefaultScope),
		DefaultRisk:             tool.Risk(cfg.Permission.DefaultRisk),
		Allowlist:               cfg.Permission.Allowlist,
		Blocklist:               cfg.Permission.Blocklist,
		AutoApproveIfNoCallback: cfg.Permission.AutoApproveIfNoCallback,
		Approve:                 opts.Approve,
		Metrics:                 metrics,
		Logger:                  logger,
		Audit:                   opts.Audit,
	})
	if err != nil {
		return nil, err
	}

	applyPermissionConfig(coord.Loop.Permission, cfg.Permission)

	return coord, nil
}

func buildStore(cfg SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "file":
		return session.NewFileStore(cfg.FileRoot)
	case "sql":
		return session.Open(session.Config{Driver: cfg.SQLDriver, ConnectionString: cfg.SQLConnectionStr})
	default:
		return nil, fmt.Errorf("config: unknown session backend %q", cfg.Backend)
	}
}

func budgetFrom(cfg ContextConfig) agctx.Budget {
	return agctx.Budget{
		ModelContextLimit: cfg.ModelContextLimit,
		ReservedOutput:    cfg.ReservedOutput,
		WarningThreshold:  cfg.WarningThreshold,
	}
}

func strategyFrom(cfg ContextConfig) agctx.Strategy {
	if cfg.CompactionStrategy == "algorithmic_tool_offload" {
		return agctx.AlgorithmicToolOffload{
			ResultSizeThresholdBytes: cfg.ResultSizeThreshold,
			MaxRetainedPairs:         cfg.ToolPairCap,
		}
	}
	return agctx.DefaultRolling{}
}

func boundsFrom(cfg RunConfig) agentloop.Bounds {
	return agentloop.Bounds{
		MaxIterations: cfg.MaxIterations,
		MaxDuration:   cfg.maxExecutionDuration(),
		MaxToolCalls:  cfg.MaxToolCalls,
	}
}

func errorHandlingFrom(cfg ErrorHandlingConfig) agentloop.ErrorHandling {
	mode := agentloop.ToolFailureContinue
	if cfg.ToolFailureMode == "fail" {
		mode = agentloop.ToolFailureFail
	}
	return agentloop.ErrorHandling{
		ToolFailureMode:      mode,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}
}

func applyPermissionConfig(m *permission.Manager, cfg PermissionConfig) {
	for name, pt := range cfg.PerTool {
		m.SetPerTool(name, permission.PerTool{
			Scope:           tool.Scope(pt.Scope),
			Risk:            tool.Risk(pt.Risk),
			ApprovalMessage: pt.ApprovalMessage,
			SessionTTL:      time.Duration(pt.SessionTTLMS) * time.Millisecond,
		})
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
