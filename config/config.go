// Package config implements loading and defaulting for agentloop's
// configuration surface (spec §6): run-level, permission-level, and
// context-level options read from YAML, with `${VAR}`/`${VAR:-default}`
// environment-variable expansion and an optional `.env` overlay. Grounded
// on the teacher's pkg/config package (Config/SetDefaults shape,
// env.go's expansion regexes and godotenv.Load convention) generalized
// from the teacher's LLM/tool/agent provider graph down to this module's
// flatter run/permission/context configuration.
package config

import "time"

// Config is the root configuration document a caller loads once at
// startup and passes to Build.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Permission PermissionConfig `yaml:"permission"`
	Context    ContextConfig    `yaml:"context"`
	Session    SessionConfig    `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RunConfig is spec §6's run-level configuration bucket. Build passes
// Instructions, the four bounds and ErrorHandling's tool-failure settings on
// to the coordinator; Model, Temperature, HistoryMode, VendorOptions and
// ErrorHandling.HookFailureMode are defaulted and validated but not passed on.
type RunConfig struct {
	Model            string         `yaml:"model"`
	Instructions     string         `yaml:"instructions"`
	Temperature      float64        `yaml:"temperature"`
	MaxIterations    int            `yaml:"max_iterations"`
	MaxExecutionMS   int64          `yaml:"max_execution_ms"`
	MaxToolCalls     int            `yaml:"max_tool_calls"`
	MaxInputMessages int            `yaml:"max_input_messages"`
	HistoryMode      string         `yaml:"history_mode"`
	VendorOptions    map[string]any `yaml:"vendor_options"`
	ErrorHandling    ErrorHandlingConfig `yaml:"error_handling"`
}

// ErrorHandlingConfig is spec §6's `error-handling{...}` sub-bucket.
type ErrorHandlingConfig struct {
	HookFailureMode     string `yaml:"hook_failure_mode"`     // fail|warn|ignore
	ToolFailureMode     string `yaml:"tool_failure_mode"`     // fail|continue
	MaxConsecutiveErrors int   `yaml:"max_consecutive_errors"`
}

// PermissionConfig is spec §6's permission-level configuration bucket.
type PermissionConfig struct {
	DefaultScope string                `yaml:"default_scope"` // always|session|once|never
	DefaultRisk  string                `yaml:"default_risk"`  // low|medium|high|critical
	Allowlist    []string              `yaml:"allowlist"`
	Blocklist    []string              `yaml:"blocklist"`
	PerTool      map[string]PerToolConfig `yaml:"per_tool"`
	AutoApproveIfNoCallback bool       `yaml:"auto_approve_if_no_callback"`
}

// PerToolConfig overrides scope/risk/approval-message/TTL for one tool.
type PerToolConfig struct {
	Scope           string `yaml:"scope"`
	Risk            string `yaml:"risk"`
	ApprovalMessage string `yaml:"approval_message"`
	SessionTTLMS    int64  `yaml:"session_ttl_ms"`
}

// ContextConfig is spec §6's context-level configuration bucket.
type ContextConfig struct {
	ModelContextLimit int     `yaml:"model_context_limit"`
	ReservedOutput    int     `yaml:"reserved_output"`
	WarningThreshold  float64 `yaml:"warning_threshold"`
	CompactionStrategy string `yaml:"compaction_strategy"` // default_rolling|algorithmic_tool_offload
	ToolPairCap        int    `yaml:"tool_pair_cap"`
	ResultSizeThreshold int   `yaml:"result_size_threshold"`
}

// SessionConfig selects and configures a session.Store backend.
type SessionConfig struct {
	Backend          string `yaml:"backend"` // file|sql|none
	FileRoot         string `yaml:"file_root"`
	SQLDriver        string `yaml:"sql_driver"`        // sqlite|postgres|mysql
	SQLConnectionStr string `yaml:"sql_connection_string"`
}

// ObservabilityConfig toggles logging verbosity, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel        string `yaml:"log_level"` // debug|info|warn|error
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// SetDefaults fills in the documented defaults from spec §6 for every
// field a caller left zero-valued.
func (c *Config) SetDefaults() {
	if c.Run.MaxIterations == 0 {
		c.Run.MaxIterations = 10
	}
	if c.Run.HistoryMode == "" {
		c.Run.HistoryMode = "full"
	}
	if c.Context.ModelContextLimit == 0 {
		c.Context.ModelContextLimit = 128000
	}
	if c.Run.ErrorHandling.HookFailureMode == "" {
		c.Run.ErrorHandling.HookFailureMode = "fail"
	}
	if c.Run.ErrorHandling.ToolFailureMode == "" {
		c.Run.ErrorHandling.ToolFailureMode = "continue"
	}
	if c.Permission.DefaultScope == "" {
		c.Permission.DefaultScope = "once"
	}
	if c.Permission.DefaultRisk == "" {
		c.Permission.DefaultRisk = "medium"
	}
	if c.Context.WarningThreshold == 0 {
		c.Context.WarningThreshold = 0.70
	}
	if c.Context.CompactionStrategy == "" {
		c.Context.CompactionStrategy = "default_rolling"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "file"
	}
	if c.Session.FileRoot == "" {
		c.Session.FileRoot = "./agentloop-sessions"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

func (c RunConfig) maxExecutionDuration() time.Duration {
	if c.MaxExecutionMS <= 0 {
		return 0
	}
	return time.Duration(c.MaxExecutionMS) * time.Millisecond
}
