package config

import "fmt"

// Validate checks enum-valued fields and cross-field requirements left
// unaddressed by SetDefaults. Grounded on the teacher's pkg/config
// per-section Validate() methods (e.g. ToolConfig.Validate's
// membership-against-a-valid-list pattern).
func (c *Config) Validate() error {
	if err := validateOneOf("run.history_mode", c.Run.HistoryMode, "full", "compacted", "hybrid"); err != nil {
		return err
	}
	if err := validateOneOf("run.error_handling.hook_failure_mode", c.Run.ErrorHandling.HookFailureMode, "fail", "warn", "ignore"); err != nil {
		return err
	}
	if err := validateOneOf("run.error_handling.tool_failure_mode", c.Run.ErrorHandling.ToolFailureMode, "fail", "continue"); err != nil {
		return err
	}
	if c.Run.MaxIterations <= 0 {
		return fmt.Errorf("config: run.max_iterations must be positive, got %d", c.Run.MaxIterations)
	}

	if err := validateOneOf("permission.default_scope", c.Permission.DefaultScope, "always", "session", "once", "never"); err != nil {
		return err
	}
	if err := validateOneOf("permission.default_risk", c.Permission.DefaultRisk, "low", "medium", "high", "critical"); err != nil {
		return err
	}
	for name, pt := range c.Permission.PerTool {
		if pt.Scope != "" {
			if err := validateOneOf(fmt.Sprintf("permission.per_tool.%s.scope", name), pt.Scope, "always", "session", "once", "never"); err != nil {
				return err
			}
		}
		if pt.Risk != "" {
			if err := validateOneOf(fmt.Sprintf("permission.per_tool.%s.risk", name), pt.Risk, "low", "medium", "high", "critical"); err != nil {
				return err
			}
		}
	}

	if err := validateOneOf("context.compaction_strategy", c.Context.CompactionStrategy, "default_rolling", "algorithmic_tool_offload"); err != nil {
		return err
	}

	if err := validateOneOf("session.backend", c.Session.Backend, "file", "sql", "none"); err != nil {
		return err
	}
	if c.Session.Backend == "sql" {
		if c.Session.SQLDriver == "" {
			return fmt.Errorf("config: session.sql_driver is required when session.backend is sql")
		}
		if err := validateOneOf("session.sql_driver", c.Session.SQLDriver, "sqlite", "postgres", "mysql"); err != nil {
			return err
		}
		if c.Session.SQLConnectionStr == "" {
			return fmt.Errorf("config: session.sql_connection_string is required when session.backend is sql")
		}
	}

	return validateOneOf("observability.log_level", c.Observability.LogLevel, "debug", "info", "warn", "error")
}

func validateOneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s has invalid value %q (valid: %v)", field, value, allowed)
}
