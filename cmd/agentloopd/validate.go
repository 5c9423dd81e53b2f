package main

import (
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/agentloop/config"
)

// ValidateCmd validates a configuration file. Grounded on the teacher's
// cmd/hector/validate.go ValidateCmd (positional path argument, a
// --print-config flag to dump the expanded document).
type ValidateCmd struct {
	Path        string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration with defaults applied and env vars resolved."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(c.Path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid: %w", err)
	}

	fmt.Printf("%s is valid\n", c.Path)

	if c.PrintConfig {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	}
	return nil
}
