// Command agentloopd is the CLI for the agentloop runtime.
//
// Usage:
//
//	agentloopd run --config config.yaml --session demo --input "list the files here"
//	agentloopd validate config.yaml
//	agentloopd schema
//	agentloopd version
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface. Grounded on the teacher's
// cmd/hector/main.go CLI struct (kong cmd-tagged subcommands plus shared
// --config/--log-level globals).
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run one turn of the agentic loop."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema for the configuration format."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"agentloop.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentloopd"),
		kong.Description("Runtime for the agentloop agentic control loop."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "agentloopd:", err)
		os.Exit(1)
	}
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println("agentloopd", version())
	return nil
}
