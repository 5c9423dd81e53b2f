package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/agentloop/agentloop"
	"github.com/kadirpekel/agentloop/config"
	"github.com/kadirpekel/agentloop/provider"
)

// RunCmd runs one turn of the agentic loop and streams its events to
// stdout. Grounded on the teacher's cmd/hector/serve.go signal-handling
// setup (SIGINT/SIGTERM cancel the run's context) scaled down from a
// long-lived HTTP server to a single synchronous CLI turn.
//
// No concrete LLM provider SDK ships with this module (spec §1's
// Non-goal); RunCmd always drives the loop against a scripted
// provider.Mock so the wiring can be exercised without a live API key. The
// mock replies with --mock-response, or with a fixed placeholder text when
// that flag is empty. A real embedding application supplies its own provider.Port
// and calls config.Build directly instead of this command.
type RunCmd struct {
	Session      string `help:"Session ID to load/save." default:"cli"`
	Input        string `help:"User input for this turn." required:""`
	MockResponse string `name:"mock-response" help:"Canned assistant text returned by a scripted provider.Mock, for exercising the loop without a live API key."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.MockResponse == "" {
		c.MockResponse = "(no --mock-response given; this is a scripted placeholder reply)"
	}
	mock := provider.NewMock(provider.Response{Text: c.MockResponse, StopReason: "end_turn"})

	coord, err := config.Build(cfg, config.BuildOptions{Provider: mock})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	for ev, err := range coord.Stream(ctx, c.Session, c.Input) {
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		printEvent(ev)
	}
	return nil
}

// printEvent renders the subset of Event fields relevant to each kind,
// mirroring the teacher's chat_direct.go streaming-to-terminal loop.
func printEvent(ev agentloop.Event) {
	switch ev.Kind {
	case agentloop.EventTextDelta:
		fmt.Print(ev.TextDelta)
	case agentloop.EventTextDone:
		fmt.Println()
	case agentloop.EventToolCallStart:
		fmt.Printf("\n[tool] %s(%s) ...\n", ev.ToolName, ev.ToolCallID)
	case agentloop.EventToolExecDone:
		status := "ok"
		if ev.ToolIsError {
			status = "error"
		}
		fmt.Printf("[tool] %s -> %s: %s\n", ev.ToolName, status, ev.ToolResult)
	case agentloop.EventResponseDone:
		fmt.Println("\n--- run complete ---")
	}
}
