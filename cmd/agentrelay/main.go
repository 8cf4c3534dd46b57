// Command agentrelay runs multi-agent scenarios against an OpenAI compatible
// or Anthropic endpoint.
//
// Usage:
//
//	agentrelay run "What is the capital of France?"
//	agentrelay scenario random-number --stream
//	agentrelay scenario guardrails --metrics-addr :9090 "Solve 2x + 3 = 11"
//	agentrelay scenario llm-as-a-judge "A detective story set on Mars"
//	agentrelay validate --config agentrelay.yaml
//
// API_KEY, API_BASE and MODEL_NAME are read from the environment or a .env
// file in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run a single assistant agent on a prompt."`
	Scenario ScenarioCmd `cmd:"" help:"Run a built-in multi-agent scenario."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	EnvFile  string `name:"env-file" help:"Path to a .env file." default:".env"`
	Provider string `help:"Model provider (openai, anthropic)."`
	Model    string `help:"Model name."`
	BaseURL  string `name:"base-url" help:"Custom API base URL."`
	APIKey   string `name:"api-key" help:"API key (defaults to API_KEY)."`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)."`
	MaxTurns int    `name:"max-turns" help:"Maximum model calls per run."`

	Stream      bool   `help:"Print streamed events while the run executes."`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address."`
	Trace       bool   `help:"Print finished spans to stderr."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentrelay version %s\n", version)
	return nil
}

// RunCmd runs a single assistant.
type RunCmd struct {
	Instructions string `help:"System instructions." default:"You are a helpful assistant."`
	Prompt       string `arg:"" help:"User prompt."`
}

func (c *RunCmd) Run(ctx context.Context, cli *CLI) error {
	app, err := cli.setup()
	if err != nil {
		return err
	}
	defer app.close()

	return app.execute(ctx, assistant(c.Instructions), c.Prompt, cli.Stream)
}

// ScenarioCmd runs one of the built-in scenarios.
type ScenarioCmd struct {
	Name   string `arg:"" help:"Scenario name." enum:"random-number,guardrails,forcing-tool-use,agents-as-tools,language-triage,parallelization,llm-as-a-judge,deterministic"`
	Prompt string `arg:"" optional:"" help:"User prompt (defaults to the scenario's sample prompt)."`

	ToolUseBehavior string `name:"tool-use-behavior" help:"Tool use behavior for forcing-tool-use (default, first_tool, custom)." default:"default"`
}

func (c *ScenarioCmd) Run(ctx context.Context, cli *CLI) error {
	sc, err := buildScenario(c.Name, c.ToolUseBehavior)
	if err != nil {
		return err
	}

	app, err := cli.setup()
	if err != nil {
		return err
	}
	defer app.close()

	prompt := c.Prompt
	if prompt == "" {
		prompt = sc.prompt
	}

	if sc.workflow != nil {
		return sc.workflow(ctx, app, prompt)
	}
	return app.execute(ctx, sc.entry, prompt, cli.Stream)
}

// ValidateCmd validates configuration and scenarios without calling a model.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	for _, name := range scenarioNames {
		sc, err := buildScenario(name, "default")
		if err != nil {
			return err
		}
		for _, a := range sc.agents() {
			if err := validateGraph(a); err != nil {
				return fmt.Errorf("scenario %s: %w", name, err)
			}
		}
	}

	fmt.Printf("Configuration is valid (provider %s, max turns %d)\n", cfg.Model.Provider, cfg.Runner.MaxTurns)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("agentrelay"),
		kong.Description("Multi-agent orchestration runtime"),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
