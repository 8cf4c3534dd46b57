package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/observability"
	"github.com/hupe1980/agentrelay/runner"
)

type app struct {
	runner *runner.Runner
	logger logging.Logger
	out    io.Writer

	server         *http.Server
	tracerProvider *sdktrace.TracerProvider
}

func (cli *CLI) loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(cli.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	if cli.Provider != "" {
		cfg.Model.Provider = cli.Provider
	}
	if cli.Model != "" {
		cfg.Model.Name = cli.Model
	}
	if cli.BaseURL != "" {
		cfg.Model.BaseURL = cli.BaseURL
	}
	if cli.APIKey != "" {
		cfg.Model.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.MaxTurns > 0 {
		cfg.Runner.MaxTurns = cli.MaxTurns
	}
	if cli.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = cli.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cli *CLI) setup() (*app, error) {
	cfg, err := cli.loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{out: os.Stdout, logger: cfg.Logger(os.Stderr)}
	optFns := []func(o *runner.Options){
		func(o *runner.Options) { o.Logger = a.logger },
		cfg.RunnerOptions(os.Stderr),
	}

	if cfg.Metrics.Enabled {
		pp, err := observability.NewPrometheusProvider()
		if err != nil {
			return nil, err
		}
		metrics, err := pp.Metrics()
		if err != nil {
			return nil, err
		}
		optFns = append(optFns, func(o *runner.Options) { o.Metrics = metrics })

		a.server = newMetricsServer(cfg.Metrics.Addr, cfg.Metrics.Path, pp.Handler)
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics.server.failed", "error", err)
			}
		}()
		a.logger.Info("metrics.server.start", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
	}

	if cli.Trace {
		tp, err := observability.NewStdoutTracerProvider(os.Stderr, true)
		if err != nil {
			return nil, err
		}
		a.tracerProvider = tp
		optFns = append(optFns, func(o *runner.Options) { o.Tracer = tp.Tracer(observability.MeterName) })
	}

	a.runner = runner.New(optFns...)

	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.server != nil {
		_ = a.server.Shutdown(ctx)
	}
	if a.tracerProvider != nil {
		_ = a.tracerProvider.Shutdown(ctx)
	}
}

func (a *app) execute(ctx context.Context, entry *agent.Agent, prompt string, stream bool) error {
	if !stream {
		res, err := a.runner.Run(ctx, entry, runner.Text(prompt))
		if err != nil {
			return describeError(err)
		}
		a.printResult(res)
		return nil
	}

	s := a.runner.RunStreamed(ctx, entry, runner.Text(prompt))
	for ev := range s.Events() {
		switch e := ev.(type) {
		case runner.RawResponseEvent:
			fmt.Fprint(a.out, e.Delta)
		case runner.AgentUpdatedEvent:
			fmt.Fprintf(a.out, "\n-- agent: %s\n", e.Agent.Name())
		case runner.RunItemEvent:
			a.printItem(e)
		case runner.RunCompleteEvent:
			fmt.Fprintln(a.out)
			a.printResult(e.Result)
		case runner.RunErrorEvent:
			fmt.Fprintln(a.out)
		}
	}

	if _, err := s.Wait(); err != nil {
		return describeError(err)
	}
	return nil
}

func (a *app) printItem(e runner.RunItemEvent) {
	switch e.Name {
	case runner.EventToolCalled, runner.EventHandoffRequested:
		if fc, ok := e.Item.FunctionCall(); ok {
			fmt.Fprintf(a.out, "-- %s: %s %s\n", e.Name, fc.Name, fc.Arguments)
		}
	case runner.EventToolOutput:
		if fr, ok := e.Item.FunctionResponse(); ok {
			fmt.Fprintf(a.out, "-- %s: %s -> %v\n", e.Name, fr.Name, fr.Response)
		}
	case runner.EventHandoffOccured:
		fmt.Fprintf(a.out, "-- %s: %s -> %s\n", e.Name, e.Item.SourceAgent, e.Item.TargetAgent)
	case runner.EventMessageOutputCreated:
		fmt.Fprintf(a.out, "\n-- %s by %s\n", e.Name, e.Item.Agent)
	}
}

func (a *app) printResult(res *runner.RunResult) {
	fmt.Fprintf(a.out, "%s\n", res.FinalOutputText())
	fmt.Fprintf(a.out, "(agent %s, %d turns, %d requests, %d tokens)\n",
		res.LastAgent.Name(), res.Turns, res.Usage.Requests, res.Usage.TotalTokens)
}

// describeError adds the guardrail verdict to tripwire failures.
func describeError(err error) error {
	kind, ok := core.KindOf(err)
	if !ok {
		return err
	}
	switch kind {
	case core.KindInputGuardrailTripped, core.KindOutputGuardrailTripped:
		return fmt.Errorf("guardrail tripped: %w", err)
	case core.KindMaxTurnsExceeded:
		return fmt.Errorf("%w (raise --max-turns to allow longer runs)", err)
	}
	return err
}
