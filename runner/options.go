package runner

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/observability"
)

// DefaultMaxTurns bounds a run when Options.MaxTurns is not set.
const DefaultMaxTurns = 10

// GuardrailRerunPolicy decides whether input guardrails run again after a
// handoff.
type GuardrailRerunPolicy int

const (
	// RerunTargetGuardrails evaluates the target agent's own input
	// guardrails, if it declares any, against the history it receives.
	RerunTargetGuardrails GuardrailRerunPolicy = iota
	// RerunNever evaluates input guardrails only for the initial agent.
	RerunNever
)

func (p GuardrailRerunPolicy) String() string {
	switch p {
	case RerunNever:
		return "never"
	default:
		return "target"
	}
}

// ParseGuardrailRerunPolicy maps "target" and "never" to a policy.
func ParseGuardrailRerunPolicy(s string) (GuardrailRerunPolicy, bool) {
	switch s {
	case "", "target":
		return RerunTargetGuardrails, true
	case "never":
		return RerunNever, true
	}
	return RerunTargetGuardrails, false
}

// Options configure a run.
type Options struct {
	// Context is caller state made available to instructions, tools,
	// guardrails and hooks through core.RunContext.State.
	Context any
	// Hooks observes the run's lifecycle.
	Hooks RunHooks
	// MaxTurns bounds the number of model calls. Values < 1 use DefaultMaxTurns.
	MaxTurns int
	// RerunHandoffGuardrails controls input guardrails after a handoff.
	RerunHandoffGuardrails GuardrailRerunPolicy
	// ModelProvider resolves agents that name their model instead of holding one.
	ModelProvider model.Provider
	// Settings override every agent's model settings for this run.
	Settings model.Settings
	// MaxToolParallelism bounds concurrent tool calls within a turn. Values < 1 mean no limit.
	MaxToolParallelism int
	// RunID overrides the generated run identifier.
	RunID string
	// Logger receives run, turn and tool logs.
	Logger logging.Logger
	// Metrics records run telemetry. Nil disables metrics.
	Metrics *observability.Metrics
	// Tracer creates run, turn and tool spans. Nil disables tracing.
	Tracer trace.Tracer
}

func defaultOptions() Options {
	return Options{
		Hooks:    NoOpRunHooks{},
		MaxTurns: DefaultMaxTurns,
		Logger:   logging.NoOpLogger{},
	}
}

func (o *Options) normalize() {
	if o.Hooks == nil {
		o.Hooks = NoOpRunHooks{}
	}
	if o.MaxTurns < 1 {
		o.MaxTurns = DefaultMaxTurns
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	if o.RunID == "" {
		o.RunID = core.NewID()
	}
}

// Input is what a run starts from: a single user message or an existing
// item sequence.
type Input interface {
	items() []core.Item
}

type textInput string

func (t textInput) items() []core.Item { return []core.Item{core.NewUserMessage(string(t))} }

type itemsInput []core.Item

func (in itemsInput) items() []core.Item { return append([]core.Item(nil), in...) }

// Text starts a run from a single user message.
func Text(s string) Input { return textInput(s) }

// Items starts a run from an existing conversation, for example
// (*RunResult).ToInputList of a previous run plus a new user message.
func Items(items []core.Item) Input { return itemsInput(items) }
