package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// FunctionOptions configure a FunctionTool.
type FunctionOptions struct {
	// FaultTolerant reports execution errors to the model as the tool result
	// instead of failing the run.
	FaultTolerant bool
	// SkipValidation disables schema validation of the arguments.
	SkipValidation bool
}

// FunctionTool exposes a plain Go function as a Tool.
//
// Error semantics of Call:
//
//	*ToolError returned by fn     -> forwarded unchanged
//	validation failure            -> *ToolError{Code: VALIDATION_ERROR}
//	other error                   -> *ToolError{Code: EXECUTION_ERROR}
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	opts        FunctionOptions
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	opts := FunctionOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		opts:        opts,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct
// using json and jsonschema tags.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// NewTypedTool builds a tool whose arguments are decoded into In. The schema
// is reflected from In.
//
//	type drawArgs struct {
//	  Max int `json:"max" jsonschema:"description=Upper bound"`
//	}
//	draw := tool.NewTypedTool("random_number", "Draw a number", func(tc *core.ToolContext, in drawArgs) (int, error) {
//	  return rand.Intn(in.Max + 1), nil
//	})
func NewTypedTool[In any, Out any](
	name, description string,
	fn func(toolCtx *core.ToolContext, in In) (Out, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	var zero In
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(tc *core.ToolContext, args map[string]any) (any, error) {
		var in In
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, NewToolError(name, err.Error(), CodeArguments)
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, &ToolError{Tool: name, Message: fmt.Sprintf("decode arguments: %v", err), Code: CodeArguments, Details: err}
		}
		return fn(tc, in)
	}, optFns...)
}

// Name returns the tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// FaultTolerant implements FaultTolerant.
func (t *FunctionTool) FaultTolerant() bool { return t.opts.FaultTolerant }

// Call validates args then invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	start := time.Now()

	toolCtx.LogDebug("tool.call.start")

	if !t.opts.SkipValidation {
		if err := util.ValidateParameters(args, t.parameters); err != nil {
			toolCtx.LogWarn("tool.call.validation_failed", "error", err.Error())

			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    CodeValidation,
				Details: err,
			}
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			toolCtx.LogError("tool.call.error", "code", toolErr.Code, "error", toolErr.Message)

			return nil, toolErr
		}

		toolCtx.LogError("tool.call.error", "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	toolCtx.LogInfo("tool.call.success", "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
