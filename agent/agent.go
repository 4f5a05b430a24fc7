package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/util"
	"github.com/hupe1980/reactmesh/logging"
	"github.com/hupe1980/reactmesh/memory"
	"github.com/hupe1980/reactmesh/model"
	"github.com/hupe1980/reactmesh/parser"
	"github.com/hupe1980/reactmesh/prompt"
	"github.com/hupe1980/reactmesh/tool"
)

// Defaults applied by New.
const (
	DefaultMaxIterations   = 10
	DefaultMaxParseRetries = 1
	DefaultProviderRetries = 3
	DefaultProviderBackoff = 500 * time.Millisecond
	DefaultMemoryLimit     = 5
)

var (
	// ErrNoModel is returned by New when no model is given.
	ErrNoModel = errors.New("agent requires a model")
	// ErrNoName is returned by New when the name is empty.
	ErrNoName = errors.New("agent requires a name")
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Description is shown to a parent agent when this agent is used as a tool.
	Description string
	// Strategy selects the prompting strategy (default ReAct).
	Strategy Strategy
	// Tools available to every run.
	Tools []tool.Tool
	// SystemPrompt is agent-specific text rendered at the top of the system prompt.
	SystemPrompt string
	// Template overrides the strategy's default system prompt template.
	Template prompt.Template
	// TerminationMarker introduces the final answer (default "FINAL ANSWER:").
	TerminationMarker string
	// MaxIterations bounds the number of executed Actions per run.
	MaxIterations int
	// MaxModelCalls bounds model calls per run; zero means 3 x MaxIterations.
	MaxModelCalls int
	// MaxParseRetries bounds corrective re-prompts per run; zero disables them.
	MaxParseRetries int
	// ToolTimeout bounds each tool call; zero or negative disables the bound.
	ToolTimeout time.Duration
	// ProviderRetries is the number of retries after a failed model call.
	ProviderRetries int
	// ProviderBackoff is the initial retry interval; it doubles per attempt.
	ProviderBackoff time.Duration
	// ProviderMaxBackoff caps the retry interval.
	ProviderMaxBackoff time.Duration
	// Temperature and MaxTokens are forwarded to the model when set.
	Temperature *float64
	MaxTokens   int64
	// Stream requests incremental generation from the model.
	Stream bool
	// Memory is consulted once before the first model call.
	Memory memory.Retriever
	// MemoryLimit bounds the number of retrieved messages.
	MemoryLimit int
	// OutputSchema constrains the JSON document of the json and planner
	// strategies. The planner strategy defaults to PlannerSchema.
	OutputSchema map[string]any
	Observer    core.Observer
	Logger      logging.Logger
}

// Input is the per-run input of an agent.
type Input struct {
	// Instruction is the task, sent as the last seed message.
	Instruction string
	// Context messages are placed between the system prompt and the instruction.
	Context []core.Message
	// Tools extend the agent's registry for this run only.
	Tools []tool.Tool
}

// Agent is one execution loop bound to a model, a tool set and a strategy.
// An Agent is immutable after construction; concurrent Runs are independent.
type Agent struct {
	name       string
	model      model.Model
	registry   *tool.Registry
	parser     *parser.Parser
	template   prompt.Template
	schema     *jsonschema.Resolved
	schemaText string
	opts       Options
	logger     logging.Logger
	observer   core.Observer
}

// New creates an agent.
//
// Default configuration:
//   - ReAct strategy with the default prompt template
//   - Termination marker "FINAL ANSWER:"
//   - 10 iterations, 30 model calls, 1 corrective retry
//   - 30-second tool timeout
//   - 3 provider retries starting at 500ms
func New(name string, m model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, ErrNoName
	}

	if m == nil {
		return nil, ErrNoModel
	}

	opts := Options{
		Strategy:           StrategyReAct,
		TerminationMarker:  parser.DefaultTerminationMarker,
		MaxIterations:      DefaultMaxIterations,
		MaxParseRetries:    DefaultMaxParseRetries,
		ToolTimeout:        tool.DefaultTimeout,
		ProviderRetries:    DefaultProviderRetries,
		ProviderBackoff:    DefaultProviderBackoff,
		ProviderMaxBackoff: 10 * time.Second,
		MemoryLimit:        DefaultMemoryLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations < 1 {
		return nil, fmt.Errorf("agent %q: max iterations must be at least 1", name)
	}

	if opts.MaxParseRetries < 0 || opts.ProviderRetries < 0 {
		return nil, fmt.Errorf("agent %q: retry counts must not be negative", name)
	}

	if opts.MaxModelCalls <= 0 {
		opts.MaxModelCalls = 3 * opts.MaxIterations
	}

	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}

	opts.Strategy = strategy

	registry, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}

	if opts.Template == nil {
		opts.Template = strategy.template()
	}

	if opts.OutputSchema == nil && strategy == StrategyPlanner {
		opts.OutputSchema = PlannerSchema()
	}

	var (
		schema     *jsonschema.Resolved
		schemaText string
	)

	if opts.OutputSchema != nil {
		if schema, err = util.CompileSchema(opts.OutputSchema); err != nil {
			return nil, fmt.Errorf("agent %q: compile output schema: %w", name, err)
		}

		data, err := json.MarshalIndent(opts.OutputSchema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("agent %q: encode output schema: %w", name, err)
		}

		schemaText = string(data)
	}

	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Agent %s", name)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Observer == nil {
		opts.Observer = core.NoOpObserver{}
	}

	return &Agent{
		name:       name,
		model:      m,
		registry:   registry,
		parser:     parser.New(func(o *parser.Options) { o.TerminationMarker = opts.TerminationMarker }),
		template:   opts.Template,
		schema:     schema,
		schemaText: schemaText,
		opts:       opts,
		logger:     opts.Logger,
		observer:   opts.Observer,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent description.
func (a *Agent) Description() string { return a.opts.Description }

// Strategy returns the configured strategy.
func (a *Agent) Strategy() Strategy { return a.opts.Strategy }

// Registry returns the agent's base tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Model returns the model-generation collaborator.
func (a *Agent) Model() model.Model { return a.model }

// Run executes one run for in. It always returns a result with a terminal
// status; fatal errors are reported in AgentResult.Err.
func (a *Agent) Run(ctx context.Context, in Input) *core.AgentResult {
	r, err := a.start(ctx, core.NewConversation(), in)
	if err != nil {
		return r.finish(r.ctx, outcome{status: core.StatusFailed, err: err})
	}

	r.conv.Append(core.NewUserMessage(in.Instruction))

	if a.opts.Strategy.Iterative() {
		return r.finish(r.ctx, r.loop(r.ctx))
	}

	return r.finish(r.ctx, r.respond(r.ctx))
}
