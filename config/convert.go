package config

import (
	"os"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/coordinator"
	"github.com/hupe1980/reactmesh/logging"
	"github.com/hupe1980/reactmesh/tool"
)

// AgentOptions applies the shared agent defaults and, when given, the
// overrides of spec.
func (c *Config) AgentOptions(spec *AgentSpec) func(o *agent.Options) {
	return func(o *agent.Options) {
		a := c.Agent

		o.Strategy = agent.Strategy(a.Strategy)
		o.TerminationMarker = a.TerminationMarker
		o.MaxIterations = a.MaxIterations
		o.MaxModelCalls = a.MaxModelCalls
		o.MaxParseRetries = a.MaxParseRetries
		o.ToolTimeout = a.ToolTimeout
		o.ProviderRetries = a.ProviderRetries
		o.ProviderBackoff = a.ProviderBackoff
		o.Stream = a.Stream
		o.MemoryLimit = a.MemoryLimit

		if c.Provider.MaxTokens > 0 {
			o.MaxTokens = c.Provider.MaxTokens
		}

		if spec == nil {
			return
		}

		if spec.Description != "" {
			o.Description = spec.Description
		}

		if spec.Strategy != "" {
			o.Strategy = agent.Strategy(spec.Strategy)
		}

		if spec.MaxIterations > 0 {
			o.MaxIterations = spec.MaxIterations
		}

		if spec.OutputSchema != nil {
			o.OutputSchema = spec.OutputSchema
		}

		o.SystemPrompt = spec.SystemPrompt
	}
}

// CoordinatorOptions converts the coordinator section.
func (c *Config) CoordinatorOptions() func(o *coordinator.Options) {
	return func(o *coordinator.Options) {
		o.FanOut = c.Coordinator.FanOut
		o.MaxDepth = c.Coordinator.MaxDepth
	}
}

// Plan converts the workflow into a coordinator plan over runners, which must
// be in workflow order. defaultRounds applies when the workflow sets no round
// bound.
func (w Workflow) Plan(runners []coordinator.Runner, defaultRounds int) (coordinator.Plan, error) {
	pattern, err := coordinator.ParsePattern(w.Pattern)
	if err != nil {
		return coordinator.Plan{}, err
	}

	rounds := w.MaxRounds
	if rounds == 0 {
		rounds = defaultRounds
	}

	tasks := make([]coordinator.Task, 0, len(w.Tasks))
	for _, t := range w.Tasks {
		tasks = append(tasks, coordinator.Task{
			ID:          t.ID,
			Description: t.Description,
			Agent:       t.Agent,
			DependsOn:   t.DependsOn,
			MaxRetries:  t.MaxRetries,
		})
	}

	return coordinator.Plan{
		Pattern:   pattern,
		Agents:    runners,
		Quorum:    w.Quorum,
		FailFast:  w.FailFast,
		MaxRounds: rounds,
		Tasks:     tasks,
	}, nil
}

// Logger builds the structured logger described by the logging section.
func (c *Config) Logger() *logging.StructuredLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(c.Logging.Level),
		Format:    c.Logging.Format,
		Output:    os.Stderr,
		Component: c.Logging.Component,
	})
}

// ToolCache builds the tool result cache, or returns nil when caching is disabled.
func (c *Config) ToolCache() (*tool.Cache, error) {
	if !c.Cache.Enabled {
		return nil, nil
	}

	return tool.NewCache(func(o *tool.CacheOptions) {
		o.MaxEntries = c.Cache.MaxEntries
		o.TTL = c.Cache.TTL
	})
}
