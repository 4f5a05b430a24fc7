package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/coordinator"
)

// Providers lists the supported provider names.
var Providers = []string{"openai", "anthropic", "mock"}

// Validate checks ranges and cross references.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(Providers, strings.ToLower(c.Provider.Name)) {
		errs = append(errs, fmt.Errorf("provider.name %q must be one of %s", c.Provider.Name, strings.Join(Providers, ", ")))
	}

	if c.Provider.MaxTokens < 0 {
		errs = append(errs, errors.New("provider.max_tokens must be >= 0"))
	}

	if _, err := agent.ParseStrategy(c.Agent.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("agent.strategy: %w", err))
	}

	if strings.TrimSpace(c.Agent.TerminationMarker) == "" {
		errs = append(errs, errors.New("agent.termination_marker is required"))
	}

	if c.Agent.MaxIterations < 1 {
		errs = append(errs, errors.New("agent.max_iterations must be >= 1"))
	}

	if c.Agent.MaxModelCalls < 0 || c.Agent.MaxParseRetries < 0 || c.Agent.ProviderRetries < 0 {
		errs = append(errs, errors.New("agent call and retry limits must be >= 0"))
	}

	if c.Coordinator.FanOut < 0 || c.Coordinator.MaxRounds < 0 {
		errs = append(errs, errors.New("coordinator.fan_out and coordinator.max_rounds must be >= 0"))
	}

	if c.Coordinator.MaxDepth < 1 {
		errs = append(errs, errors.New("coordinator.max_depth must be >= 1"))
	}

	if c.Orchestrator.MaxConcurrentRuns < 1 {
		errs = append(errs, errors.New("orchestrator.max_concurrent_runs must be >= 1"))
	}

	if c.Orchestrator.HistoryLimit < 0 {
		errs = append(errs, errors.New("orchestrator.history_limit must be >= 0"))
	}

	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}

	if c.Cache.Enabled && c.Cache.MaxEntries < 1 {
		errs = append(errs, errors.New("cache.max_entries must be >= 1"))
	}

	errs = append(errs, c.validateAgents()...)
	errs = append(errs, c.validateWorkflows()...)

	return errors.Join(errs...)
}

func (c *Config) validateAgents() []error {
	var errs []error

	seen := map[string]bool{}

	for i, s := range c.Agents {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("agents[%d].name is required", i))
			continue
		}

		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, s.Name))
		}

		seen[s.Name] = true

		if s.Strategy != "" {
			if _, err := agent.ParseStrategy(s.Strategy); err != nil {
				errs = append(errs, fmt.Errorf("agents[%d].strategy: %w", i, err))
			}
		}

		if s.MaxIterations < 0 {
			errs = append(errs, fmt.Errorf("agents[%d].max_iterations must be >= 0", i))
		}

		if s.ToolPattern != "" {
			if len(s.Tools) > 0 {
				errs = append(errs, fmt.Errorf("agents[%d]: tools and tool_pattern are mutually exclusive", i))
			}

			if _, err := regexp.Compile(s.ToolPattern); err != nil {
				errs = append(errs, fmt.Errorf("agents[%d].tool_pattern: %w", i, err))
			}
		}
	}

	return errs
}

func (c *Config) validateWorkflows() []error {
	var errs []error

	for i, w := range c.Workflows {
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("workflows[%d].name is required", i))
		}

		if _, err := coordinator.ParsePattern(w.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("workflows[%d].pattern: %w", i, err))
		}

		if len(w.Agents) == 0 {
			errs = append(errs, fmt.Errorf("workflows[%d].agents must not be empty", i))
		}

		for _, name := range w.Agents {
			if _, ok := c.AgentSpec(name); !ok {
				errs = append(errs, fmt.Errorf("workflows[%d]: unknown agent %q", i, name))
			}
		}

		if w.Quorum < 0 || w.Quorum > len(w.Agents) {
			errs = append(errs, fmt.Errorf("workflows[%d].quorum must be in 0..%d", i, len(w.Agents)))
		}

		if w.MaxRounds < 0 {
			errs = append(errs, fmt.Errorf("workflows[%d].max_rounds must be >= 0", i))
		}

		errs = append(errs, w.validateTasks(i)...)
	}

	return errs
}

// validateTasks checks the task list of workflow i. Dependency cycles are
// reported by the coordinator when the workflow runs.
func (w Workflow) validateTasks(i int) []error {
	pattern, _ := coordinator.ParsePattern(w.Pattern)

	if pattern != coordinator.PatternGraph {
		if len(w.Tasks) > 0 {
			return []error{fmt.Errorf("workflows[%d].tasks require the graph pattern", i)}
		}

		return nil
	}

	if len(w.Tasks) == 0 {
		return []error{fmt.Errorf("workflows[%d].tasks must not be empty for the graph pattern", i)}
	}

	var errs []error

	ids := map[string]bool{}

	for j, t := range w.Tasks {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("workflows[%d].tasks[%d].id is required", i, j))
		} else if ids[t.ID] {
			errs = append(errs, fmt.Errorf("workflows[%d].tasks[%d]: duplicate id %q", i, j, t.ID))
		}

		ids[t.ID] = true

		if t.Agent != "" && !slices.Contains(w.Agents, t.Agent) {
			errs = append(errs, fmt.Errorf("workflows[%d].tasks[%d]: agent %q is not part of the workflow", i, j, t.Agent))
		}

		if t.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("workflows[%d].tasks[%d].max_retries must be >= 0", i, j))
		}
	}

	for j, t := range w.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				errs = append(errs, fmt.Errorf("workflows[%d].tasks[%d]: unknown dependency %q", i, j, dep))
			}
		}
	}

	return errs
}
