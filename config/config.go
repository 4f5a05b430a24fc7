// Package config provides hierarchical configuration loading for reactmesh.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/parser"
	"github.com/hupe1980/reactmesh/tool"
)

// Config holds the runtime configuration of an Orchestrator.
type Config struct {
	Provider     Provider     `yaml:"provider"`
	Agent        Agent        `yaml:"agent"`
	Coordinator  Coordinator  `yaml:"coordinator"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Logging      Logging      `yaml:"logging"`
	Cache        Cache        `yaml:"cache"`
	Tools        Tools        `yaml:"tools"`
	Agents       []AgentSpec  `yaml:"agents"`
	Workflows    []Workflow   `yaml:"workflows"`
}

// Provider selects the model backend.
type Provider struct {
	Name        string  `yaml:"name"`    // "openai" | "anthropic" | "mock"
	Model       string  `yaml:"model"`   // provider model id; empty uses the adapter default
	APIKey      string  `yaml:"api_key"` // empty lets the SDK read its own environment variable
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// Agent holds execution loop defaults shared by every configured agent.
type Agent struct {
	Strategy          string        `yaml:"strategy"`
	TerminationMarker string        `yaml:"termination_marker"`
	MaxIterations     int           `yaml:"max_iterations"`
	MaxModelCalls     int           `yaml:"max_model_calls"` // 0 = 3 x max_iterations
	MaxParseRetries   int           `yaml:"max_parse_retries"`
	ToolTimeout       time.Duration `yaml:"tool_timeout"`
	ProviderRetries   int           `yaml:"provider_retries"`
	ProviderBackoff   time.Duration `yaml:"provider_backoff"`
	Stream            bool          `yaml:"stream"`
	MemoryLimit       int           `yaml:"memory_limit"`
}

// Coordinator holds collaboration defaults.
type Coordinator struct {
	FanOut    int `yaml:"fan_out"` // 0 = one slot per agent
	MaxDepth  int `yaml:"max_depth"`
	MaxRounds int `yaml:"max_rounds"`
}

// Orchestrator holds façade limits.
type Orchestrator struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
	// HistoryLimit bounds the in-memory run history; 0 disables it.
	HistoryLimit int `yaml:"history_limit"`
}

// Logging holds logger configuration.
type Logging struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" | "text"
	Component string `yaml:"component"`
}

// Cache configures memoisation of deterministic tool results.
type Cache struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int64         `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// Tools configures the built-in tool catalog.
type Tools struct {
	// FileRoot enables the file, dir, json, csv and path tools, confined to
	// this directory. Empty leaves them out.
	FileRoot string `yaml:"file_root"`
}

// AgentSpec declares a named agent. Zero values inherit from Config.Agent.
type AgentSpec struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Strategy     string `yaml:"strategy"`
	SystemPrompt string `yaml:"system_prompt"`
	// Tools selects catalog tools by name.
	Tools []string `yaml:"tools"`
	// ToolPattern selects catalog tools by regular expression; it replaces Tools.
	ToolPattern string `yaml:"tool_pattern"`
	// ExcludeTools drops tools from the selection.
	ExcludeTools []string `yaml:"exclude_tools"`
	// OutputSchema constrains the answer of the json and planner strategies.
	OutputSchema  map[string]any `yaml:"output_schema"`
	MaxIterations int            `yaml:"max_iterations"`
}

// Workflow declares a named collaboration over configured agents.
type Workflow struct {
	Name      string   `yaml:"name"`
	Pattern   string   `yaml:"pattern"`
	Agents    []string `yaml:"agents"`
	Quorum    int      `yaml:"quorum"`
	FailFast  bool     `yaml:"fail_fast"`
	MaxRounds int      `yaml:"max_rounds"`
	// Tasks are the nodes of a graph workflow.
	Tasks []Task `yaml:"tasks"`
}

// Task declares one node of a graph workflow.
type Task struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Agent       string   `yaml:"agent"` // empty uses the workflow's first agent
	DependsOn   []string `yaml:"depends_on"`
	MaxRetries  int      `yaml:"max_retries"`
}

// Defaults returns a Config with sensible defaults for all fields.
func Defaults() Config {
	return Config{
		Provider: Provider{
			Name:        "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Agent: Agent{
			Strategy:          string(agent.StrategyReAct),
			TerminationMarker: parser.DefaultTerminationMarker,
			MaxIterations:     agent.DefaultMaxIterations,
			MaxParseRetries:   agent.DefaultMaxParseRetries,
			ToolTimeout:       tool.DefaultTimeout,
			ProviderRetries:   agent.DefaultProviderRetries,
			ProviderBackoff:   agent.DefaultProviderBackoff,
			MemoryLimit:       agent.DefaultMemoryLimit,
		},
		Coordinator: Coordinator{
			MaxDepth: 3,
		},
		Orchestrator: Orchestrator{
			MaxConcurrentRuns: 8,
			HistoryLimit:      1000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Cache: Cache{
			MaxEntries: 10_000,
		},
	}
}

// AgentSpec returns the named agent declaration.
func (c *Config) AgentSpec(name string) (AgentSpec, bool) {
	for _, s := range c.Agents {
		if s.Name == name {
			return s, true
		}
	}

	return AgentSpec{}, false
}

// Workflow returns the named workflow declaration.
func (c *Config) Workflow(name string) (Workflow, bool) {
	for _, w := range c.Workflows {
		if w.Name == name {
			return w, true
		}
	}

	return Workflow{}, false
}
