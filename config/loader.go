package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reactmesh.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The file named by REACTMESH_CONFIG, or DefaultConfigFile, is optional.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("REACTMESH_CONFIG"); v != "" {
		path = v
	}

	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. A missing file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty, parseable values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Provider.Name, "REACTMESH_PROVIDER")
	setString(&cfg.Provider.Model, "REACTMESH_MODEL")
	setString(&cfg.Provider.APIKey, "REACTMESH_API_KEY")
	setFloat64(&cfg.Provider.Temperature, "REACTMESH_TEMPERATURE")
	setInt64(&cfg.Provider.MaxTokens, "REACTMESH_MAX_TOKENS")

	// Agent
	setString(&cfg.Agent.Strategy, "REACTMESH_STRATEGY")
	setString(&cfg.Agent.TerminationMarker, "REACTMESH_TERMINATION_MARKER")
	setInt(&cfg.Agent.MaxIterations, "REACTMESH_MAX_ITERATIONS")
	setInt(&cfg.Agent.MaxModelCalls, "REACTMESH_MAX_MODEL_CALLS")
	setInt(&cfg.Agent.MaxParseRetries, "REACTMESH_MAX_PARSE_RETRIES")
	setDuration(&cfg.Agent.ToolTimeout, "REACTMESH_TOOL_TIMEOUT")
	setInt(&cfg.Agent.ProviderRetries, "REACTMESH_PROVIDER_RETRIES")
	setDuration(&cfg.Agent.ProviderBackoff, "REACTMESH_PROVIDER_BACKOFF")
	setBool(&cfg.Agent.Stream, "REACTMESH_STREAM")
	setInt(&cfg.Agent.MemoryLimit, "REACTMESH_MEMORY_LIMIT")

	// Coordinator
	setInt(&cfg.Coordinator.FanOut, "REACTMESH_FAN_OUT")
	setInt(&cfg.Coordinator.MaxDepth, "REACTMESH_MAX_DEPTH")
	setInt(&cfg.Coordinator.MaxRounds, "REACTMESH_MAX_ROUNDS")
	setInt(&cfg.Orchestrator.MaxConcurrentRuns, "REACTMESH_MAX_CONCURRENT_RUNS")
	setInt(&cfg.Orchestrator.HistoryLimit, "REACTMESH_HISTORY_LIMIT")

	// Logging
	setString(&cfg.Logging.Level, "REACTMESH_LOG_LEVEL")
	setString(&cfg.Logging.Format, "REACTMESH_LOG_FORMAT")
	setString(&cfg.Logging.Component, "REACTMESH_LOG_COMPONENT")

	// Cache
	setBool(&cfg.Cache.Enabled, "REACTMESH_CACHE_ENABLED")
	setInt64(&cfg.Cache.MaxEntries, "REACTMESH_CACHE_MAX_ENTRIES")
	setDuration(&cfg.Cache.TTL, "REACTMESH_CACHE_TTL")

	// Tools
	setString(&cfg.Tools.FileRoot, "REACTMESH_FILE_ROOT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
