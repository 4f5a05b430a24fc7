package reactmesh

import (
	"fmt"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/config"
	"github.com/hupe1980/reactmesh/history"
	"github.com/hupe1980/reactmesh/observe"
	"github.com/hupe1980/reactmesh/tool"
	"github.com/hupe1980/reactmesh/tool/builtin"
)

// NewFromConfig builds an Orchestrator with one agent per configured agent
// declaration, all backed by the configured provider. Tool names and patterns
// resolve against the built-in tools, the file tools when tools.file_root is
// set, and extra. When caching is enabled the deterministic built-ins (math,
// text, json) are memoised.
func NewFromConfig(cfg *config.Config, extra ...tool.Tool) (*Orchestrator, error) {
	m, err := NewModel(cfg.Provider)
	if err != nil {
		return nil, err
	}

	cache, err := cfg.ToolCache()
	if err != nil {
		return nil, fmt.Errorf("tool cache: %w", err)
	}

	logger := cfg.Logger()

	o := New(func(opts *Options) {
		opts.MaxConcurrentRuns = cfg.Orchestrator.MaxConcurrentRuns
		opts.Coordinator = cfg.CoordinatorOptions()
		opts.Workflows = cfg.Workflows
		opts.MaxRounds = cfg.Coordinator.MaxRounds
		opts.Logger = logger.WithComponent("orchestrator")

		if cfg.Orchestrator.HistoryLimit > 0 {
			opts.History = history.NewInMemoryStore(cfg.Orchestrator.HistoryLimit)
		}
	})

	if cache != nil {
		o.closers = append(o.closers, cache.Close)
	}

	tools, err := toolCatalog(cfg, cache, extra)
	if err != nil {
		o.Close()
		return nil, err
	}

	if files := tools.files; files != nil {
		o.closers = append(o.closers, func() { _ = files.Close() })
	}

	observer := observe.NewLogObserver(logger)

	for _, spec := range cfg.Agents {
		selected, err := agentTools(tools.registry, &spec)
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}

		a, err := agent.New(spec.Name, m, cfg.AgentOptions(&spec), func(opts *agent.Options) {
			opts.Tools = selected
			opts.Observer = observer
			opts.Logger = logger.WithComponent("agent")
		})
		if err != nil {
			o.Close()
			return nil, err
		}

		if err := o.Register(a); err != nil {
			o.Close()
			return nil, err
		}
	}

	return o, nil
}

type catalog struct {
	registry *tool.Registry
	files    *builtin.Files
}

// toolCatalog collects the tools agents may select: the deterministic
// built-ins (memoised when a cache is given), datetime, the file tools when a
// root is configured and extra. Tools in extra replace built-ins of the same name.
func toolCatalog(cfg *config.Config, cache *tool.Cache, extra []tool.Tool) (catalog, error) {
	var deterministic []tool.Tool
	deterministic = append(deterministic, builtin.Math()...)
	deterministic = append(deterministic, builtin.Text()...)
	deterministic = append(deterministic, builtin.JSON()...)

	if cache != nil {
		for i, t := range deterministic {
			deterministic[i] = cache.Wrap(t)
		}
	}

	base, err := tool.NewRegistry(append(deterministic, builtin.DateTime(nil)...)...)
	if err != nil {
		return catalog{}, err
	}

	var files *builtin.Files

	refiner := tool.Refine(base)

	if cfg.Tools.FileRoot != "" {
		if files, err = builtin.OpenFiles(cfg.Tools.FileRoot); err != nil {
			return catalog{}, err
		}

		refiner.Add(files.Tools()...)
	}

	names := make([]string, 0, len(extra))
	for _, t := range extra {
		names = append(names, t.Name())
	}

	registry, err := refiner.Exclude(names...).Add(extra...).Build()
	if err != nil {
		if files != nil {
			_ = files.Close()
		}

		return catalog{}, fmt.Errorf("tool catalog: %w", err)
	}

	return catalog{registry: registry, files: files}, nil
}

// agentTools selects the catalog tools of spec: by name, or by pattern when
// one is set, minus the excluded ones.
func agentTools(registry *tool.Registry, spec *config.AgentSpec) ([]tool.Tool, error) {
	refiner := tool.Refine(registry)

	if spec.ToolPattern != "" {
		refiner.IncludePattern(spec.ToolPattern)
	} else {
		refiner.Include(spec.Tools...)
	}

	selected, err := refiner.Exclude(spec.ExcludeTools...).Build()
	if err != nil {
		return nil, err
	}

	return selected.Tools(), nil
}
