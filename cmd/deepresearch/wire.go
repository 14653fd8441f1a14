package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"deepresearch/internal/agent"
	"deepresearch/internal/channels"
	"deepresearch/internal/config"
	"deepresearch/internal/db"
	"deepresearch/internal/history"
	"deepresearch/internal/llm"
	"deepresearch/internal/logger"
	"deepresearch/internal/research"
	"deepresearch/internal/tools"
	"deepresearch/internal/trace"
)

// app holds everything built from the config for one command run.
type app struct {
	cfg        *config.Config
	researcher *research.Researcher
	archive    *history.Store

	closers []func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	config.LoadEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if outputMode != "" {
		cfg.Agent.OutputMode = outputMode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	shutdown, err := trace.Init(ctx, trace.Config{
		Endpoint: cfg.Trace.Endpoint,
		URLPath:  cfg.Trace.URLPath,
		APIKey:   cfg.Trace.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if cfg.DB.Path != "" {
		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return database.Close() })
		if err := database.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		a.archive = history.NewStore(database)
	}

	registry, err := buildTools(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	runtime, err := buildRuntime(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	mode, _ := cfg.OutputMode()
	a.researcher, err = research.New(research.Config{
		Runtime:      runtime,
		Tools:        registry,
		Mode:         mode,
		HistoryTurns: cfg.Agent.HistoryTurns,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	slog.Info("deepresearch ready",
		"runtime", cfg.Agent.Runtime,
		"mode", mode.String(),
		"model", cfg.LLM().Model,
		"tools", registry.Names(),
		"archive", a.archive != nil,
	)
	return a, nil
}

func buildTools(cfg *config.Config) (*agent.Registry, error) {
	search, err := tools.NewSearch(cfg.Tools.BraveAPIKey, cfg.Tools.SearchResults, cfg.Tools.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("building search tool: %w", err)
	}
	slog.Debug("search backend selected", "backend", search.Backend())

	registry := agent.NewRegistry(
		search,
		tools.NewWiki(cfg.Tools.WikiLanguage, cfg.Tools.UserAgent),
		tools.NewSave(cfg.Tools.SavePath),
	)
	return registry.Scope(cfg.Agent.Tools), nil
}

func buildRuntime(cfg *config.Config) (agent.Runtime, error) {
	lc := cfg.LLM()
	settings := llm.Settings{Model: lc.Model, BaseURL: lc.BaseURL, APIKey: lc.APIKey}

	switch cfg.Agent.Runtime {
	case config.RuntimeLangChain:
		model, err := llm.NewLangChainModel(settings, lc.Timeout.Duration)
		if err != nil {
			return nil, err
		}
		return agent.NewLangChainRunner(model, cfg.Agent.MaxIterations), nil
	default:
		provider := llm.NewOpenAI(settings, lc.Timeout.Duration)
		return agent.NewReactRunner(provider, agent.WithMaxIterations(cfg.Agent.MaxIterations)), nil
	}
}

func (a *app) sessionOptions() []research.Option {
	if a.archive == nil {
		return nil
	}
	return []research.Option{research.WithArchive(a.archive)}
}

func (a *app) channels() []channels.Channel {
	var chs []channels.Channel
	for name, ch := range a.cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch ch.Type {
		case "telegram":
			var allowedUsers []int64
			if v, ok := ch.Settings["allowed_users"]; ok {
				for _, s := range strings.Split(v, ",") {
					if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
						allowedUsers = append(allowedUsers, id)
					}
				}
			}
			var archive research.Archive
			if a.archive != nil {
				archive = a.archive
			}
			chs = append(chs, channels.NewTelegram(ch.Settings["bot_token"], allowedUsers, a.researcher, archive))
			slog.Info("channel registered", "name", name, "type", ch.Type)
		default:
			slog.Warn("unknown channel type", "name", name, "type", ch.Type)
		}
	}
	return chs
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](context.Background()); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}
