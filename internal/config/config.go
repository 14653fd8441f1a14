package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deepresearch/internal/extract"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	RuntimeReact     = "react"
	RuntimeLangChain = "langchain"
)

type Config struct {
	DefaultLLM string                    `toml:"default_llm"`
	LogLevel   string                    `toml:"log_level"`
	LLMs       map[string]*LLMConfig     `toml:"llm"`
	Agent      AgentConfig               `toml:"agent"`
	Tools      ToolsConfig               `toml:"tools"`
	Gateway    GatewayConfig             `toml:"gateway"`
	Channels   map[string]*ChannelConfig `toml:"channel"`
	DB         DBConfig                  `toml:"db"`
	Trace      TraceConfig               `toml:"trace"`
}

type LLMConfig struct {
	Model   string   `toml:"model"`
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout Duration `toml:"timeout"`
}

type AgentConfig struct {
	Runtime       string `toml:"runtime"`
	OutputMode    string `toml:"output_mode"`
	MaxIterations int    `toml:"max_iterations"`
	HistoryTurns  int    `toml:"history_turns"`
	Verbose       bool   `toml:"verbose"`
	// Tools limits the agent to the named tools. Empty allows all.
	Tools []string `toml:"tools"`
}

type ToolsConfig struct {
	BraveAPIKey   string `toml:"brave_api_key"`
	SearchResults int    `toml:"search_results"`
	WikiLanguage  string `toml:"wiki_language"`
	UserAgent     string `toml:"user_agent"`
	SavePath      string `toml:"save_path"`
}

// GatewayConfig configures the HTTP server. Sessions idle longer than
// SessionIdle are dropped, and at most MaxSessions are kept live.
type GatewayConfig struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	MaxSessions int      `toml:"max_sessions"`
	SessionIdle Duration `toml:"session_idle"`
}

type ChannelConfig struct {
	Enabled  bool              `toml:"enabled"`
	Type     string            `toml:"type"`
	Settings map[string]string `toml:"settings"`
}

// DBConfig locates the transcript archive. An empty path disables it.
type DBConfig struct {
	Path string `toml:"path"`
}

// TraceConfig configures OTLP export. An empty endpoint disables tracing.
type TraceConfig struct {
	Endpoint string `toml:"endpoint"`
	URLPath  string `toml:"url_path"`
	APIKey   string `toml:"api_key"`
}

// Duration is a time.Duration written as "90s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		DefaultLLM: "openai",
		LogLevel:   "info",
		LLMs: map[string]*LLMConfig{
			"openai": {
				Model:   "gpt-4o-mini",
				BaseURL: "https://api.openai.com/v1",
				Timeout: Duration{2 * time.Minute},
			},
		},
		Agent: AgentConfig{
			Runtime:       RuntimeReact,
			OutputMode:    extract.Delimited.String(),
			MaxIterations: 10,
		},
		Tools: ToolsConfig{
			SearchResults: 5,
			WikiLanguage:  "en",
			UserAgent:     "deepresearch/1.0",
			SavePath:      "research_output.txt",
		},
		Gateway: GatewayConfig{
			Addr:        ":8484",
			MaxSessions: 1000,
			SessionIdle: Duration{time.Hour},
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
	}
}

// LoadEnv loads .env and then .env.<APP_ENV>, which wins on conflicts.
// Missing files are not an error.
func LoadEnv() {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}

	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("config: no .env file", "error", err)
	}
	envFile := ".env." + appEnv
	if err := godotenv.Overload(envFile); err != nil {
		slog.Debug("config: no env file", "file", envFile, "error", err)
	}
}

// Load reads the config file at path, or the default location when path is
// empty, and applies environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Path()
	}
	if _, err := os.Stat(path); err == nil {
		// The decoder replaces map entries wholesale, so LLM tables are
		// decoded apart and laid over the defaults.
		defaults := cfg.LLMs
		cfg.LLMs = nil
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		cfg.LLMs = mergeLLMs(defaults, cfg.LLMs)
		slog.Debug("config: loaded", "path", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	llm := c.LLM()
	if llm == nil {
		llm = &LLMConfig{}
		if c.LLMs == nil {
			c.LLMs = map[string]*LLMConfig{}
		}
		c.LLMs[c.DefaultLLM] = llm
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" && llm.APIKey == "" {
		llm.APIKey = v
	}
	if v := os.Getenv("DEEPRESEARCH_API_KEY"); v != "" {
		llm.APIKey = v
	}
	if v := os.Getenv("DEEPRESEARCH_MODEL"); v != "" {
		llm.Model = v
	}
	if v := os.Getenv("DEEPRESEARCH_OUTPUT_MODE"); v != "" {
		c.Agent.OutputMode = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		c.Tools.BraveAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v, err := strconv.ParseBool(os.Getenv("DEEPRESEARCH_VERBOSE")); err == nil {
		c.Agent.Verbose = v
	}
}

func mergeLLMs(base, over map[string]*LLMConfig) map[string]*LLMConfig {
	out := make(map[string]*LLMConfig, len(base)+len(over))
	for name, l := range base {
		c := *l
		out[name] = &c
	}
	for name, l := range over {
		c, ok := out[name]
		if !ok {
			c = &LLMConfig{}
			out[name] = c
		}
		if l.Model != "" {
			c.Model = l.Model
		}
		if l.BaseURL != "" {
			c.BaseURL = l.BaseURL
		}
		if l.APIKey != "" {
			c.APIKey = l.APIKey
		}
		if l.Timeout.Duration != 0 {
			c.Timeout = l.Timeout
		}
	}
	return out
}

// LLM returns the default LLM's settings, or nil if it is not configured.
func (c *Config) LLM() *LLMConfig {
	return c.LLMs[c.DefaultLLM]
}

func (c *Config) OutputMode() (extract.Mode, error) {
	return extract.ParseMode(c.Agent.OutputMode)
}

func (c *Config) Validate() error {
	llm := c.LLM()
	if llm == nil {
		return fmt.Errorf("default LLM %q not found in config", c.DefaultLLM)
	}
	if llm.Model == "" {
		return fmt.Errorf("llm.%s.model is required", c.DefaultLLM)
	}
	if _, err := c.OutputMode(); err != nil {
		return err
	}
	switch c.Agent.Runtime {
	case RuntimeReact, RuntimeLangChain:
	default:
		return fmt.Errorf("unknown agent runtime: %q", c.Agent.Runtime)
	}
	if c.Agent.MaxIterations < 0 || c.Agent.HistoryTurns < 0 {
		return errors.New("agent.max_iterations and agent.history_turns must not be negative")
	}
	if c.Gateway.MaxSessions < 0 || c.Gateway.SessionIdle.Duration < 0 {
		return errors.New("gateway.max_sessions and gateway.session_idle must not be negative")
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Path() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "deepresearch", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "deepresearch", "history.db")
}
