// Package config resolves service configuration in three layers:
// compiled defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"manualqa/types"
)

// Duration parses YAML scalars like "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	ServerAddr  string `yaml:"server_addr"`
	DatabaseURL string `yaml:"database_url"`
	StoreDriver string `yaml:"store_driver"`
	Metric      string `yaml:"metric"`
	LogLevel    string `yaml:"log_level"`

	Embed  EmbedConfig  `yaml:"embed"`
	Index  IndexConfig  `yaml:"index"`
	Search SearchConfig `yaml:"search"`
	Chunk  ChunkConfig  `yaml:"chunk"`
}

type EmbedConfig struct {
	Provider    string   `yaml:"provider"`
	Dim         int      `yaml:"dim"`
	Timeout     Duration `yaml:"timeout"`
	OllamaURL   string   `yaml:"ollama_url"`
	OllamaModel string   `yaml:"ollama_model"`
	OpenAIKey   string   `yaml:"-"`
	OpenAIModel string   `yaml:"openai_model"`
}

type IndexConfig struct {
	Lists           int      `yaml:"lists"`
	Probes          int      `yaml:"probes"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	Seed            int64    `yaml:"seed"`
}

type SearchConfig struct {
	Timeout         Duration `yaml:"timeout"`
	PreviewMaxChars int      `yaml:"preview_max_chars"`
}

type ChunkConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	MaxChars  int `yaml:"max_chars"`
}

func Default() Config {
	return Config{
		ServerAddr:  ":8080",
		StoreDriver: "postgres",
		Metric:      string(types.MetricL2),
		LogLevel:    "info",
		Embed: EmbedConfig{
			Provider:    "hash",
			Dim:         1536,
			Timeout:     Duration(30 * time.Second),
			OllamaModel: "nomic-embed-text",
			OpenAIModel: "text-embedding-3-small",
		},
		Index: IndexConfig{
			Lists:           100,
			Probes:          4,
			RefreshInterval: Duration(time.Minute),
			Seed:            1,
		},
		Search: SearchConfig{
			Timeout:         Duration(10 * time.Second),
			PreviewMaxChars: 300,
		},
		Chunk: ChunkConfig{
			MaxTokens: 480,
			MaxChars:  2000,
		},
	}
}

// Load resolves the configuration. path may be empty: then CONFIG_PATH
// is consulted, then ./config.yaml if present, then defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = envOr("SERVER_ADDR", c.ServerAddr)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.StoreDriver = envOr("STORE_DRIVER", c.StoreDriver)
	c.Metric = envOr("METRIC", c.Metric)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	c.Embed.Provider = envOr("EMBED_PROVIDER", c.Embed.Provider)
	c.Embed.Dim = envInt("EMBED_DIM", c.Embed.Dim)
	c.Embed.Timeout = envDuration("EMBED_TIMEOUT", c.Embed.Timeout)
	c.Embed.OllamaURL = envOr("OLLAMA_EMBEDDING_URL", c.Embed.OllamaURL)
	c.Embed.OllamaModel = envOr("OLLAMA_EMBEDDING_MODEL", c.Embed.OllamaModel)
	c.Embed.OpenAIKey = envOr("OPENAI_API_KEY", c.Embed.OpenAIKey)
	c.Embed.OpenAIModel = envOr("OPENAI_EMBEDDING_MODEL", c.Embed.OpenAIModel)

	c.Index.Lists = envInt("INDEX_LISTS", c.Index.Lists)
	c.Index.Probes = envInt("INDEX_PROBES", c.Index.Probes)
	c.Index.RefreshInterval = envDuration("INDEX_REFRESH_INTERVAL", c.Index.RefreshInterval)

	c.Search.Timeout = envDuration("SEARCH_TIMEOUT", c.Search.Timeout)
	c.Search.PreviewMaxChars = envInt("PREVIEW_MAX_CHARS", c.Search.PreviewMaxChars)

	c.Chunk.MaxTokens = envInt("CHUNK_MAX_TOKENS", c.Chunk.MaxTokens)
	c.Chunk.MaxChars = envInt("CHUNK_MAX_CHARS", c.Chunk.MaxChars)
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with the postgres store driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if !types.Metric(c.Metric).Valid() {
		return fmt.Errorf("unknown metric %q, want %q or %q", c.Metric, types.MetricL2, types.MetricCosine)
	}
	if c.Embed.Dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embed.Dim)
	}
	if c.Index.Lists < 1 {
		return fmt.Errorf("index lists must be >= 1, got %d", c.Index.Lists)
	}
	if c.Index.Probes < 1 {
		return fmt.Errorf("index probes must be >= 1, got %d", c.Index.Probes)
	}
	if c.Search.PreviewMaxChars < 0 {
		return fmt.Errorf("preview max chars must be >= 0, got %d", c.Search.PreviewMaxChars)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback Duration) Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return Duration(d)
}
