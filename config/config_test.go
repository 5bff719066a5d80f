package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load consults so ambient shell state
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "SERVER_ADDR", "DATABASE_URL", "STORE_DRIVER",
		"METRIC", "LOG_LEVEL", "EMBED_PROVIDER", "EMBED_DIM", "EMBED_TIMEOUT",
		"OLLAMA_EMBEDDING_URL", "OLLAMA_EMBEDDING_MODEL",
		"OPENAI_API_KEY", "OPENAI_EMBEDDING_MODEL",
		"INDEX_LISTS", "INDEX_PROBES", "INDEX_REFRESH_INTERVAL",
		"SEARCH_TIMEOUT", "PREVIEW_MAX_CHARS",
		"CHUNK_MAX_TOKENS", "CHUNK_MAX_CHARS",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "l2", cfg.Metric)
	assert.Equal(t, "hash", cfg.Embed.Provider)
	assert.Equal(t, 1536, cfg.Embed.Dim)
	assert.Equal(t, 100, cfg.Index.Lists)
	assert.Equal(t, 4, cfg.Index.Probes)
	assert.Equal(t, time.Minute, cfg.Index.RefreshInterval.Std())
	assert.Equal(t, 300, cfg.Search.PreviewMaxChars)
	assert.Equal(t, 2000, cfg.Chunk.MaxChars)
}

func TestLoadPostgresNeedsDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadMemoryDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, ":8080", cfg.ServerAddr)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server_addr: ":9090"
store_driver: memory
metric: cosine
log_level: debug
embed:
  dim: 64
  timeout: 90s
index:
  lists: 8
  probes: 2
  refresh_interval: 5m
search:
  timeout: 2s
  preview_max_chars: 200
chunk:
  max_tokens: 100
  max_chars: 800
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, 64, cfg.Embed.Dim)
	assert.Equal(t, 90*time.Second, cfg.Embed.Timeout.Std())
	assert.Equal(t, 8, cfg.Index.Lists)
	assert.Equal(t, 5*time.Minute, cfg.Index.RefreshInterval.Std())
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout.Std())
	assert.Equal(t, 200, cfg.Search.PreviewMaxChars)
	assert.Equal(t, 100, cfg.Chunk.MaxTokens)
	// Keys the file omits keep their defaults.
	assert.Equal(t, "hash", cfg.Embed.Provider)
	assert.Equal(t, 2, cfg.Index.Probes)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server_addr: \":9090\"\nstore_driver: memory\n")
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("EMBED_DIM", "256")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddr)
	assert.Equal(t, 256, cfg.Embed.Dim)
}

func TestConfigPathEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server_addr: \":9191\"\nstore_driver: memory\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.ServerAddr)
}

func TestBadEnvValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EMBED_DIM", "not-a-number")
	t.Setenv("SEARCH_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1536, cfg.Embed.Dim)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout.Std())
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "store_driver: [broken", "parse config"},
		{"bad duration", "store_driver: memory\nembed:\n  timeout: fast\n", "invalid duration"},
		{"unknown driver", "store_driver: bolt\n", "unknown store driver"},
		{"unknown metric", "store_driver: memory\nmetric: manhattan\n", "unknown metric"},
		{"bad dim", "store_driver: memory\nembed:\n  dim: -5\n", "dimension must be positive"},
		{"bad lists", "store_driver: memory\nindex:\n  lists: 0\n", "lists must be >= 1"},
		{"bad preview", "store_driver: memory\nsearch:\n  preview_max_chars: -1\n", "preview max chars"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), "level %q", in)
	}
}
