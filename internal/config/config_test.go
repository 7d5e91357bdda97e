package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := write(t, "orderflow.yaml", `
stages_dir: ./stages
log_level: debug
backend:
  timeout: 3s
  script: ./script.yaml
redis:
  addr: localhost:6379
  lock_ttl: 1m
`)
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"ORDERFLOW_LOG_LEVEL":      "warn",
		"ORDERFLOW_HTTP_ADDR":      ":9090",
		"ORDERFLOW_MAX_INPUT_SIZE": "8192",
		"ORDERFLOW_REDIS_PREFIX":   "test:",
	}))
	require.NoError(t, err)

	assert.Equal(t, "./stages", cfg.StagesDir)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "./script.yaml", cfg.Backend.Script)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, "test:", cfg.Redis.Prefix)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 8192, cfg.MaxInputSize)
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "orderflow.json", `{"entry_stage": "menu_browsing", "otlp": {"endpoint": "localhost:4317"}}`)
	cfg, err := LoadWithEnv(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "menu_browsing", cfg.EntryStage)
	assert.Equal(t, "localhost:4317", cfg.OTLP.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout, "defaults survive")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "unknown key", file: "colour: blue\n", wantErr: "colour"},
		{name: "bad duration", env: map[string]string{"ORDERFLOW_BACKEND_TIMEOUT": "soon"}, wantErr: "decode environment"},
		{name: "bad level", env: map[string]string{"ORDERFLOW_LOG_LEVEL": "loud"}, wantErr: "unknown log level"},
		{name: "two stage sources", file: "stages_file: a.yaml\nstages_dir: b\n", wantErr: "mutually exclusive"},
		{name: "non-positive size", env: map[string]string{"ORDERFLOW_MAX_INPUT_SIZE": "0"}, wantErr: "max_input_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = write(t, "c.yaml", tt.file)
			}
			_, err := LoadWithEnv(path, env(tt.env))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorContains(t, err, "read config")
}

func TestConfig_EncodeRoundTrip(t *testing.T) {
	want := Default()
	want.StagesFile = "stages.yaml"
	want.Redis.Addr = "redis:6379"

	raw, err := want.Encode()
	require.NoError(t, err)
	got, err := LoadWithEnv(write(t, "out.yaml", string(raw)), env(nil))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
