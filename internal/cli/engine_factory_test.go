package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow/internal/config"
	"github.com/aretw0/orderflow/internal/logging"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const tinyStages = `entry: hello
stages:
  - id: hello
    next: [bye]
    filler: Hi.
  - id: bye
    filler: Bye.
`

const tinyRules = `keywords:
  leave: [bye, goodbye]
rules:
  - id: leave
    condition: {tag: leave}
    action: leave
    target_stage: bye
    priority: 10
`

func TestLoadGraph(t *testing.T) {
	dir := t.TempDir()
	stagesFile := writeFile(t, dir, "stages.yaml", tinyStages)

	loamDir := t.TempDir()
	writeFile(t, loamDir, "hello.md", "---\nentry: true\nnext: [bye]\n---\nSay hello.")
	writeFile(t, loamDir, "bye.md", "---\nfiller: Bye.\n---\nSay bye.")

	tests := []struct {
		name      string
		cfg       config.Config
		wantEntry string
		wantErr   string
	}{
		{name: "built-in", cfg: config.Default(), wantEntry: "greeting"},
		{name: "yaml file", cfg: config.Config{StagesFile: stagesFile}, wantEntry: "hello"},
		{name: "loam dir", cfg: config.Config{StagesDir: loamDir}, wantEntry: "hello"},
		{name: "entry override", cfg: config.Config{StagesFile: stagesFile, EntryStage: "bye"}, wantEntry: "bye"},
		{name: "unknown entry", cfg: config.Config{EntryStage: "nowhere"}, wantErr: "nowhere"},
		{name: "missing file", cfg: config.Config{StagesFile: filepath.Join(dir, "none.yaml")}, wantErr: "none.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := LoadGraph(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEntry, g.Entry())
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StagesFile = writeFile(t, dir, "stages.yaml", tinyStages)

	_, err := Validate(context.Background(), cfg)
	assert.ErrorContains(t, err, "rules", "built-in rules target stages the tiny graph lacks")

	cfg.RulesFile = writeFile(t, dir, "rules.yaml", tinyRules)
	g, err := Validate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "bye"}, g.IDs())
}

func TestBuildEngine(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StagesFile = writeFile(t, dir, "stages.yaml", tinyStages)
	cfg.RulesFile = writeFile(t, dir, "rules.yaml", tinyRules)
	cfg.Backend.Script = writeFile(t, dir, "script.yaml", "entries:\n  - reply: 'Sure thing.'\n")

	rt, err := BuildEngine(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	_, err = rt.Engine.Start(ctx, "s1")
	require.NoError(t, err)
	res, err := rt.Engine.Send(ctx, "s1", "goodbye then")
	require.NoError(t, err)
	assert.Equal(t, "bye", res.Stage)
	assert.NotNil(t, rt.Catalog)
}

func TestBuildEngine_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.LockTTL = time.Second

	rt, err := BuildEngine(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)

	_, err = rt.Engine.Send(context.Background(), "s1", "Place an order")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys(), "the lock is released after the turn")
	require.NoError(t, rt.Close())

	cfg.Redis.Addr = "127.0.0.1:1"
	_, err = BuildEngine(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "redis")
}

func TestExportStages(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stages")

	n, err := ExportStages(ctx, config.Default(), dir)
	require.NoError(t, err)

	g, err := LoadGraph(ctx, config.Config{StagesDir: dir})
	require.NoError(t, err)
	assert.Equal(t, n, len(g.IDs()))
	assert.Equal(t, "greeting", g.Entry())

	_, err = Validate(ctx, config.Config{StagesDir: dir, LogLevel: "info", MaxInputSize: 1})
	assert.NoError(t, err, "an exported repository validates against the built-in rules")
}
