package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stages")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "version", args: []string{"version"}, want: "orderflow version"},
		{name: "graph", args: []string{"graph"}, want: "graph TD"},
		{name: "validate", args: []string{"validate"}, want: ">>> Graph is valid: 9 stages, entry 'greeting'."},
		{name: "export", args: []string{"export", dir}, want: "Exported 9 stages to " + dir},
		{name: "validate export", args: []string{"validate", "--dir", dir}, want: "Graph is valid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err, out)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCommands_Errors(t *testing.T) {
	_, err := run(t, "validate", "--log-level", "loud")
	assert.ErrorContains(t, err, "loud")

	_, err = run(t, "mcp", "--log-level", "info", "--dir", "", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "unknown transport"))
}
