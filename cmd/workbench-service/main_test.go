// ABOUTME: Tests for the workbench-service subcommands that do not start servers
// ABOUTME: Covers token minting against TOML and YAML config files

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunToken(t *testing.T) {
	path := writeFile(t, "workbench.toml", `
[auth]
jwt_secret = "a-very-long-secret-for-workbench-tests"
`)
	assert.NoError(t, runToken([]string{"--config", path, "--sub", "tui", "--scope", "subscribe,publish"}))
	assert.Error(t, runToken([]string{"--config", path, "--sub", "tui", "--scope", "admin"}))
	assert.Error(t, runToken([]string{"--config", path}))
}

func TestRunToken_NoSecret(t *testing.T) {
	path := writeFile(t, "workbench.yaml", "logging:\n  level: info\n")
	err := runToken([]string{"--config", path, "--sub", "tui"})
	assert.ErrorContains(t, err, "jwt_secret")
}
