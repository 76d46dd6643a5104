package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
concurrency: 8
max_attempts: 2
state_dir: "./state"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	cfg, _, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, "./state", cfg.StateDir)
	// Unset fields picked up defaults
	assert.NotZero(t, cfg.FetchTimeout)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, _, err := loadConfig("")

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.NotEmpty(t, cfg.UserAgents)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, _, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, _, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate_Valid(t *testing.T) {
	content := `
concurrency: 10
max_attempts: 3
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK:")
	assert.Contains(t, stdout.String(), "concurrency=10")
}

func TestDoValidate_WarnsOnDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("concurrency: 0\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN:")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	assert.Contains(t, out, "process")
	assert.Contains(t, out, "resolve")
	assert.Contains(t, out, "fetch")
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "mcp-server")
	assert.Contains(t, out, "version")
}
