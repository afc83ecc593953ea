package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/config"
	"repochat/internal/service"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestIndexCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, fmt.Sprintf("data_dir: %s\nembedder:\n  type: hashing\n", filepath.Join(dir, "data")))
	repoDir := filepath.Join(dir, "demo")
	writeFile(t, filepath.Join(repoDir, "core.py"), "class Core:\n    pass\n")
	writeFile(t, filepath.Join(repoDir, "README.md"), "Demo explains the core.\n")

	out, _, err := runRoot(t, "index", repoDir, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Repository: demo")
	assert.Contains(t, out, "(built)")
	assert.Contains(t, out, "Units:      2")

	out, _, err = runRoot(t, "index", repoDir, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(reused)")
}

func TestIndexCommand_EmptyRepositoryIsAWarning(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, fmt.Sprintf("data_dir: %s\nembedder:\n  type: hashing\n", filepath.Join(dir, "data")))
	repoDir := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))

	_, stderr, err := runRoot(t, "index", repoDir, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, service.ErrNoDocuments.Error())
}

func TestAskCommand_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, fmt.Sprintf("data_dir: %s\nembedder:\n  type: hashing\n", filepath.Join(dir, "data")))

	_, _, err := runRoot(t, "ask", dir, "what is this", "--config", cfgPath)
	assert.ErrorContains(t, err, "missing API key")
}

func TestAskCommand_MissingKeyWritesNothing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	configPath = ""
	t.Cleanup(func() { configPath = "" })

	_, _, err := runRoot(t, "ask", t.TempDir(), "what is this")
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
	assert.NoFileExists(t, filepath.Join(home, ".config", "repochat", "config.yaml"))
}
