package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/arq/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults(dir)

	// Initialize output
	ui = output.New()
	var out, errOut bytes.Buffer
	ui.Out = &out
	ui.ErrOut = &errOut

	dryRun, assumeYes = false, false
	watchDetach, watchSkip = false, false
	closeApp()
	t.Cleanup(closeApp)

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "arq configuration")
	assert.Contains(t, string(data), "backend:")
	assert.Contains(t, string(data), "concurrency: 4")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "arq configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSettingSource(t *testing.T) {
	testEnv(t)
	url := settings[2]
	require.Equal(t, "backend.url", url.key)
	assert.Equal(t, "ARQ_BACKEND_URL", url.envVar())

	var file yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("backend:\n  url: http://remote:5000\n"), &file))

	assert.Equal(t, "default", url.source(nil))
	assert.Equal(t, "file", url.source(file.Content[0]))
	assert.Equal(t, "default", settings[4].source(file.Content[0]))

	t.Setenv("ARQ_BACKEND_URL", "http://env:5000")
	assert.Equal(t, "env: ARQ_BACKEND_URL", url.source(file.Content[0]))
}

func TestConfigInit_RoundTripsThroughViper(t *testing.T) {
	dir := testEnv(t)
	viper.Set("backend.url", "http://analysis.internal:8080")
	viper.Set("upload.concurrency", 2)
	require.NoError(t, configInitRun())

	viper.Reset()
	setDefaults(dir)
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, "http://analysis.internal:8080", viper.GetString("backend.url"))
	assert.Equal(t, 2, viper.GetInt("upload.concurrency"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("notify.duration"))
	assert.False(t, viper.InConfig("state_dir"))
}

func TestConfigShow_ReportsSources(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("upload:\n  concurrency: 8\n"), 0o644))
	t.Setenv("ARQ_ASSUME_YES", "true")

	require.NoError(t, configShowRun())

	lines := map[string]string{}
	for _, line := range strings.Split(stdout(), "\n") {
		for _, s := range settings {
			if strings.Contains(line, s.key) {
				lines[s.key] = line
			}
		}
	}
	assert.Contains(t, lines["upload.concurrency"], "file")
	assert.Contains(t, lines["assume_yes"], "env: ARQ_ASSUME_YES")
	assert.Contains(t, lines["backend.url"], "default")
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
