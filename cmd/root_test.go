package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInitCmd = "init"

func TestRootCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := rootCmd

	if cmd.Use != "tcfleet" {
		t.Errorf("Expected command use 'tcfleet', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Expected command short description to be set")
	}

	if cmd.Long == "" {
		t.Error("Expected command long description to be set")
	}

	if cmd.Version == "" {
		t.Error("Expected command version to be set")
	}

	if cmd.PersistentPreRunE == nil {
		t.Error("Expected PersistentPreRunE to be set")
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	t.Parallel()

	flags := rootCmd.PersistentFlags()

	configFlag := flags.Lookup("config")
	if configFlag == nil {
		t.Fatal("Expected 'config' flag to be defined")
	}
	if configFlag.DefValue != "" {
		t.Errorf("Expected 'config' flag default to be empty, got '%s'", configFlag.DefValue)
	}
	if !strings.Contains(configFlag.Usage, "tcfleet.yaml") {
		t.Errorf("Expected config flag usage to mention 'tcfleet.yaml', got '%s'", configFlag.Usage)
	}

	verboseFlag := flags.Lookup("verbose")
	if verboseFlag == nil {
		t.Fatal("Expected 'verbose' flag to be defined")
	}
	if verboseFlag.DefValue != "false" {
		t.Errorf("Expected 'verbose' flag default to be 'false', got '%s'", verboseFlag.DefValue)
	}
	if verboseFlag.Shorthand != "v" {
		t.Errorf("Expected 'verbose' flag shorthand to be 'v', got '%s'", verboseFlag.Shorthand)
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	var buf bytes.Buffer

	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--help"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())

	output := buf.String()
	for _, expected := range []string{
		"tcfleet",
		"integration",
		"Shoutrrr",
		"testcontainers-go",
		"--config",
		"--verbose",
	} {
		assert.Contains(t, output, expected)
	}
}

func TestRootCmd_VersionOutput(t *testing.T) {
	var buf bytes.Buffer

	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "tcfleet")
}

func TestRootCmd_SubcommandsList(t *testing.T) {
	t.Parallel()

	found := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		found[sub.Name()] = true
	}

	for _, expected := range []string{"init", "config", "up", "run", "down", "status"} {
		if !found[expected] {
			t.Errorf("Expected subcommand '%s' to be registered", expected)
		}
	}
}

func TestGetConfig(t *testing.T) {
	originalCfg := cfg
	defer func() { cfg = originalCfg }()

	cfg = nil
	assert.Nil(t, GetConfig())

	testCfg := testConfig(t)
	cfg = testCfg
	assert.Same(t, testCfg, GetConfig())
}

func TestRootCmd_PersistentPreRunE_SkipConfigForInit(t *testing.T) {
	originalCfg, originalErr, originalCfgFile := cfg, errConfigLoad, cfgFile
	defer func() { cfg, errConfigLoad, cfgFile = originalCfg, originalErr, originalCfgFile }()

	cfg, errConfigLoad = nil, nil
	cfgFile = "nonexistent.yaml"

	require.NoError(t, rootCmd.PersistentPreRunE(&cobra.Command{Use: testInitCmd}, nil))
	assert.Nil(t, cfg, "init does not load configuration")
	assert.NoError(t, errConfigLoad)
}

func TestRootCmd_PersistentPreRunE_LoadConfig(t *testing.T) {
	originalCfg, originalErr, originalCfgFile := cfg, errConfigLoad, cfgFile
	defer func() { cfg, errConfigLoad, cfgFile = originalCfg, originalErr, originalCfgFile }()

	path := filepath.Join(t.TempDir(), "tcfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
containers:
  db:
    image: postgres
    tag: "16"
    ports: [5432]
`), 0o600))
	cfgFile = path

	require.NoError(t, rootCmd.PersistentPreRunE(&cobra.Command{Use: "up"}, nil))
	require.NoError(t, GetConfigLoadError())
	require.NotNil(t, GetConfig())
	assert.Equal(t, path, GetConfig().ConfigFilePath)
	require.Len(t, GetConfig().Containers, 1)
	assert.Equal(t, "db", GetConfig().Containers[0].Key)
}

func TestRootCmd_PersistentPreRunE_StoresLoadError(t *testing.T) {
	originalCfg, originalErr, originalCfgFile := cfg, errConfigLoad, cfgFile
	defer func() { cfg, errConfigLoad, cfgFile = originalCfg, originalErr, originalCfgFile }()

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	// The error surfaces in the command that needs the configuration.
	require.NoError(t, rootCmd.PersistentPreRunE(&cobra.Command{Use: "up"}, nil))
	assert.Error(t, GetConfigLoadError())
}

func TestSetupLogging(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer

	l := setupLogging(&buf, false)
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	l.Info("fleet ready", "containers", 2)
	assert.Contains(t, buf.String(), "containers=2")

	l = setupLogging(&buf, true)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.Same(t, l, slog.Default())
}
