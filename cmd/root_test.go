package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"lookup", "sync", "jobs", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "carrier-sync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestLookupCommand_Flags(t *testing.T) {
	flag := lookupCmd.Flags().Lookup("dot")
	require.NotNil(t, flag, "lookup command should have --dot flag")

	format := lookupCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "json", format.DefValue)

	save := lookupCmd.Flags().Lookup("save")
	require.NotNil(t, save)
	assert.Equal(t, "false", save.DefValue)
}

func TestSyncCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range syncCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["stale"])
	assert.True(t, names["discover"])

	require.NotNil(t, syncCmd.PersistentFlags().Lookup("limit"))
	require.NotNil(t, syncStaleCmd.Flags().Lookup("days"))
	for _, f := range []string{"ids", "file", "column", "sheet"} {
		assert.NotNil(t, syncDiscoverCmd.Flags().Lookup(f), "discover should have --%s", f)
	}
}

func TestJobsCommand_Flags(t *testing.T) {
	require.NotNil(t, jobsStatusCmd.Flags().Lookup("id"))
	require.NotNil(t, jobsStatusCmd.Flags().Lookup("failures"))

	limit := jobsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { logLevel = "" })

	logLevel = "debug"
	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "sqlite", c.Store.Driver)

	logLevel = "loud"
	_, err = loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}
