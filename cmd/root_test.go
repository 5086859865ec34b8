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

	expected := []string{"serve", "migrate", "ingest", "suggestions", "decide", "apply", "rollback", "stats", "rules", "expire", "changes"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "studio-suggest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestSuggestionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range suggestionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "preview", "changes"} {
		assert.True(t, names[name], "suggestions should have subcommand %q", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = serveCmd.Flags().Lookup("expire-interval")
	require.NotNil(t, flag)
	assert.Equal(t, "1h0m0s", flag.DefValue)
}

func TestDecideCommand_Flags(t *testing.T) {
	for _, name := range []string{"approve", "reject", "reviewer", "notes", "correct-to", "correct-type"} {
		assert.NotNil(t, decideCmd.Flags().Lookup(name), "decide should have --%s flag", name)
	}
}

func TestApplyCommand_Flags(t *testing.T) {
	flag := applyCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
	assert.NotNil(t, applyCmd.Flags().Lookup("all-approved"))
}

func TestMigrateCommand_Flags(t *testing.T) {
	flag := migrateCmd.Flags().Lookup("business-tables")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestChangesExportCommand_Flags(t *testing.T) {
	for _, name := range []string{"out", "format", "table", "suggestion", "since", "limit"} {
		assert.NotNil(t, changesExportCmd.Flags().Lookup(name), "changes export should have --%s flag", name)
	}
}
