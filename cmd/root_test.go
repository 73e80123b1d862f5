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

	for _, name := range []string{"brief", "status", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "research-brief", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBriefCommand_Flags(t *testing.T) {
	for _, name := range []string{"summary", "user-id", "context", "background", "json"} {
		require.NotNil(t, briefCmd.Flags().Lookup(name), "brief command should have --%s flag", name)
	}
	assert.Equal(t, "false", briefCmd.Flags().Lookup("background").DefValue)
}

func TestStatusCommand_Args(t *testing.T) {
	require.NotNil(t, statusCmd.Flags().Lookup("wait"))
	assert.Error(t, statusCmd.Args(statusCmd, nil))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"batch_1"}))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
