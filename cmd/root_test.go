package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"transform", "index", "run", "status", "load", "reference", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "reflex", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, version, rootCmd.Version)
	assert.True(t, rootCmd.SilenceErrors, "main prints the error once")
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root should have --%s", name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestTransformCommand_Flags(t *testing.T) {
	for _, name := range []string{"years", "skip", "keep-intermediates", "concurrency"} {
		require.NotNil(t, transformCmd.Flags().Lookup(name), "transform should have --%s", name)
	}
}

func TestIndexCommand_Flags(t *testing.T) {
	for _, name := range []string{"years", "output", "reference", "territories", "noncontiguous", "load"} {
		require.NotNil(t, indexCmd.Flags().Lookup(name), "index should have --%s", name)
	}
	assert.Equal(t, "false", indexCmd.Flags().Lookup("territories").DefValue)
}

func TestRunCommand_HasBothStagesFlags(t *testing.T) {
	for _, name := range []string{"years", "skip", "keep-intermediates", "output", "territories"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
}

func TestLoadCommand_Flags(t *testing.T) {
	flag := loadCmd.Flags().Lookup("year")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestLoadCommand_IndexFlag(t *testing.T) {
	require.NotNil(t, loadCmd.Flags().Lookup("index"))
	require.NotNil(t, loadCmd.Flags().Lookup("output"))
}

func TestReferenceFetchCommand_Flags(t *testing.T) {
	require.NotNil(t, referenceFetchCmd.Flags().Lookup("url"))
	require.NotNil(t, referenceFetchCmd.Flags().Lookup("reference"))
	require.NotNil(t, referenceFetchCmd.Flags().Lookup("year"))
	require.NotNil(t, referenceFetchCmd.Flags().Lookup("load"))
	assert.True(t, referenceFetchCmd.HasParent())
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}
