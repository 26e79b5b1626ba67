package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TENANTKIT_STRATEGY", "schema")
	t.Setenv("TENANTKIT_URL", "postgres://env/app")
	t.Setenv("TENANTKIT_COLLECTIONS", "users")

	strategyFlag = "row-level"
	collectionsFlag = "items, orders"
	t.Cleanup(func() {
		strategyFlag = ""
		collectionsFlag = ""
	})

	cfg := resolvedConfig()
	assert.Equal(t, "row-level", cfg.Strategy)
	assert.Equal(t, "postgres://env/app", cfg.URL)
	assert.Equal(t, []string{"items", "orders"}, cfg.Collections)
	require.NoError(t, cfg.Validate())
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"create", "delete", "list", "exists", "migrate", "stats"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
