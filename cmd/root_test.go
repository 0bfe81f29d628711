// File: cmd/root_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	assert.Equal(t, "onboard-cli", rootCmd.Use)
	assert.Equal(t, Version, rootCmd.Version)

	run, _, err := rootCmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", run.Use)
}

func TestRunCommandFlags(t *testing.T) {
	run := newRunCmd()
	for _, name := range []string{"accounts", "output", "headless", "proxy-host", "proxy-port", "proxy-user"} {
		assert.NotNil(t, run.Flags().Lookup(name), "flag %s must exist", name)
	}
}
