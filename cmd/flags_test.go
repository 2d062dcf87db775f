package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labormarket/internal/config"
)

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("path", "", "")
	cmd.Flags().Float64("ratio", 0.5, "")
	cmd.Flags().Int("n", 3, "")
	cmd.Flags().Uint64("seed", 42, "")
	cmd.Flags().Bool("on", false, "")
	return cmd
}

func TestFlags_FallBackWhenUnset(t *testing.T) {
	cmd := newFlagCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Equal(t, "from-config", stringFlag(cmd, "path", "from-config"))
	assert.InDelta(t, 0.25, float64Flag(cmd, "ratio", 0.25), 1e-12)
	assert.Equal(t, 7, intFlag(cmd, "n", 7))
	assert.Equal(t, uint64(9), uint64Flag(cmd, "seed", 9))
	assert.True(t, boolFlag(cmd, "on", true))
}

func TestFlags_OverrideWhenSet(t *testing.T) {
	cmd := newFlagCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--path", "x.csv", "--ratio", "0.9", "--n", "1", "--seed", "5", "--on=false"}))

	assert.Equal(t, "x.csv", stringFlag(cmd, "path", "from-config"))
	assert.InDelta(t, 0.9, float64Flag(cmd, "ratio", 0.25), 1e-12)
	assert.Equal(t, 1, intFlag(cmd, "n", 7))
	assert.Equal(t, uint64(5), uint64Flag(cmd, "seed", 9))
	assert.False(t, boolFlag(cmd, "on", true))
}

func TestDataPath(t *testing.T) {
	cfg = &config.Config{Data: config.DataConfig{Dir: "data"}}
	cmd := newFlagCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	assert.Equal(t, filepath.Join("data", "fips.csv"), dataPath(cmd, "path", "fips.csv"))

	require.NoError(t, cmd.ParseFlags([]string{"--path", "/abs/fips.csv"}))
	assert.Equal(t, "/abs/fips.csv", dataPath(cmd, "path", "fips.csv"))
}
