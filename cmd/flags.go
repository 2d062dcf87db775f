package main

import (
	"github.com/spf13/cobra"
)

// Flags override config values only when set on the command line.

func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

func float64Flag(cmd *cobra.Command, name string, fallback float64) float64 {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return v
}

func intFlag(cmd *cobra.Command, name string, fallback int) int {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func uint64Flag(cmd *cobra.Command, name string, fallback uint64) uint64 {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetUint64(name)
	return v
}

func boolFlag(cmd *cobra.Command, name string, fallback bool) bool {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// dataPath resolves a path flag, falling back to the configured file name,
// against the data directory.
func dataPath(cmd *cobra.Command, name, fallback string) string {
	return cfg.Data.Path(stringFlag(cmd, name, fallback))
}
