// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"fmt"

	"github.com/spf13/cobra"
)

// OutputFlags holds the --format/--color/-v flags shared by unrepair's
// subcommands (spec.md §6); factored out once and attached to each command,
// the way the teacher centralizes cross-cutting cobra concerns here.
type OutputFlags struct {
	Format  string
	Color   string
	Verbose bool
}

// Register attaches the shared output flags to cmd.
func (f *OutputFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Format, "format", "text", `output format: "text" or "json"`)
	cmd.Flags().StringVar(&f.Color, "color", "auto", `color mode: "auto", "always", or "never"`)
	cmd.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "include Info-severity diagnostics")
}

// Validate checks that Format/Color hold one of their allowed values.
func (f *OutputFlags) Validate() error {
	switch f.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid --format %q: must be \"text\" or \"json\"", f.Format)
	}
	switch f.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid --color %q: must be \"auto\", \"always\", or \"never\"", f.Color)
	}
	return nil
}

// ResolveColor turns the --color flag into a concrete on/off decision,
// consulting IsStderrTerminal for "auto".
func (f *OutputFlags) ResolveColor() bool {
	switch f.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return IsStderrTerminal()
	}
}
