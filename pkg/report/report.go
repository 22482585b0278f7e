// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package report renders AbiCheckResult and workflow.Result as plain text
// (with optional ANSI color) or pretty-printed JSON, per spec.md §6.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dropvendor/unrepair/pkg/elf"
	"github.com/dropvendor/unrepair/pkg/workflow"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Color selects ANSI coloring behavior for the text format.
type Color string

const (
	ColorAuto   Color = "auto"
	ColorAlways Color = "always"
	ColorNever  Color = "never"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiReset  = "\x1b[0m"
)

func colorize(enabled bool, code, text string) string {
	if !enabled {
		return text
	}
	return code + text + ansiReset
}

// CheckOptions configures WriteCheck.
type CheckOptions struct {
	Format  Format
	Color   bool // pre-resolved: caller decides ColorAuto via terminal detection
	Verbose bool
}

type checkJSON struct {
	Verdict     string           `json:"verdict"`
	Diagnostics []diagnosticJSON `json:"diagnostics"`
}

type diagnosticJSON struct {
	Severity string `json:"severity"`
	Layer    string `json:"layer"`
	Symbol   string `json:"symbol,omitempty"`
	Message  string `json:"message"`
}

// WriteCheck renders an AbiCheckResult to w per the `check` subcommand's
// report formats (spec.md §6).
func WriteCheck(w io.Writer, result elf.AbiCheckResult, opts CheckOptions) error {
	if opts.Format == FormatJSON {
		out := checkJSON{Verdict: result.Verdict.String()}
		for _, d := range result.Diagnostics {
			out.Diagnostics = append(out.Diagnostics, diagnosticJSON{
				Severity: d.Severity.String(),
				Layer:    d.Layer,
				Symbol:   d.Symbol,
				Message:  d.Message,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	errs, warnings := elf.CountBySeverity(result.Diagnostics)

	for _, d := range result.Diagnostics {
		if d.Severity == elf.Info && !opts.Verbose {
			continue
		}
		if err := writeDiagnosticLine(w, d, opts.Color); err != nil {
			return err
		}
	}

	if errs > 0 || warnings > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d error(s), %d warning(s)\n", errs, warnings)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Verdict: %s\n", result.Verdict.String())
	return nil
}

func writeDiagnosticLine(w io.Writer, d elf.Diagnostic, color bool) error {
	var prefix, code string
	switch d.Severity {
	case elf.Error:
		prefix, code = "ERROR", ansiRed
	case elf.Warning:
		prefix, code = "WARN ", ansiYellow
	default:
		prefix, code = "INFO ", ansiBlue
	}

	line := fmt.Sprintf("%s (Elf)", colorize(color, code, prefix))
	if d.Symbol != "" {
		line += fmt.Sprintf(" [%s]", d.Symbol)
	}
	line += " " + d.Message
	_, err := fmt.Fprintln(w, line)
	return err
}

// WheelOptions configures WriteWheel.
type WheelOptions struct {
	Format Format
}

type wheelJSON struct {
	InputWheel                string       `json:"input_wheel"`
	OutputWheel               string       `json:"output_wheel"`
	Strict                    bool         `json:"strict"`
	HardFailure               bool         `json:"hard_failure"`
	Warnings                  []string     `json:"warnings"`
	Failures                  []string     `json:"failures"`
	Pairs                     []pairJSON   `json:"pairs"`
	RemovedBundled            []string     `json:"removed_bundled"`
	MatchedPairs              int          `json:"matched_pairs"`
	CheckedExtensions         int          `json:"checked_extensions"`
	PatchedExtensions         int          `json:"patched_extensions"`
	RemovedBundledLibs        int          `json:"removed_bundled_libs"`
	SkippedIncompatibleChecks int          `json:"skipped_incompatible_checks"`
	Result                    string       `json:"result"`
}

type pairJSON struct {
	BundledRelPath string `json:"bundled_rel_path"`
	BundledSOName  string `json:"bundled_soname"`
	SystemPath     string `json:"system_path"`
	SystemSOName   string `json:"system_soname"`
	Checked        int    `json:"checked"`
	Patched        int    `json:"patched"`
	Skipped        int    `json:"skipped"`
	Incompatible   int    `json:"incompatible"`
}

// WriteWheel renders a workflow.Result to w per the `wheel` subcommand's
// report formats (spec.md §6).
func WriteWheel(w io.Writer, result *workflow.Result, opts WheelOptions) error {
	complete := !result.HardFailure && (!result.Strict || (len(result.Failures) == 0))
	resultWord := "COMPLETE"
	if !complete {
		resultWord = "INCOMPLETE"
	}

	if opts.Format == FormatJSON {
		out := wheelJSON{
			InputWheel:                result.InputWheel,
			OutputWheel:               result.OutputWheel,
			Strict:                    result.Strict,
			HardFailure:               result.HardFailure,
			Warnings:                  result.Warnings,
			Failures:                  result.Failures,
			RemovedBundled:            result.RemovedBundled,
			MatchedPairs:              result.MatchedPairs,
			CheckedExtensions:         result.CheckedExtensions,
			PatchedExtensions:         result.PatchedExtensions,
			RemovedBundledLibs:        result.RemovedBundledLibs,
			SkippedIncompatibleChecks: result.SkippedIncompatibleChecks,
			Result:                    resultWord,
		}
		for _, p := range result.Pairs {
			out.Pairs = append(out.Pairs, pairJSON{
				BundledRelPath: p.BundledRelPath,
				BundledSOName:  p.BundledSOName,
				SystemPath:     p.SystemPath,
				SystemSOName:   p.SystemSOName,
				Checked:        p.Checked,
				Patched:        p.Patched,
				Skipped:        p.Skipped,
				Incompatible:   p.Incompatible,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	warnings := append([]string{}, result.Warnings...)
	sort.Strings(warnings)
	for _, msg := range warnings {
		fmt.Fprintf(w, "WARN  %s\n", msg)
	}
	for _, msg := range result.Failures {
		fmt.Fprintf(w, "ERROR %s\n", msg)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Wheel: %s\n", result.InputWheel)
	fmt.Fprintf(w, "Output: %s\n", result.OutputWheel)
	fmt.Fprintf(w, "Matched pairs: %d\n", result.MatchedPairs)
	fmt.Fprintf(w, "Checked extensions: %d\n", result.CheckedExtensions)
	fmt.Fprintf(w, "Patched extensions: %d\n", result.PatchedExtensions)
	fmt.Fprintf(w, "Removed bundled libs: %d\n", result.RemovedBundledLibs)
	fmt.Fprintf(w, "Skipped/incompatible checks: %d\n", result.SkippedIncompatibleChecks)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Result: %s\n", resultWord)
	return nil
}
