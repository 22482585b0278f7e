// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package elf

import (
	"fmt"
	"sort"
)

// Severity classifies a Diagnostic; only Error affects the verdict.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	default:
		return "Info"
	}
}

// Diagnostic is one finding produced by the analyzer. Order of production is
// preserved; diagnostics are value objects, not errors.
type Diagnostic struct {
	Severity Severity
	Layer    string // always "Elf"
	Symbol   string // "" if not attributable to one symbol
	Message  string
}

// Verdict is the analyzer's overall compatibility call.
type Verdict int

const (
	Compatible Verdict = iota
	Incompatible
)

func (v Verdict) String() string {
	if v == Incompatible {
		return "Incompatible"
	}
	return "Compatible"
}

// AbiCheckResult is the output of Analyze.
type AbiCheckResult struct {
	Verdict     Verdict
	Diagnostics []Diagnostic
	UsedSymbols map[string]struct{}
}

func diag(sev Severity, symbol, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: sev, Layer: "Elf", Symbol: symbol, Message: fmt.Sprintf(format, args...)}
}

// Analyze compares three ELF projections (extension, bundled, system) and
// produces a compatibility verdict with diagnostics, per spec.md §4.2's
// eight-step algorithm.
func Analyze(ext, bun, sys *Projection) AbiCheckResult {
	var diags []Diagnostic

	// Step 1: header compatibility.
	if bun.Identity != sys.Identity {
		diags = append(diags, diag(Error, "", "ELF header mismatch between bundled and system library"))
	}

	// Step 2: used-symbol set = ext.imports ∩ bun.exports.
	used := map[string]struct{}{}
	for sym := range ext.Imports {
		if _, ok := bun.Exports[sym]; ok {
			used[sym] = struct{}{}
		}
	}

	usedSorted := make([]string, 0, len(used))
	for sym := range used {
		usedSorted = append(usedSorted, sym)
	}
	sort.Strings(usedSorted)

	// Step 3: missing exports.
	for _, sym := range usedSorted {
		if _, ok := sys.Exports[sym]; !ok {
			diags = append(diags, diag(Error, sym, "Symbol %q needed by extension but not exported by system library", sym))
		}
	}

	// Step 4: symbol-type drift.
	for _, sym := range usedSorted {
		bi, bok := bun.ExportInfo[sym]
		si, sok := sys.ExportInfo[sym]
		if bok && sok && bi.Type != si.Type {
			diags = append(diags, diag(Warning, sym, "Symbol %q type drift: bundled is %s, system is %s", sym, bi.Type, si.Type))
		}
	}

	// Step 5: version requirements from the extension, restricted to used symbols.
	type req struct{ library, version string }
	reqBySymbol := map[string]req{}
	for _, sym := range usedSorted {
		if library, version, ok := ext.SymbolVersionRequirement(sym); ok {
			reqBySymbol[sym] = req{library, version}
		}
	}

	// Step 6: library-identity filter — retain only requirements attributed
	// to the bundled library (by SONAME or path basename).
	bundledIDs := BundledIdentity(bun)
	type retained struct{ symbol, library, version string }
	var retainedReqs []retained
	for _, sym := range usedSorted {
		r, ok := reqBySymbol[sym]
		if !ok {
			continue
		}
		if _, ok := bundledIDs[r.library]; !ok {
			continue
		}
		retainedReqs = append(retainedReqs, retained{sym, r.library, r.version})
	}

	// Step 7: version availability on system.
	for _, r := range retainedReqs {
		got, ok := sys.SymbolVersionDefinition(r.symbol)
		switch {
		case !ok:
			diags = append(diags, diag(Error, r.symbol,
				"System library does not provide required symbol version %q (from %q)", r.version, r.library))
		case got != r.version:
			diags = append(diags, diag(Error, r.symbol,
				"Required symbol version %q (from %q) not satisfied by system (got %q)", r.version, r.library, got))
		}
	}

	// Step 8: SONAME check (at most one Warning).
	switch {
	case bun.SOName != "" && sys.SOName != "" && bun.SOName != sys.SOName:
		diags = append(diags, diag(Warning, "", "SONAME mismatch: bundled has %q, system has %q", bun.SOName, sys.SOName))
	case bun.SOName != "" && sys.SOName == "":
		diags = append(diags, diag(Warning, "", "Bundled library has SONAME %q but system library has no SONAME", bun.SOName))
	case bun.SOName == "" && sys.SOName != "":
		diags = append(diags, diag(Warning, "", "Bundled library has no SONAME but system library has SONAME %q", sys.SOName))
	}

	verdict := Compatible
	for _, d := range diags {
		if d.Severity == Error {
			verdict = Incompatible
			break
		}
	}

	return AbiCheckResult{Verdict: verdict, Diagnostics: diags, UsedSymbols: used}
}

// CountBySeverity tallies errors/warnings, used by both reporters.
func CountBySeverity(diags []Diagnostic) (errors, warnings int) {
	for _, d := range diags {
		switch d.Severity {
		case Error:
			errors++
		case Warning:
			warnings++
		}
	}
	return
}
