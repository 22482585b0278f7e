// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package mapper pairs system candidate libraries with vendored (bundled)
// libraries by SONAME stem, per spec.md §4.6.
package mapper

import (
	"sort"
	"strings"

	"github.com/dropvendor/unrepair/pkg/discovery"
	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// Pair is one (bundled, system) mapping produced by Match.
type Pair struct {
	Bundled discovery.Bundled
	System  discovery.SystemCandidate
}

// matches reports whether a bundled SONAME B matches a system stem S: B
// starts with S and the remainder is empty, or begins with "-" or ".so".
// This accepts both libfoo.so.N and libfoo-X.Y.so.N while rejecting the
// libfoobar-vs-libfoo false positive, per spec.md §4.6/§9.
func matches(bundledSOName, systemStem string) bool {
	if !strings.HasPrefix(bundledSOName, systemStem) {
		return false
	}
	rest := bundledSOName[len(systemStem):]
	return rest == "" || strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, ".so")
}

// Match produces an ordered list of (bundled, system) pairs, in
// system-candidate-input order, per spec.md §4.6/§5.
//
// For each system candidate, every bundled lib matching its stem is found;
// more than one match is an AmbiguousMapping error. Exactly one match
// yields a pair, unless that bundled lib was already paired by an earlier
// system candidate (first-come wins, skipped silently).
func Match(bundled []discovery.Bundled, system []discovery.SystemCandidate) ([]Pair, error) {
	if len(system) == 0 {
		return nil, unrepairerr.New(unrepairerr.NoSystemLibs, "no system libraries provided")
	}

	paired := map[string]struct{}{} // bundled SONAME -> already paired
	var pairs []Pair

	for _, sys := range system {
		var candidates []discovery.Bundled
		for _, b := range bundled {
			if matches(b.SOName, sys.Stem) {
				candidates = append(candidates, b)
			}
		}

		switch len(candidates) {
		case 0:
			continue
		case 1:
			b := candidates[0]
			if _, already := paired[b.SOName]; already {
				continue
			}
			paired[b.SOName] = struct{}{}
			pairs = append(pairs, Pair{Bundled: b, System: sys})
		default:
			names := make([]string, len(candidates))
			for i, c := range candidates {
				names[i] = c.SOName
			}
			sort.Strings(names)
			return nil, unrepairerr.New(unrepairerr.AmbiguousMapping,
				"system candidate %q (stem %q) matches more than one bundled library: %s",
				sys.Path, sys.Stem, strings.Join(names, ", "))
		}
	}

	if len(pairs) == 0 {
		return nil, unrepairerr.New(unrepairerr.NoMatches,
			"no bundled libraries matched provided system libraries")
	}

	return pairs, nil
}
