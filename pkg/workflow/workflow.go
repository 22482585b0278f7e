// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package workflow implements the staged wheel-repair pipeline: unpack,
// discover, match, analyze & patch, garbage-collect orphaned bundled
// libraries, and repack, per spec.md §4.7.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/dropvendor/unrepair/pkg/discovery"
	elfpkg "github.com/dropvendor/unrepair/pkg/elf"
	"github.com/dropvendor/unrepair/pkg/mapper"
	"github.com/dropvendor/unrepair/pkg/unrepairerr"
	"github.com/dropvendor/unrepair/pkg/wheel"
)

// PairResult summarizes one (bundled, system) mapping and its per-extension
// outcomes, per spec.md §3.
type PairResult struct {
	BundledRelPath string
	BundledSOName  string
	SystemPath     string
	SystemSOName   string
	Checked        int
	Patched        int
	Skipped        int
	Incompatible   int
}

// Result is the workflow's output, per spec.md §3.
type Result struct {
	InputWheel  string
	OutputWheel string
	Strict      bool
	HardFailure bool

	Failures []string
	Warnings []string

	Pairs          []PairResult
	RemovedBundled []string

	MatchedPairs              int
	CheckedExtensions         int
	PatchedExtensions         int
	RemovedBundledLibs        int
	SkippedIncompatibleChecks int
}

// Options configures one workflow run.
type Options struct {
	WheelPath     string
	OutputWheel   string
	SystemLibs    []string
	SystemLibDirs []string
	WorkDir       string // optional base directory for the temp working tree
	Strict        bool
}

// Run executes the full pipeline and returns a Result. Orchestration-level
// failures (parse/I/O/mapping) abort the workflow and are returned as an
// error; per-extension incompatibilities are recorded as Failures in the
// Result instead, per spec.md §7's propagation policy.
func Run(ctx context.Context, opts Options) (*Result, error) {
	root, err := os.MkdirTemp(opts.WorkDir, "unrepair-")
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.IoError, err, "workflow.Run: creating working directory")
	}
	defer func() {
		if rmErr := os.RemoveAll(root); rmErr != nil {
			dlog.Warnf(ctx, "workflow.Run: failed to clean up working directory %q: %v", root, rmErr)
		}
	}()

	dlog.Infof(ctx, "Unpacking %s", opts.WheelPath)
	if err := wheel.Unpack(opts.WheelPath, root); err != nil {
		return nil, fmt.Errorf("workflow.Run: unpack: %w", err)
	}

	dlog.Infof(ctx, "Discovering extensions and bundled libraries")
	extensions, err := discovery.Extensions(root)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: discover extensions: %w", err)
	}
	extAbs := make([]string, len(extensions))
	for i, rel := range extensions {
		extAbs[i] = filepath.Join(root, filepath.FromSlash(rel))
	}

	bundled, err := discovery.BundledLibs(root)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: discover bundled libs: %w", err)
	}

	recordRel, err := wheel.FindRecord(root)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: %w", err)
	}

	dlog.Infof(ctx, "Matching system libraries to bundled libraries")
	system, err := discovery.SystemCandidates(opts.SystemLibs, opts.SystemLibDirs)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: %w", err)
	}
	pairs, err := mapper.Match(bundled, system)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: %w", err)
	}

	dlog.Infof(ctx, "Analyzing and patching extensions")
	result := &Result{
		InputWheel:   opts.WheelPath,
		OutputWheel:  opts.OutputWheel,
		Strict:       opts.Strict,
		MatchedPairs: len(pairs),
	}

	extNeeded := make(map[string]map[string]struct{}, len(extAbs))
	for _, ext := range extAbs {
		proj, err := elfpkg.Parse(ext)
		if err != nil {
			return nil, fmt.Errorf("workflow.Run: %w", err)
		}
		set := make(map[string]struct{}, len(proj.Needed))
		for _, n := range proj.Needed {
			set[n] = struct{}{}
		}
		extNeeded[ext] = set
	}

	patchedBundledSonames := map[string]struct{}{}

	for _, pair := range pairs {
		oldName, newName := pair.Bundled.SOName, pair.System.SOName

		pr := PairResult{
			BundledRelPath: pair.Bundled.RelPath,
			BundledSOName:  pair.Bundled.SOName,
			SystemPath:     pair.System.Path,
			SystemSOName:   pair.System.SOName,
		}

		bunProj, err := elfpkg.Parse(pair.Bundled.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("workflow.Run: %w", err)
		}
		sysProj, err := elfpkg.Parse(pair.System.Path)
		if err != nil {
			return nil, fmt.Errorf("workflow.Run: %w", err)
		}

		for _, ext := range extAbs {
			if _, depends := extNeeded[ext][oldName]; !depends {
				continue
			}
			pr.Checked++

			extProj, err := elfpkg.Parse(ext)
			if err != nil {
				return nil, fmt.Errorf("workflow.Run: %w", err)
			}

			check := elfpkg.Analyze(extProj, bunProj, sysProj)
			if check.Verdict == elfpkg.Compatible {
				if err := elfpkg.ReplaceNeeded(ext, ext, oldName, newName); err != nil {
					return nil, fmt.Errorf("workflow.Run: patch %q: %w", ext, err)
				}
				pr.Patched++
				patchedBundledSonames[oldName] = struct{}{}
				delete(extNeeded[ext], oldName)
				extNeeded[ext][newName] = struct{}{}
			} else {
				result.Failures = append(result.Failures,
					fmt.Sprintf("%s incompatible with system %s", ext, pair.System.Path))
				pr.Incompatible++
			}
		}

		pr.Skipped = len(extAbs) - pr.Checked
		if pr.Checked == 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("No extension depended on bundled %s (%s)", pair.Bundled.SOName, pair.Bundled.RelPath))
		}

		result.CheckedExtensions += pr.Checked
		result.PatchedExtensions += pr.Patched
		result.SkippedIncompatibleChecks += pr.Skipped + pr.Incompatible
		result.Pairs = append(result.Pairs, pr)
	}

	dlog.Infof(ctx, "Garbage-collecting orphaned bundled libraries")
	removed, err := gcBundled(bundled, extNeeded, patchedBundledSonames)
	if err != nil {
		return nil, fmt.Errorf("workflow.Run: gc: %w", err)
	}
	for _, b := range removed {
		if err := os.Remove(b.AbsPath); err != nil {
			return nil, unrepairerr.Wrap(unrepairerr.IoError, err, "workflow.Run: removing orphaned %q", b.AbsPath)
		}
		result.RemovedBundled = append(result.RemovedBundled, b.RelPath)
	}
	sort.Strings(result.RemovedBundled)
	result.RemovedBundledLibs = len(result.RemovedBundled)

	dlog.Infof(ctx, "Repacking %s", opts.OutputWheel)
	if err := wheel.RegenerateRecord(root, recordRel); err != nil {
		return nil, fmt.Errorf("workflow.Run: %w", err)
	}
	if err := wheel.Repack(root, opts.OutputWheel); err != nil {
		return nil, fmt.Errorf("workflow.Run: %w", err)
	}

	return result, nil
}

// gcBundled iteratively removes bundled libraries that were patched out of
// at least one extension and are no longer referenced by any surviving
// extension or surviving bundled library, per spec.md §4.7 step 5. Each
// pass removes at least one element, so the loop is bounded by the initial
// bundled count (spec.md §9's GC-termination note).
func gcBundled(
	bundled []discovery.Bundled,
	extNeeded map[string]map[string]struct{},
	patchedBundledSonames map[string]struct{},
) ([]discovery.Bundled, error) {
	current := append([]discovery.Bundled{}, bundled...)
	bundledNeeded := map[string]map[string]struct{}{} // SONAME -> its own DT_NEEDED set, cached

	var removed []discovery.Bundled

	for {
		stillReferenced := map[string]struct{}{}
		for _, needed := range extNeeded {
			for lib := range needed {
				stillReferenced[lib] = struct{}{}
			}
		}
		for _, b := range current {
			needed, ok := bundledNeeded[b.SOName]
			if !ok {
				proj, err := elfpkg.Parse(b.AbsPath)
				if err != nil {
					return nil, err
				}
				needed = make(map[string]struct{}, len(proj.Needed))
				for _, n := range proj.Needed {
					needed[n] = struct{}{}
				}
				bundledNeeded[b.SOName] = needed
			}
			for lib := range needed {
				stillReferenced[lib] = struct{}{}
			}
		}

		var kept, removable []discovery.Bundled
		for _, b := range current {
			_, wasPatched := patchedBundledSonames[b.SOName]
			_, referenced := stillReferenced[b.SOName]
			if wasPatched && !referenced {
				removable = append(removable, b)
			} else {
				kept = append(kept, b)
			}
		}

		if len(removable) == 0 {
			break
		}
		removed = append(removed, removable...)
		current = kept
	}

	return removed, nil
}
