// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package discovery enumerates extension modules and vendored libraries
// inside an unpacked wheel, and system candidate libraries from explicit
// files and recursive directory scans, per spec.md §4.5.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dropvendor/unrepair/pkg/elf"
	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// Bundled is one vendored shared-object record, per spec.md §3.
type Bundled struct {
	RelPath string // slash-normalized, relative to the wheel root
	AbsPath string
	SOName  string // falls back to basename if DT_SONAME is absent/empty
}

// SystemCandidate is one system shared-object record, per spec.md §3.
type SystemCandidate struct {
	Path   string
	SOName string
	Stem   string // soname up to the first occurrence of ".so"
}

func isSharedObjectName(name string) bool {
	return strings.HasSuffix(name, ".so") || strings.Contains(name, ".so.")
}

func containsLibsDir(slashPath string) bool {
	for _, comp := range strings.Split(slashPath, "/") {
		if comp == ".libs" {
			return true
		}
	}
	return false
}

// Extensions returns every regular file under root whose basename matches
// the shared-object predicate and that is NOT under a ".libs/" directory,
// sorted by relative path.
func Extensions(root string) ([]string, error) {
	return walkSharedObjects(root, func(relSlash string) bool {
		return !containsLibsDir(relSlash)
	})
}

// BundledLibs returns every vendored shared object under root (i.e. under a
// ".libs/" directory), sorted by relative path, with SOName read from each
// binary (falling back to the file's basename when DT_SONAME is absent).
func BundledLibs(root string) ([]Bundled, error) {
	rels, err := walkSharedObjects(root, containsLibsDir)
	if err != nil {
		return nil, err
	}

	out := make([]Bundled, 0, len(rels))
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		soname, err := readSOName(abs)
		if err != nil {
			return nil, err
		}
		if soname == "" {
			soname = filepath.Base(rel)
		}
		out = append(out, Bundled{RelPath: rel, AbsPath: abs, SOName: soname})
	}
	return out, nil
}

func walkSharedObjects(root string, keep func(relSlash string) bool) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSharedObjectName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if keep(rel) {
			rels = append(rels, rel)
		}
		return nil
	})
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.IoError, err, "discovery: walking %q", root)
	}
	sort.Strings(rels)
	return rels, nil
}

// SystemCandidates enumerates system libraries from explicit file paths and
// symlink-following recursive scans of the given directories, keeping only
// shared-object-named regular files, deduplicating by path (sorted), and
// dropping any candidate with no non-empty SONAME.
func SystemCandidates(files, dirs []string) ([]SystemCandidate, error) {
	seen := map[string]struct{}{}
	var paths []string

	addPath := func(p string) {
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		paths = append(paths, clean)
	}

	for _, f := range files {
		if isSharedObjectName(filepath.Base(f)) {
			addPath(f)
		}
	}

	visitedDirs := map[string]struct{}{}
	for _, dir := range dirs {
		if err := walkFollowingSymlinks(dir, visitedDirs, addPath); err != nil {
			return nil, unrepairerr.Wrap(unrepairerr.IoError, err, "discovery: walking system lib dir %q", dir)
		}
	}

	sort.Strings(paths)

	out := make([]SystemCandidate, 0, len(paths))
	for _, p := range paths {
		soname, err := readSOName(p)
		if err != nil {
			return nil, err
		}
		if soname == "" {
			continue
		}
		out = append(out, SystemCandidate{Path: p, SOName: soname, Stem: stemOf(soname)})
	}
	return out, nil
}

// walkFollowingSymlinks recurses into dir, following symlinked directories
// (guarding against cycles via each directory's resolved real path) and
// calling addPath for every shared-object-named regular file found,
// including through symlinked files.
func walkFollowingSymlinks(dir string, visitedDirs map[string]struct{}, addPath func(string)) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil //nolint:nilerr // a dangling directory symlink simply yields no candidates
	}
	if _, ok := visitedDirs[real]; ok {
		return nil
	}
	visitedDirs[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		info, err := os.Stat(p) // follows symlinks
		if err != nil {
			continue //nolint:nilerr // dangling symlink or race with concurrent removal
		}
		if info.IsDir() {
			if err := walkFollowingSymlinks(p, visitedDirs, addPath); err != nil {
				return err
			}
			continue
		}
		if info.Mode().IsRegular() && isSharedObjectName(info.Name()) {
			addPath(p)
		}
	}
	return nil
}

func stemOf(soname string) string {
	if idx := strings.Index(soname, ".so"); idx >= 0 {
		return soname[:idx]
	}
	return soname
}

func readSOName(path string) (string, error) {
	proj, err := elf.Parse(path)
	if err != nil {
		return "", err
	}
	return proj.SOName, nil
}
