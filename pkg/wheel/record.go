// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package wheel

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dropvendor/unrepair/pkg/python"
	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// errStopWalk short-circuits filepath.WalkDir once FindRecord has its match.
var errStopWalk = errors.New("stop walk")

// RECORDName is the manifest's filename within a .dist-info directory.
const RECORDName = "RECORD"

// recordHashAlgorithm is the digest RECORD entries are hashed with. PEP 376
// requires the algorithm be one of hashlib.algorithms_guaranteed; wheel
// tooling conventionally picks sha256.
const recordHashAlgorithm = "sha256"

// FindRecord locates the single RECORD file under root: the file whose
// slash-normalized relative path has a component ending in ".dist-info",
// per spec.md §4.4. Returns its path relative to root.
func FindRecord(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if filepath.Base(rel) != RECORDName {
			return nil
		}
		dir := path.Dir(rel)
		for _, comp := range strings.Split(dir, "/") {
			if strings.HasSuffix(comp, ".dist-info") {
				found = rel
				return errStopWalk
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return "", unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.FindRecord: walking %q", root)
	}
	if found == "" {
		return "", unrepairerr.New(unrepairerr.NotFound,
			"wheel is missing .dist-info/RECORD, cannot repackage safely")
	}
	return found, nil
}

// RegenerateRecord recomputes RECORD over every regular file under root
// (excluding recordRel itself, which is listed with empty hash/size) in
// sorted, slash-normalized path order, and writes it back to recordRel.
func RegenerateRecord(root, recordRel string) error {
	var names []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: walking %q", root)
	}
	sort.Strings(names)

	recordRel = path.Clean(filepath.ToSlash(recordRel))

	buf := new(strings.Builder)
	w := csv.NewWriter(buf)
	w.UseCRLF = false
	for _, name := range names {
		if path.Clean(name) == recordRel {
			if err := w.Write([]string{name, "", ""}); err != nil {
				return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: writing RECORD row for %q", name)
			}
			continue
		}
		hashsum, size, err := hashFile(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: hashing %q", name)
		}
		if err := w.Write([]string{name, hashsum, strconv.FormatInt(size, 10)}); err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: writing RECORD row for %q", name)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: flushing RECORD")
	}

	recordPath := filepath.Join(root, filepath.FromSlash(recordRel))
	if err := os.MkdirAll(filepath.Dir(recordPath), 0o755); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: creating %q", filepath.Dir(recordPath))
	}
	if err := os.WriteFile(recordPath, []byte(buf.String()), 0o644); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.RegenerateRecord: writing %q", recordPath)
	}
	return nil
}

// hashFile computes the RECORD encoding of one file's contents:
// "<algorithm>=" + base64url-nopad(digest(f)), and its byte length.
func hashFile(name string) (hashsum string, size int64, err error) {
	newHash, ok := python.HashlibAlgorithmsGuaranteed[recordHashAlgorithm]
	if !ok {
		return "", 0, unrepairerr.New(unrepairerr.IoError, "wheel: unknown hash algorithm %q", recordHashAlgorithm)
	}

	f, err := os.Open(name)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := newHash()
	size, err = io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	hashsum = recordHashAlgorithm + "=" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
	return hashsum, size, nil
}
