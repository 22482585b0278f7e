// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package wheel

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/dropvendor/unrepair/pkg/python"
	"github.com/dropvendor/unrepair/pkg/reproducible"
	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// unixCreatorVersion marks a zip entry's "version made by" as UNIX, per the
// same PKWARE APPNOTE convention Python's zipfile module assumes when it
// reads the upper 16 bits of ExternalAttrs as a UNIX st_mode.
const unixCreatorVersion = 3<<8 | 20

func init() {
	// Swap in klauspost/compress's deflate implementation for archive/zip's
	// reader and writer, the same compressor-registration idiom the rest of
	// the retrieved corpus depends on klauspost/compress directly for.
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

// Unpack extracts every entry of the zip archive at archivePath into
// rootDir, preserving relative paths and creating parent directories as
// needed, per spec.md §4.4.
func Unpack(archivePath, rootDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.ParseError, err, "wheel.Unpack: opening %q", archivePath)
	}
	defer r.Close()

	for _, file := range r.File {
		name := path.Clean(file.Name)
		if name == "." || strings.HasPrefix(name, "../") || name == ".." {
			return unrepairerr.New(unrepairerr.ParseError, "wheel.Unpack: unsafe archive entry %q", file.Name)
		}
		dest := filepath.Join(rootDir, filepath.FromSlash(name))

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Unpack: creating directory %q", dest)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Unpack: creating parent of %q", dest)
		}

		if err := extractFile(file, dest); err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Unpack: extracting %q", name)
		}
	}

	return nil
}

// unixPermOf recovers a zip entry's permission bits from the UNIX half of
// its external attributes field when the entry was written by a UNIX
// creator; otherwise it falls back to archive/zip's own FileInfo mode,
// mirroring Python zipfile's handling of the same field.
func unixPermOf(h zip.FileHeader) os.FileMode {
	if h.CreatorVersion>>8 == 3 {
		attrs := python.ParseZIPExternalAttributes(h.ExternalAttrs)
		if attrs.UNIX != 0 {
			return attrs.UNIX.ToGo().Perm()
		}
	}
	return h.Mode().Perm()
}

func extractFile(file *zip.File, dest string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := unixPermOf(file.FileHeader)
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// Repack enumerates all regular files under rootDir in sorted order and
// writes them into a new deflate-compressed archive at archivePath, with
// paths normalized to forward slashes, per spec.md §4.4.
func Repack(rootDir, archivePath string) error {
	var names []string
	err := filepath.WalkDir(rootDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Repack: walking %q", rootDir)
	}
	sort.Strings(names)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Repack: creating %q", filepath.Dir(archivePath))
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Repack: creating %q", archivePath)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	stamp := reproducible.Now()
	for _, name := range names {
		if err := writeEntry(zw, rootDir, name, stamp); err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Repack: writing %q", name)
		}
	}
	if err := zw.Close(); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "wheel.Repack: finalizing %q", archivePath)
	}
	return nil
}

func writeEntry(zw *zip.Writer, rootDir, name string, stamp time.Time) error {
	fullPath := filepath.Join(rootDir, filepath.FromSlash(name))
	info, err := os.Lstat(fullPath)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	header.Modified = stamp
	header.CreatorVersion = unixCreatorVersion
	header.ExternalAttrs = python.ZIPExternalAttributes{UNIX: python.ModeFromGo(info.Mode())}.Raw()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
