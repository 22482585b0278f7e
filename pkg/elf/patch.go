// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package elf

import (
	"encoding/binary"
	"fmt"
	"os"

	binelf "github.com/Binject/debug/elf"

	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// ReplaceNeeded rewrites the DT_NEEDED entry equal to oldLib to newLib in
// the ELF file at inputPath, rewrites any VERNEED "file" field naming
// oldLib to newLib as well, and serializes the result to outputPath (which
// may equal inputPath). Per spec.md §4.3.
//
// debug/elf from the standard library is read-only, so the write side is
// built on github.com/Binject/debug/elf, a fork that can grow the dynamic
// string table in place — needed because newLib may be longer than oldLib.
func ReplaceNeeded(inputPath, outputPath, oldLib, newLib string) error {
	if oldLib == "" || newLib == "" {
		return unrepairerr.New(unrepairerr.InvalidArgument,
			"replace_needed: old and new library names must be non-empty")
	}

	f, err := binelf.Open(inputPath)
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.ParseError, err, "replace_needed: parsing %q", inputPath)
	}
	defer f.Close()

	dynstr := f.Section(".dynstr")
	if dynstr == nil {
		return unrepairerr.New(unrepairerr.NotFound, "replace_needed: %q has no .dynstr section", inputPath)
	}
	dynstrData, err := dynstr.Data()
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: reading .dynstr of %q", inputPath)
	}

	// Appending (rather than overwriting in place) means the new name's
	// length never constrains us; the old bytes are simply left unreferenced.
	newOffset := uint64(len(dynstrData))
	grownDynstr := append(append([]byte{}, dynstrData...), append([]byte(newLib), 0)...)
	if err := f.UpdateSectionData(dynstr, grownDynstr); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: growing .dynstr of %q", inputPath)
	}

	dynamic := f.Section(".dynamic")
	if dynamic == nil {
		return unrepairerr.New(unrepairerr.NotFound, "replace_needed: %q has no .dynamic section", inputPath)
	}
	entries, err := f.DynamicEntries(dynamic)
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.ParseError, err, "replace_needed: reading .dynamic entries of %q", inputPath)
	}

	found := false
	for i := range entries {
		if entries[i].Tag != binelf.DT_NEEDED {
			continue
		}
		name := readString(dynstrData, int(entries[i].Val))
		if name != oldLib {
			continue
		}
		entries[i].Val = newOffset
		found = true
		break
	}
	if !found {
		return unrepairerr.New(unrepairerr.NotFound, "DT_NEEDED entry %q not found", oldLib)
	}
	if err := f.UpdateDynamicEntries(dynamic, entries); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: writing .dynamic entries of %q", inputPath)
	}

	if verneed := f.Section(".gnu.version_r"); verneed != nil {
		verneedData, err := verneed.Data()
		if err != nil {
			return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: reading .gnu.version_r of %q", inputPath)
		}
		patched, changed, err := patchVerneedFile(verneedData, dynstrData, oldLib, newOffset, f.ByteOrder)
		if err != nil {
			return unrepairerr.Wrap(unrepairerr.ParseError, err, "replace_needed: patching .gnu.version_r of %q", inputPath)
		}
		if changed {
			if err := f.UpdateSectionData(verneed, patched); err != nil {
				return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: writing .gnu.version_r of %q", inputPath)
			}
		}
		// Absence of a matching VERNEED entry is not an error (spec.md §4.3).
	}

	out, err := os.Create(outputPath + ".tmp")
	if err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: creating %q", outputPath)
	}
	if err := f.Write(out); err != nil {
		out.Close()
		os.Remove(out.Name())
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: serializing to %q", outputPath)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: closing %q", outputPath)
	}
	if err := os.Rename(out.Name(), outputPath); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: installing %q", outputPath)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return unrepairerr.Wrap(unrepairerr.IoError, err, "replace_needed: %q missing after write", outputPath)
	}

	return nil
}

// patchVerneedFile rewrites the vn_file field of every Verneed entry whose
// string equals oldLib, pointing it at newOffset instead. Vernaux entries
// (their vna_name version strings, e.g. "LIBBUNDLED_1.0") are left untouched
// — only the Verneed's own library name changes. Returns changed=false (and
// the original bytes) if no Verneed entry names oldLib at all, matching the
// "absence is not an error" contract.
func patchVerneedFile(data, dynstr []byte, oldLib string, newOffset uint64, order binary.ByteOrder) ([]byte, bool, error) {
	const verneedSize = 16
	if newOffset > 0xffffffff {
		return nil, false, fmt.Errorf("dynstr offset %d overflows a 32-bit name field", newOffset)
	}

	out := append([]byte{}, data...)
	changed := false

	offset := 0
	for offset+verneedSize <= len(out) {
		file := order.Uint32(out[offset+4:])
		next := order.Uint32(out[offset+12:])

		if readString(dynstr, int(file)) == oldLib {
			order.PutUint32(out[offset+4:], uint32(newOffset))
			changed = true
		}

		if next == 0 {
			break
		}
		offset += int(next)
	}

	return out, changed, nil
}
