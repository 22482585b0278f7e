// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package elf

import (
	stdelf "debug/elf"
	"encoding/binary"
)

// versioning holds the decoded contents of the .gnu.version, .gnu.version_r
// (VERNEED) and .gnu.version_d (VERDEF) sections of one ELF file.
//
// debug/elf does not parse any of these three sections, so the byte layouts
// below are hand-rolled against the ELF gABI version definitions (Elf64_Verneed/
// Elf64_Vernaux/Elf64_Verdef/Elf64_Verdaux), each a fixed 16-byte/20-byte
// little/big-endian record per the target's elf.Data.
type versioning struct {
	// symVersion[i] is the raw two-byte version index of dynsym entry i
	// (including the reserved null entry at index 0), with the "hidden"
	// bit (0x8000) masked off.
	symVersion []uint16

	// requirements maps a version index (as found in .gnu.version, after
	// masking) from VERNEED to the (library, version-name) it names.
	requirements map[uint16]struct{ library, name string }

	// definitions maps a version index from VERDEF to the version-name it
	// defines.
	definitions map[uint16]string
}

func (v *versioning) symbolVersionIndex(i int) (uint16, bool) {
	if v == nil || i < 0 || i >= len(v.symVersion) {
		return 0, false
	}
	idx := v.symVersion[i]
	if idx <= 1 {
		// 0 = local, 1 = global/base; neither carries a named version.
		return 0, false
	}
	return idx, true
}

func (v *versioning) requirement(idx uint16) (name, library string, ok bool) {
	if v == nil {
		return "", "", false
	}
	r, found := v.requirements[idx]
	if !found {
		return "", "", false
	}
	return r.name, r.library, true
}

func (v *versioning) definition(idx uint16) (name string, ok bool) {
	if v == nil {
		return "", false
	}
	name, ok = v.definitions[idx]
	return name, ok
}

func parseVersioning(f *stdelf.File) (*versioning, error) {
	v := &versioning{
		requirements: map[uint16]struct{ library, name string }{},
		definitions:  map[uint16]string{},
	}

	var versionSec, verneedSec, verdefSec, dynstrSec *stdelf.Section
	for _, sec := range f.Sections {
		switch sec.Name {
		case ".gnu.version":
			versionSec = sec
		case ".gnu.version_r":
			verneedSec = sec
		case ".gnu.version_d":
			verdefSec = sec
		case ".dynstr":
			dynstrSec = sec
		}
	}
	if versionSec == nil || dynstrSec == nil {
		// No versioning info at all; every lookup simply misses.
		return v, nil
	}

	versionData, err := versionSec.Data()
	if err != nil {
		return nil, err
	}
	dynstr, err := dynstrSec.Data()
	if err != nil {
		return nil, err
	}

	order := byteOrderOf(f)

	v.symVersion = make([]uint16, len(versionData)/2)
	for i := range v.symVersion {
		v.symVersion[i] = order.Uint16(versionData[i*2:]) & 0x7fff
	}

	if verneedSec != nil {
		data, err := verneedSec.Data()
		if err != nil {
			return nil, err
		}
		parseVerneed(data, dynstr, order, v.requirements)
	}

	if verdefSec != nil {
		data, err := verdefSec.Data()
		if err != nil {
			return nil, err
		}
		parseVerdef(data, dynstr, order, v.definitions)
	}

	return v, nil
}

func byteOrderOf(f *stdelf.File) binary.ByteOrder {
	if f.Data == stdelf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func readString(data []byte, offset int) string {
	if offset < 0 || offset >= len(data) {
		return ""
	}
	end := offset
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[offset:end])
}

// parseVerneed walks the Elf64_Verneed/Elf64_Vernaux chain of .gnu.version_r,
// recording, for every auxiliary version index, the library (the Verneed's
// "file" field) and version name it names.
func parseVerneed(data, dynstr []byte, order binary.ByteOrder, out map[uint16]struct{ library, name string }) {
	const (
		verneedSize = 16 // vn_version, vn_cnt, vn_file, vn_aux, vn_next
		vernauxSize = 16 // vna_hash, vna_flags, vna_other, vna_name, vna_next
	)
	offset := 0
	for offset+verneedSize <= len(data) {
		cnt := order.Uint16(data[offset+2:])
		file := order.Uint32(data[offset+4:])
		aux := order.Uint32(data[offset+8:])
		next := order.Uint32(data[offset+12:])

		library := readString(dynstr, int(file))

		auxOff := offset + int(aux)
		for i := uint16(0); i < cnt && auxOff+vernauxSize <= len(data); i++ {
			other := order.Uint16(data[auxOff+6:])
			name := order.Uint32(data[auxOff+8:])
			nextAux := order.Uint32(data[auxOff+12:])

			out[other&0x7fff] = struct{ library, name string }{library, readString(dynstr, int(name))}

			if nextAux == 0 {
				break
			}
			auxOff += int(nextAux)
		}

		if next == 0 {
			break
		}
		offset += int(next)
	}
}

// parseVerdef walks the Elf64_Verdef/Elf64_Verdaux chain of .gnu.version_d,
// recording, for every definition index, the version name it defines (the
// first auxiliary entry of each Verdef record, per the gABI).
func parseVerdef(data, dynstr []byte, order binary.ByteOrder, out map[uint16]string) {
	const (
		verdefSize  = 20 // vd_version, vd_flags, vd_ndx, vd_cnt, vd_hash, vd_aux, vd_next
		verdauxSize = 8  // vda_name, vda_next
	)
	offset := 0
	for offset+verdefSize <= len(data) {
		ndx := order.Uint16(data[offset+4:]) & 0x7fff
		cnt := order.Uint16(data[offset+6:])
		aux := order.Uint32(data[offset+12:])
		next := order.Uint32(data[offset+16:])

		if cnt > 0 {
			auxOff := offset + int(aux)
			if auxOff+verdauxSize <= len(data) {
				name := order.Uint32(data[auxOff:])
				out[ndx] = readString(dynstr, int(name))
			}
		}

		if next == 0 {
			break
		}
		offset += int(next)
	}
}
