// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package elf builds read-only "projections" of ELF shared objects (SONAME,
// imported/exported symbols, version requirements/definitions, DT_NEEDED),
// runs the ABI-compatibility analyzer over a (extension, bundled, system)
// triple, and patches DT_NEEDED/VERNEED entries in place.
//
// The read side is built on the standard library's debug/elf, following the
// scanning idiom of a symbol-resolution tool that walks DynamicSymbols,
// ImportedSymbols and ImportedLibraries; debug/elf exposes no VERNEED/VERDEF
// API, so that part is hand-rolled in version.go against the raw
// .gnu.version/.gnu.version_r/.gnu.version_d section bytes.
package elf

import (
	stdelf "debug/elf"
	"path/filepath"

	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

// SymbolType classifies an exported symbol for the analyzer's symbol-type
// drift check (spec step 4).
type SymbolType int

const (
	SymbolOther SymbolType = iota
	SymbolFunc
	SymbolObject
)

func (t SymbolType) String() string {
	switch t {
	case SymbolFunc:
		return "Func"
	case SymbolObject:
		return "Object"
	default:
		return "Other"
	}
}

// ExportInfo is the per-exported-symbol metadata the analyzer needs.
type ExportInfo struct {
	Address uint64
	Size    uint64
	Type    SymbolType
}

// HeaderIdentity is the tuple the analyzer compares for header compatibility.
type HeaderIdentity struct {
	Class   stdelf.Class
	Data    stdelf.Data
	OSABI   stdelf.OSABI
	Machine stdelf.Machine
}

// symbolVersionRequirement attributes one imported symbol to the
// (library, version) pair its VERNEED entry names.
type symbolVersionRequirement struct {
	Library string
	Version string
}

// Projection is a read-only view of one ELF shared object, per §3 of the
// data model: SONAME, imports, exports (with type/size/address), the
// DT_NEEDED list, and symbol-versioning metadata.
type Projection struct {
	Path   string
	SOName string // "" if DT_SONAME is absent

	Imports map[string]struct{}
	Exports map[string]struct{}

	ExportInfo map[string]ExportInfo

	Needed []string

	// VersionRequirements maps required-library-name -> version-name -> a
	// representative imported symbol that carries that requirement (first
	// writer wins; the full set of symbols per (library,version) is not
	// needed downstream, only the fact that the pair exists).
	VersionRequirements map[string]map[string]string

	// RequirementVersionsByLib maps required-library-name -> the set of
	// version-name strings required of it.
	RequirementVersionsByLib map[string]map[string]struct{}

	// VersionDefinitions maps a defined version-name to one exported symbol
	// carrying it (first writer wins, mirroring VersionRequirements).
	VersionDefinitions map[string]string

	// symbolVersionReq is the per-imported-symbol attribution used by the
	// analyzer's step 5 ("req[symbol] = (library, version)").
	symbolVersionReq map[string]symbolVersionRequirement

	// symbolVersionDef is the per-exported-symbol attribution used by
	// "sys.version_definitions[symbol]" lookups in step 7.
	symbolVersionDef map[string]string

	Identity HeaderIdentity
}

// SymbolVersionRequirement returns the (library, version) a given imported
// symbol's VERNEED entry names, and whether one exists at all.
func (p *Projection) SymbolVersionRequirement(symbol string) (library, version string, ok bool) {
	req, found := p.symbolVersionReq[symbol]
	if !found {
		return "", "", false
	}
	return req.Library, req.Version, true
}

// SymbolVersionDefinition returns the version-name this binary defines a
// given exported symbol under, and whether one exists at all.
func (p *Projection) SymbolVersionDefinition(symbol string) (version string, ok bool) {
	v, found := p.symbolVersionDef[symbol]
	return v, found
}

// Parse opens path as an ELF file and builds its Projection. It fails with a
// *unrepairerr.Error of kind ParseError if the file is not a valid ELF.
func Parse(path string) (*Projection, error) {
	f, err := stdelf.Open(path)
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.ParseError, err, "elf.Parse: could not open %q", path)
	}
	defer f.Close()

	p := &Projection{
		Path:                     path,
		Imports:                  map[string]struct{}{},
		Exports:                  map[string]struct{}{},
		ExportInfo:               map[string]ExportInfo{},
		VersionRequirements:      map[string]map[string]string{},
		RequirementVersionsByLib: map[string]map[string]struct{}{},
		VersionDefinitions:       map[string]string{},
		symbolVersionReq:         map[string]symbolVersionRequirement{},
		symbolVersionDef:         map[string]string{},
		Identity: HeaderIdentity{
			Class:   f.Class,
			Data:    f.Data,
			OSABI:   f.OSABI,
			Machine: f.Machine,
		},
	}

	if soname, err := soNameOf(f); err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.ParseError, err, "elf.Parse: reading DT_SONAME of %q", path)
	} else {
		p.SOName = soname
	}

	needed, err := f.ImportedLibraries()
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.ParseError, err, "elf.Parse: reading DT_NEEDED of %q", path)
	}
	p.Needed = needed

	versioning, err := parseVersioning(f)
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.ParseError, err, "elf.Parse: reading version sections of %q", path)
	}

	dynsyms, err := f.DynamicSymbols()
	if err != nil {
		return nil, unrepairerr.Wrap(unrepairerr.ParseError, err, "elf.Parse: reading dynamic symbols of %q", path)
	}

	for i, sym := range dynsyms {
		if sym.Name == "" {
			continue
		}
		// .gnu.version has one uint16 per dynsym entry, including the
		// reserved null symbol at index 0; DynamicSymbols() omits that
		// entry, so symbol i here aligns with versions[i+1].
		versIdx, hasVers := versioning.symbolVersionIndex(i + 1)

		if sym.Section == stdelf.SHN_UNDEF {
			p.Imports[sym.Name] = struct{}{}
			if hasVers {
				if name, lib, ok := versioning.requirement(versIdx); ok {
					p.symbolVersionReq[sym.Name] = symbolVersionRequirement{Library: lib, Version: name}
					if _, ok := p.VersionRequirements[lib]; !ok {
						p.VersionRequirements[lib] = map[string]string{}
					}
					if _, ok := p.VersionRequirements[lib][name]; !ok {
						p.VersionRequirements[lib][name] = sym.Name
					}
					if _, ok := p.RequirementVersionsByLib[lib]; !ok {
						p.RequirementVersionsByLib[lib] = map[string]struct{}{}
					}
					p.RequirementVersionsByLib[lib][name] = struct{}{}
				}
			}
			continue
		}

		p.Exports[sym.Name] = struct{}{}
		p.ExportInfo[sym.Name] = ExportInfo{
			Address: sym.Value,
			Size:    sym.Size,
			Type:    symbolTypeOf(sym.Info),
		}
		if hasVers {
			if name, ok := versioning.definition(versIdx); ok {
				p.symbolVersionDef[sym.Name] = name
				if _, ok := p.VersionDefinitions[name]; !ok {
					p.VersionDefinitions[name] = sym.Name
				}
			}
		}
	}

	return p, nil
}

func symbolTypeOf(info byte) SymbolType {
	switch stdelf.ST_TYPE(info) {
	case stdelf.STT_FUNC:
		return SymbolFunc
	case stdelf.STT_OBJECT:
		return SymbolObject
	default:
		return SymbolOther
	}
}

// soNameOf reads DT_SONAME via DynString; a missing tag is not an error, it
// simply yields "".
func soNameOf(f *stdelf.File) (string, error) {
	vals, err := f.DynString(stdelf.DT_SONAME)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", nil
	}
	return vals[0], nil
}

// BundledIdentity returns the set of names under which a bundled library
// may be referenced by a VERNEED "file" field: its own SONAME (if any) and
// its path's basename, per spec.md §4.2 step 6 / §9.
func BundledIdentity(p *Projection) map[string]struct{} {
	ids := map[string]struct{}{}
	if p.SOName != "" {
		ids[p.SOName] = struct{}{}
	}
	if base := filepath.Base(p.Path); base != "" {
		ids[base] = struct{}{}
	}
	return ids
}
