// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package wheel handles the on-disk side of a Python wheel archive: unpack
// and repack of the zip container, parsing and generation of the wheel
// filename, and reading/regenerating the .dist-info/RECORD manifest.
//
// Adapted from the teacher's pkg/python/pypa/bdist, which installs a wheel
// into an in-memory VFS destined for an OCI layer; unrepair instead unpacks
// to, and repacks from, a real directory on disk, so only the
// filename/RECORD logic survives the port.
package wheel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dropvendor/unrepair/pkg/python/pep425"
	"github.com/dropvendor/unrepair/pkg/python/pep440"
)

// BuildTag is the optional numeric(+string) build tag component of a wheel
// filename, per PEP 427.
type BuildTag struct {
	Int int
	Str string
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

// FileNameData is the parsed form of a wheel filename:
// {distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl
type FileNameData struct {
	Distribution     string
	Version          pep440.Version
	BuildTag         *BuildTag
	CompatibilityTag pep425.Tag
}

var reFilename = regexp.MustCompile(regexp.MustCompile(`\s+`).ReplaceAllString(`
	^(?P<distribution>[^-]+)
	-(?P<version>[^-]+)
	(?:-(?P<build_n>[0-9]+)(?P<build_l>[^-0-9][^-]*)?)?
	-(?P<python>[^-]+)
	-(?P<abi>[^-]+)
	-(?P<platform>[^-]+)
	\.whl$`, ``))

// ParseFilename parses a wheel's filename into its component fields.
func ParseFilename(filename string) (*FileNameData, error) {
	match := reFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid wheel filename: %q", filename)
	}

	var ret FileNameData
	ret.Distribution = match[reFilename.SubexpIndex("distribution")]

	ver, err := pep440.ParseVersion(match[reFilename.SubexpIndex("version")])
	if err != nil {
		return nil, fmt.Errorf("invalid wheel filename: %q: %w", filename, err)
	}
	ret.Version = *ver

	if buildN := match[reFilename.SubexpIndex("build_n")]; buildN != "" {
		n, _ := strconv.Atoi(buildN)
		ret.BuildTag = &BuildTag{Int: n, Str: match[reFilename.SubexpIndex("build_l")]}
	}

	ret.CompatibilityTag = pep425.Tag{
		Python:   match[reFilename.SubexpIndex("python")],
		ABI:      match[reFilename.SubexpIndex("abi")],
		Platform: match[reFilename.SubexpIndex("platform")],
	}

	return &ret, nil
}

// GenerateFilename renders a wheel filename from its component fields.
func GenerateFilename(data FileNameData) (string, error) {
	var ret strings.Builder
	ret.WriteString(regexp.MustCompile("[-_.]+").ReplaceAllLiteralString(data.Distribution, "_"))

	ver, err := data.Version.Normalize()
	if err != nil {
		return "", err
	}
	ret.WriteString("-")
	ret.WriteString(ver.String())

	if data.BuildTag != nil {
		build := data.BuildTag.String()
		if strings.Contains(build, "-") {
			return "", fmt.Errorf("invalid build tag: contains dash: %q", build)
		}
		ret.WriteString("-")
		ret.WriteString(build)
	}

	compat := data.CompatibilityTag.String()
	if strings.Count(compat, "-") != 2 {
		return "", fmt.Errorf("invalid compatibility tag: %q", compat)
	}
	ret.WriteString("-")
	ret.WriteString(compat)
	ret.WriteString(".whl")
	return ret.String(), nil
}

// UnrepairedOutputName computes the default output wheel filename for an
// input named base: "<stem>.unrepaired.whl", per spec.md §4.7.
func UnrepairedOutputName(base string) string {
	stem := strings.TrimSuffix(base, ".whl")
	return stem + ".unrepaired.whl"
}
