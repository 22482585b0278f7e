package elf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropvendor/unrepair/pkg/elf"
)

func TestGlibcCompatibleOlderRequirementSatisfied(t *testing.T) {
	t.Parallel()

	sysDefs := map[string]struct{}{
		"GLIBC_2.17": {},
		"GLIBC_2.29": {},
	}
	reqs := []elf.Requirement{
		{Library: "libc.so.6", Version: "GLIBC_2.4"},
		{Library: "libc.so.6", Version: "GLIBC_2.29"},
		{Library: "libc.so.6", Version: "GLIBC_2.30"},
	}

	got := elf.GlibcCompatible(reqs, sysDefs)
	assert.True(t, got[reqs[0]], "older requirement should be satisfied by a newer system glibc")
	assert.True(t, got[reqs[1]], "exact match should be satisfied")
	assert.False(t, got[reqs[2]], "newer-than-system requirement should not be satisfied")
}

func TestGlibcCompatibleNonGlibcVersionIsVerbatim(t *testing.T) {
	t.Parallel()

	sysDefs := map[string]struct{}{"FOO_1.0": {}}
	reqs := []elf.Requirement{
		{Library: "libfoo.so.1", Version: "FOO_1.0"},
		{Library: "libfoo.so.1", Version: "FOO_2.0"},
	}

	got := elf.GlibcCompatible(reqs, sysDefs)
	assert.True(t, got[reqs[0]])
	assert.False(t, got[reqs[1]])
}

func TestGlibcCompatibleNoSystemGlibcVersions(t *testing.T) {
	t.Parallel()

	reqs := []elf.Requirement{{Library: "libc.so.6", Version: "GLIBC_2.4"}}
	got := elf.GlibcCompatible(reqs, map[string]struct{}{})
	assert.False(t, got[reqs[0]])
}
