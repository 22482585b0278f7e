package discovery_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvendor/unrepair/pkg/discovery"
)

// realLibc returns the path to a real ELF shared object on this host, since
// discovery reads each candidate's SONAME via elf.Parse.
func realLibc(t *testing.T) string {
	t.Helper()
	candidates := []string{
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/usr/lib/x86_64-linux-gnu/libc.so.6",
		"/lib64/libc.so.6",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	t.Skip("no system libc.so.6 found on this host")
	return ""
}

func copyFile(t *testing.T, dst, src string) {
	t.Helper()
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	out, err := os.Create(dst)
	require.NoError(t, err)
	defer out.Close()

	_, err = io.Copy(out, in)
	require.NoError(t, err)
}

func TestExtensionsSkipsLibsDir(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)
	root := t.TempDir()

	copyFile(t, filepath.Join(root, "pkg", "_mod.so"), libc)
	copyFile(t, filepath.Join(root, "pkg", ".libs", "libbundled-abc123.so"), libc)

	exts, err := discovery.Extensions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/_mod.so"}, exts)
}

func TestBundledLibsOnlyUnderLibsDir(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)
	root := t.TempDir()

	copyFile(t, filepath.Join(root, "pkg", "_mod.so"), libc)
	copyFile(t, filepath.Join(root, "pkg", ".libs", "libbundled-abc123.so"), libc)

	bundled, err := discovery.BundledLibs(root)
	require.NoError(t, err)
	require.Len(t, bundled, 1)
	assert.Equal(t, "pkg/.libs/libbundled-abc123.so", bundled[0].RelPath)
	assert.Equal(t, "libc.so.6", bundled[0].SOName)
}

func TestSystemCandidatesFollowsSymlinkedDirectories(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)
	base := t.TempDir()

	realDir := filepath.Join(base, "real")
	copyFile(t, filepath.Join(realDir, "libfoo.so.1"), libc)

	linkedParent := filepath.Join(base, "scan-root", "nested")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "scan-root"), 0o755))
	require.NoError(t, os.Symlink(realDir, linkedParent))

	candidates, err := discovery.SystemCandidates(nil, []string{filepath.Join(base, "scan-root")})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "libc.so.6", candidates[0].SOName)
	assert.Equal(t, "libc", candidates[0].Stem)
}

func TestSystemCandidatesDedupesExplicitFiles(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)
	root := t.TempDir()
	path := filepath.Join(root, "libfoo.so.1")
	copyFile(t, path, libc)

	candidates, err := discovery.SystemCandidates([]string{path, path}, nil)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}
