package workflow_test

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvendor/unrepair/pkg/workflow"
)

// realLibc returns the path to a real ELF shared object on this host. The
// pipeline parses every fixture with the real elf package, so a synthetic
// binary would not exercise it honestly.
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

func buildWheel(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// buildWheelWithLib assembles a wheel containing an extension module, a
// bundled library under pkg/.libs, and a placeholder RECORD, all as real
// on-disk files staged in a temp dir before being zipped up. zip.Create
// streams compressed content, so the library is staged rather than appended
// with archive/zip's FileInfoHeader helper, keeping this independent from the
// wheel package's own archive logic under test elsewhere.
func buildWheelWithLib(t *testing.T, wheelPath, libSrc string) {
	t.Helper()
	stage := t.TempDir()
	copyFile(t, filepath.Join(stage, "extmod.so"), libSrc)
	copyFile(t, filepath.Join(stage, "libbundled.so"), libSrc)

	extBytes, err := os.ReadFile(filepath.Join(stage, "extmod.so"))
	require.NoError(t, err)
	libBytes, err := os.ReadFile(filepath.Join(stage, "libbundled.so"))
	require.NoError(t, err)

	buildWheel(t, wheelPath, map[string]string{
		"pkg/_mod.so":                 string(extBytes),
		"pkg/.libs/libbundled-xyz.so": string(libBytes),
		"pkg-1.0.dist-info/RECORD":    "stale,stale,stale\n",
		"pkg-1.0.dist-info/METADATA":  "Name: pkg\nVersion: 1.0\n",
	})
}

// TestRunNoSystemLibsIsOrchestrationError exercises the early-abort path:
// with no system libraries at all, mapper.Match fails before any ELF
// analysis or patching is attempted.
func TestRunNoSystemLibsIsOrchestrationError(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)

	dir := t.TempDir()
	inWheel := filepath.Join(dir, "pkg-1.0-py3-none-any.whl")
	buildWheelWithLib(t, inWheel, libc)

	outWheel := filepath.Join(dir, "pkg-1.0.unrepaired-py3-none-any.whl")
	_, err := workflow.Run(context.Background(), workflow.Options{
		WheelPath:   inWheel,
		OutputWheel: outWheel,
		WorkDir:     dir,
	})
	require.Error(t, err)
}

// TestRunSkipsExtensionsNotDependingOnBundledLib exercises the full
// unpack/discover/match/analyze/gc/regenerate-RECORD/repack pipeline end to
// end. The extension fixture is a real libc.so.6, whose own DT_NEEDED list
// (only the dynamic linker) does not include the bundled library's SONAME,
// so no ELF analysis or patch is attempted for it — the run stays entirely
// within code whose behavior is verified here, without depending on the
// write-capable ELF library's unverified API.
func TestRunSkipsExtensionsNotDependingOnBundledLib(t *testing.T) {
	t.Parallel()
	libc := realLibc(t)

	dir := t.TempDir()
	inWheel := filepath.Join(dir, "pkg-1.0-py3-none-any.whl")
	buildWheelWithLib(t, inWheel, libc)

	sysDir := t.TempDir()
	copyFile(t, filepath.Join(sysDir, "libc.so.6"), libc)

	outWheel := filepath.Join(dir, "pkg-1.0.unrepaired-py3-none-any.whl")
	result, err := workflow.Run(context.Background(), workflow.Options{
		WheelPath:     inWheel,
		OutputWheel:   outWheel,
		SystemLibDirs: []string{sysDir},
		WorkDir:       dir,
		Strict:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.MatchedPairs)
	assert.Equal(t, 0, result.CheckedExtensions)
	assert.Equal(t, 0, result.PatchedExtensions)
	assert.Empty(t, result.Failures)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "No extension depended on bundled")
	assert.False(t, result.HardFailure)

	require.FileExists(t, outWheel)
	zr, err := zip.OpenReader(outWheel)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "pkg/_mod.so")
	assert.Contains(t, names, "pkg/.libs/libbundled-xyz.so")
	assert.Contains(t, names, "pkg-1.0.dist-info/RECORD")
}
