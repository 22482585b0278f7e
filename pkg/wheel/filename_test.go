package wheel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvendor/unrepair/pkg/wheel"
)

func TestParseFilenameRoundTrips(t *testing.T) {
	t.Parallel()
	const name = "numpy-1.23.4-cp310-cp310-manylinux_2_17_x86_64.whl"

	data, err := wheel.ParseFilename(name)
	require.NoError(t, err)
	assert.Equal(t, "numpy", data.Distribution)
	assert.Equal(t, "1.23.4", data.Version.String())
	assert.Equal(t, "cp310", data.CompatibilityTag.Python)
	assert.Equal(t, "cp310", data.CompatibilityTag.ABI)
	assert.Equal(t, "manylinux_2_17_x86_64", data.CompatibilityTag.Platform)
	assert.Nil(t, data.BuildTag)

	got, err := wheel.GenerateFilename(*data)
	require.NoError(t, err)
	assert.Equal(t, name, got)
}

func TestParseFilenameWithBuildTag(t *testing.T) {
	t.Parallel()
	const name = "foo-1.0-2extra-py3-none-any.whl"

	data, err := wheel.ParseFilename(name)
	require.NoError(t, err)
	require.NotNil(t, data.BuildTag)
	assert.Equal(t, 2, data.BuildTag.Int)
	assert.Equal(t, "extra", data.BuildTag.Str)
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := wheel.ParseFilename("not-a-wheel-file.txt")
	assert.Error(t, err)
}

func TestUnrepairedOutputName(t *testing.T) {
	t.Parallel()
	got := wheel.UnrepairedOutputName("numpy-1.23.4-cp310-cp310-manylinux_2_17_x86_64.whl")
	assert.Equal(t, "numpy-1.23.4-cp310-cp310-manylinux_2_17_x86_64.unrepaired.whl", got)
}
