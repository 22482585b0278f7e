package unrepairerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvendor/unrepair/pkg/unrepairerr"
)

func TestNewFormatsMessage(t *testing.T) {
	t.Parallel()
	err := unrepairerr.New(unrepairerr.NotFound, "missing %s", "libfoo.so")
	assert.Equal(t, "NotFound: missing libfoo.so", err.Error())
}

func TestWrapChains(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	err := unrepairerr.Wrap(unrepairerr.IoError, inner, "reading %s", "wheel.whl")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading wheel.whl")
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, errors.Is(err, inner))
}

func TestIsMatchesKind(t *testing.T) {
	t.Parallel()
	err := unrepairerr.New(unrepairerr.AmbiguousMapping, "ambiguous")

	assert.True(t, errors.Is(err, unrepairerr.KindAmbiguousMap))
	assert.False(t, errors.Is(err, unrepairerr.KindNotFound))
}

func TestKindStringIsStable(t *testing.T) {
	t.Parallel()
	cases := map[unrepairerr.Kind]string{
		unrepairerr.ParseError:       "ParseError",
		unrepairerr.NotFound:        "NotFound",
		unrepairerr.InvalidArgument: "InvalidArgument",
		unrepairerr.AmbiguousMapping: "AmbiguousMapping",
		unrepairerr.NoMatches:       "NoMatches",
		unrepairerr.NoSystemLibs:    "NoSystemLibs",
		unrepairerr.IoError:         "IoError",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
