package version

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionParsing(t *testing.T) {
	require.NoError(t, parseVersions("v1.2.3", "abcdef0123"))
	require.Equal(t, uint64(1), Major())
	require.Equal(t, uint64(2), Minor())
	require.Equal(t, uint64(3), Patch())

	n, err := strconv.ParseUint("abcdef0123", 16, 64)
	require.NoError(t, err)
	require.Equal(t, n, CommitHash())
	require.True(t, strings.HasPrefix(String(), "v1.2.3-abcdef0123"))

	require.NoError(t, parseVersions("2.0.1-rc1", ""))
	require.Equal(t, uint64(2), Major())

	require.Error(t, parseVersions("release", ""))
	require.Error(t, parseVersions("v1.0.0", "xyz"))
}
