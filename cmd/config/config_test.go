package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/beatoz/fxopgen/polycache"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func Test_WriteAndReadConfig(t *testing.T) {
	root, err := os.MkdirTemp("", "fxopgen-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	c := DefaultConfig().SetRoot(root)
	c.CacheBackend = polycache.BackendIAVL
	c.Search.Workers = 3
	c.Search.TableCompression = false
	c.Target.HasFaithfulMultiplyAdd = true
	require.NoError(t, EnsureRoot(root))
	require.NoError(t, WriteConfigFile(c))

	v := viper.New()
	v.SetConfigFile(c.ConfigFile())
	require.NoError(t, v.ReadInConfig())
	got := DefaultConfig()
	require.NoError(t, v.Unmarshal(got))
	got.SetRoot(root)

	require.Equal(t, c, got)
	require.NoError(t, got.ValidateBasic())
	require.Equal(t, 3, got.Workers())
	require.Equal(t, filepath.Join(root, "cache"), got.CacheDirPath())

	p := got.GeneratorParams()
	require.Equal(t, 3, p.Workers)
	require.True(t, p.Target.HasFaithfulMultiplyAdd)
	require.False(t, p.TableCompression)
}

func Test_ValidateBasic(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.ValidateBasic())
	require.Positive(t, c.Workers())

	c.LogFormat = "xml"
	require.ErrorIs(t, c.ValidateBasic(), xerrors.ErrInvalidParams)

	c = DefaultConfig()
	c.CacheBackend = "rocksdb"
	require.ErrorIs(t, c.ValidateBasic(), xerrors.ErrInvalidParams)

	c = DefaultConfig()
	c.Search.Workers = -1
	require.ErrorIs(t, c.ValidateBasic(), xerrors.ErrInvalidParams)

	c = DefaultConfig()
	c.Target.LUTInputSize = 0
	require.ErrorIs(t, c.ValidateBasic(), xerrors.ErrInvalidParams)

	c = DefaultConfig()
	c.CacheDir = "/var/cache/fxopgen"
	require.Equal(t, "/var/cache/fxopgen", c.SetRoot("/home/x").CacheDirPath())
}
