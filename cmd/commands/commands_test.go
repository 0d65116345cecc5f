package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	tmlog "github.com/tendermint/tendermint/libs/log"

	cfg "github.com/beatoz/fxopgen/cmd/config"
	"github.com/beatoz/fxopgen/libs/jsonx"
	"github.com/beatoz/fxopgen/operator"
	"github.com/beatoz/fxopgen/polycache"
	"github.com/beatoz/fxopgen/types"
)

func testConfig(t *testing.T) *cfg.Config {
	logger = tmlog.NewNopLogger()
	root, err := os.MkdirTemp("", "fxopgen-cmd-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })
	return cfg.DefaultConfig().SetRoot(root)
}

func Test_InitFiles(t *testing.T) {
	config := testConfig(t)
	require.NoError(t, InitFilesWith(config, false))
	require.FileExists(t, config.ConfigFile())
	require.DirExists(t, config.CacheDirPath())

	// an existing file is kept
	require.NoError(t, os.WriteFile(config.ConfigFile(), []byte("log_level = \"debug\"\n"), 0o644))
	require.NoError(t, InitFilesWith(config, false))
	bz, err := os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	require.Equal(t, "log_level = \"debug\"\n", string(bz))

	require.NoError(t, InitFilesWith(config, true))
	bz, err = os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	require.Contains(t, string(bz), "[search]")
}

func Test_Generate(t *testing.T) {
	config := testConfig(t)
	config.CacheBackend = polycache.BackendGoLevelDB
	require.NoError(t, InitFilesWith(config, false))

	req := operator.NewRequest("exp(x)", false, -10, -10)
	req.Method, req.Validate = operator.PiecewisePoly, true
	jsonFile := filepath.Join(config.RootDir, "exp.json")

	var out bytes.Buffer
	require.NoError(t, GenerateWith(context.Background(), config, req, &out, jsonFile))
	require.Contains(t, out.String(), "method piecewise")
	require.Contains(t, out.String(), "faithful")

	bz, err := os.ReadFile(jsonFile)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, jsonx.Unmarshal(bz, &m))
	require.Equal(t, "piecewise", m["method"])

	// the cache was filled and can be exported
	dst := filepath.Join(config.RootDir, "exported")
	require.NoError(t, ExportCacheWith(config, dst))
	require.DirExists(t, dst)
}

func Test_ExportWithoutCache(t *testing.T) {
	config := testConfig(t)
	require.Error(t, ExportCacheWith(config, filepath.Join(config.RootDir, "out")))
}

func Test_Compress(t *testing.T) {
	values, xerr := ReadValues(strings.NewReader("0 1 2 3\n4,5,6,0x7\n"))
	require.NoError(t, xerr)
	require.Len(t, values, 8)
	require.Equal(t, uint64(7), values[7].Uint64())

	var out bytes.Buffer
	require.NoError(t, CompressWith(values, 3, 3, types.DefaultTargetParams(), false, &out))
	require.Contains(t, out.String(), "Initial cost is")

	out.Reset()
	require.NoError(t, CompressWith(values, 3, 3, types.DefaultTargetParams(), true, &out))
	require.Contains(t, out.String(), "originalWordSize")

	_, xerr = ReadValues(strings.NewReader("1 two 3"))
	require.Error(t, xerr)

	require.Error(t, CompressWith([]*uint256.Int{uint256.NewInt(9)}, 0, 3, types.DefaultTargetParams(), false, &out))
}

func Test_VersionCmd(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.Run(VersionCmd, nil)
	require.True(t, strings.HasPrefix(out.String(), "v"))
}

func Test_TrapSignal(t *testing.T) {
	var calls atomic.Int32
	stop := trapSignal(tmlog.NewNopLogger(), func() { calls.Add(1) })
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// stop returns only once the handler goroutine is gone, and is idempotent
	stop()
	stop()
	require.Equal(t, int32(1), calls.Load())

	// a second trap after stop works on its own channel
	stop = trapSignal(tmlog.NewNopLogger(), func() { calls.Add(1) })
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()
}
