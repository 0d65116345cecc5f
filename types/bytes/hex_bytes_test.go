package bytes

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beatoz/fxopgen/libs/jsonx"
)

var digest = func() HexBytes {
	h := sha256.Sum256([]byte("sin(pi/4*x)|-16|-16"))
	return h[:]
}()

func Test_UnmarshalJSON(t *testing.T) {
	hexStr := hex.EncodeToString(digest)
	for _, s := range []string{hexStr, "0x" + hexStr, base64.StdEncoding.EncodeToString(digest)} {
		hb := HexBytes{}
		require.NoError(t, jsonx.Unmarshal([]byte("\""+s+"\""), &hb), s)
		require.True(t, digest.Equal(hb), s)
	}

	hb := HexBytes{}
	require.Error(t, hb.UnmarshalJSON([]byte("abc")))
}

func Test_MarshalJSON(t *testing.T) {
	type doc struct {
		Fingerprint HexBytes `json:"fingerprint"`
	}
	bz, err := jsonx.Marshal(doc{digest})
	require.NoError(t, err)
	require.Contains(t, string(bz), `"`+digest.String()+`"`)
	var back doc
	require.NoError(t, jsonx.Unmarshal(bz, &back))
	require.True(t, digest.Equal(back.Fingerprint))

	require.Equal(t, digest.String(), fmt.Sprintf("%v", digest))
	require.Equal(t, digest.String()[:8], digest.Short(4))
	require.Equal(t, "", HexBytes(nil).Short(4))
}
