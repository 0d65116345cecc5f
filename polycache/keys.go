package polycache

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"

	"github.com/beatoz/fxopgen/piecewise"
)

const keySeed = 47

var (
	KeyPrefixPoly = []byte{0x00}
)

// CacheKey is the fixed-width store key of k: a prefix and the 128-bit
// murmur3 hash of its text form.
func CacheKey(k piecewise.Key) []byte {
	h1, h2 := murmur3.Sum128WithSeed([]byte(k.String()), keySeed)
	key := make([]byte, len(KeyPrefixPoly)+16)
	copy(key, KeyPrefixPoly)
	binary.BigEndian.PutUint64(key[len(KeyPrefixPoly):], h1)
	binary.BigEndian.PutUint64(key[len(KeyPrefixPoly)+8:], h2)
	return key
}
