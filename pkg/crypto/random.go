package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
)

// SecureFloat64 returns a uniform random value in [0, 1) from the
// system CSPRNG. Crash points must be unpredictable to clients, so
// math/rand is not acceptable here.
func SecureFloat64() (float64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	n := binary.BigEndian.Uint64(b[:])
	// 53 mantissa bits, same construction as math/rand.Float64.
	return float64(n>>11) / (1 << 53), nil
}

// SecureToken returns n random bytes, hex encoded.
func SecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
