package game

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"tonrush/pkg/crypto"
)

// CrashPointFrom maps a uniform value r in [0,1) to a crash point.
// A slice of probability mass equal to houseEdge crashes instantly at
// 1.00; the rest follows an inverse-uniform distribution truncated to
// two decimals and capped at maxMultiplier, so the expected player
// return over many rounds approaches 1-houseEdge.
func CrashPointFrom(r, houseEdge, maxMultiplier float64) float64 {
	if r < houseEdge {
		return 1.0
	}

	// The epsilon keeps the floor from eating a whole cent when 1-r
	// lands just above its exact value (0.99/(1-0.99) is 98.999... in
	// float64, not 99).
	x := math.Floor(0.99/(1-r)*100+1e-9) / 100
	return math.Max(1.0, math.Min(maxMultiplier, x))
}

// Draw samples a crash point from the system CSPRNG.
func Draw(houseEdge, maxMultiplier float64) (float64, error) {
	r, err := crypto.SecureFloat64()
	if err != nil {
		return 0, err
	}
	return CrashPointFrom(r, houseEdge, maxMultiplier), nil
}

// RoundHash is the commitment published when a round is created: it
// binds the round id to the hidden crash point so the draw can be
// checked once the round is over.
func RoundHash(roundID string, crashPoint float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.2f", roundID, crashPoint)))
	return hex.EncodeToString(sum[:])
}
