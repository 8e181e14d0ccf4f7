package game

import (
	"testing"
)

func TestCrashPointFromKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		r        float64
		expected float64
	}{
		{"house edge instant crash", 0.01, 1.00},
		{"median draw", 0.50, 1.98},
		{"long tail", 0.99, 99.00},
		{"just above edge", 0.03, 1.02},
		{"zero clamps to floor", 0.0, 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CrashPointFrom(tt.r, 0.03, 1000)
			if got != tt.expected {
				t.Errorf("CrashPointFrom(%v) = %v, want %v", tt.r, got, tt.expected)
			}
		})
	}
}

func TestCrashPointCappedAtMaxMultiplier(t *testing.T) {
	got := CrashPointFrom(0.9999999, 0.03, 1000)
	if got != 1000 {
		t.Errorf("expected cap at 1000, got %v", got)
	}
}

func TestInstantCrashFraction(t *testing.T) {
	const houseEdge = 0.03
	const steps = 10000

	instant := 0
	for i := 0; i < steps; i++ {
		r := float64(i) / steps
		cp := CrashPointFrom(r, houseEdge, 1000)
		if cp < 1.0 {
			t.Fatalf("crash point %v below 1.0 for r=%v", cp, r)
		}
		if cp == 1.0 {
			instant++
		}
	}

	fraction := float64(instant) / steps
	if fraction < houseEdge-0.005 || fraction > houseEdge+0.005 {
		t.Errorf("instant crash fraction %v, want ~%v", fraction, houseEdge)
	}
}

func TestDrawWithinBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		cp, err := Draw(0.03, 1000)
		if err != nil {
			t.Fatalf("draw failed: %v", err)
		}
		if cp < 1.0 || cp > 1000 {
			t.Errorf("crash point %v out of [1, 1000]", cp)
		}
	}
}

func TestRoundHashDeterministic(t *testing.T) {
	a := RoundHash("round-1", 2.37)
	b := RoundHash("round-1", 2.37)
	if a != b {
		t.Errorf("same inputs gave different hashes")
	}
	if len(a) != 64 {
		t.Errorf("hash length %d, want 64", len(a))
	}
	if RoundHash("round-1", 2.38) == a {
		t.Errorf("different crash points gave the same hash")
	}
}
