package game

import "testing"

func TestTierSpeed(t *testing.T) {
	tests := []struct {
		multiplier float64
		speed      float64
	}{
		{1.0, 1.0},
		{1.99, 1.0},
		{2.0, 1.2},
		{4.99, 1.2},
		{5.0, 1.5},
		{10.0, 2.0},
		{25.0, 2.5},
		{50.0, 3.0},
		{100.0, 4.0},
		{500.0, 4.0},
	}

	for _, tt := range tests {
		if got := TierSpeed(tt.multiplier); got != tt.speed {
			t.Errorf("TierSpeed(%v) = %v, want %v", tt.multiplier, got, tt.speed)
		}
	}
}

func TestNextMultiplierStartsAtOne(t *testing.T) {
	if got := NextMultiplier(1.0, 0); got != 1.0 {
		t.Errorf("multiplier at t=0 is %v, want 1.0", got)
	}
}

func TestNextMultiplierMonotonic(t *testing.T) {
	m := 1.0
	for i := 1; i <= 300; i++ {
		elapsed := float64(i) * 0.1
		next := NextMultiplier(m, elapsed)
		if next < m {
			t.Fatalf("multiplier decreased at t=%v: %v -> %v", elapsed, m, next)
		}
		m = next
	}
	if m <= 1.0 {
		t.Errorf("multiplier never grew past 1.0 after 30s")
	}
}

func TestNextMultiplierTwoDecimals(t *testing.T) {
	m := NextMultiplier(1.0, 5.78)
	cents := m * 100
	if cents != float64(int64(cents)) {
		t.Errorf("multiplier %v not truncated to two decimals", m)
	}
}
