package delivery

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_Delay_Bounds(t *testing.T) {
	b := NewBackoff()

	tests := []struct {
		name       string
		retryIndex int
		min        time.Duration
		max        time.Duration
	}{
		{
			name:       "first retry",
			retryIndex: 0,
			min:        60 * time.Second,
			max:        90 * time.Second, // 60s + 0.5*60s jitter
		},
		{
			name:       "second retry",
			retryIndex: 1,
			min:        120 * time.Second,
			max:        180 * time.Second,
		},
		{
			name:       "third retry",
			retryIndex: 2,
			min:        240 * time.Second,
			max:        360 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				d := b.Delay(tt.retryIndex)
				if d < tt.min || d > tt.max {
					t.Fatalf("Delay(%d) = %v, want within [%v, %v]",
						tt.retryIndex, d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestBackoff_Delay_ClampsToMax(t *testing.T) {
	b := NewBackoff()

	// 60s * 2^4 = 960s, already past the 600s ceiling.
	for _, idx := range []int{4, 5, 10, 100} {
		if d := b.Delay(idx); d != backoffMax {
			t.Errorf("Delay(%d) = %v, want clamp to %v", idx, d, backoffMax)
		}
	}
}

func TestBackoff_Delay_NegativeIndex(t *testing.T) {
	b := NewBackoff()

	d := b.Delay(-3)
	if d < 60*time.Second || d > 90*time.Second {
		t.Errorf("Delay(-3) = %v, want treated as index 0", d)
	}
}

func TestBackoff_Delay_Deterministic(t *testing.T) {
	a := NewBackoffWithSource(rand.NewSource(1))
	b := NewBackoffWithSource(rand.NewSource(1))

	for i := 0; i < 4; i++ {
		if da, db := a.Delay(i), b.Delay(i); da != db {
			t.Errorf("same seed diverged at index %d: %v vs %v", i, da, db)
		}
	}
}

func TestBackoff_Delay_GrowsWithIndex(t *testing.T) {
	b := NewBackoff()

	// Worst case of index n (raw*1.5) is still below the best case of
	// index n+1 (raw*2), so delays are strictly ordered until the clamp.
	if d0, d1 := b.Delay(0), b.Delay(1); d0 >= d1 {
		t.Errorf("expected Delay(0) < Delay(1), got %v >= %v", d0, d1)
	}
	if d1, d2 := b.Delay(1), b.Delay(2); d1 >= d2 {
		t.Errorf("expected Delay(1) < Delay(2), got %v >= %v", d1, d2)
	}
}
