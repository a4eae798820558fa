package main

import "testing"

func TestSweepAngles(t *testing.T) {
	angles := sweepAngles(45)
	want := []float64{0, 45, 90, 135, 180, 135, 90, 45, 0}
	if len(angles) != len(want) {
		t.Fatalf("angles=%v want %v", angles, want)
	}
	for i := range want {
		if angles[i] != want[i] {
			t.Fatalf("angles[%d]=%v want %v (full: %v)", i, angles[i], want[i], angles)
		}
	}
}

func TestSweepAngles_DefaultsStep(t *testing.T) {
	angles := sweepAngles(0)
	if len(angles) == 0 {
		t.Fatalf("empty sweep")
	}
	if angles[0] != 0 || angles[len(angles)-1] != 0 {
		t.Fatalf("sweep should start and end at 0: %v", angles)
	}
	max := 0.0
	for _, a := range angles {
		if a > max {
			max = a
		}
	}
	if max != 180 {
		t.Fatalf("sweep peak=%v want 180", max)
	}
}
