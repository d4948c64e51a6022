package vmath

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0, 0}, []float32{1, 0, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Cosine(c.a, c.b)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3,4]) = %v, want [0.6, 0.8]", v)
	}

	zero := Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 {
			t.Errorf("Normalize(zero) = %v, want all zero", zero)
		}
	}
}

func TestDotAndL2Sq(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}

	if got := Dot(a, b); got != 32 {
		t.Errorf("Dot = %v, want 32", got)
	}

	if got := L2Sq(a, b); got != 27 {
		t.Errorf("L2Sq = %v, want 27", got)
	}
}

func TestFinite(t *testing.T) {
	if !Finite([]float32{1, 2, 3}) {
		t.Error("Finite should be true for ordinary values")
	}
	if Finite([]float32{1, float32(math.NaN())}) {
		t.Error("Finite should be false for NaN")
	}
	if Finite([]float32{1, float32(math.Inf(1))}) {
		t.Error("Finite should be false for Inf")
	}
}
