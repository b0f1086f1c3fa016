package numeric

import (
	"math"
	"testing"
)

func TestAutocorrelationMatchesDirect(t *testing.T) {
	x := []float64{1, -2, 3, 0.5, -1, 2, 0.25}
	got, err := Autocorrelation(x)
	if err != nil {
		t.Fatalf("Autocorrelation error: %v", err)
	}
	for k := range x {
		var want float64
		for i := 0; i+k < len(x); i++ {
			want += x[i] * x[i+k]
		}
		if math.Abs(got[k]-want) > 1e-3 {
			t.Fatalf("lag %d: got %f want %f", k, got[k], want)
		}
	}
}

func TestJensenShannonBounds(t *testing.T) {
	same := []float64{0.2, 0.3, 0.5}
	if d := JensenShannon(same, same); d > 1e-12 {
		t.Fatalf("JS(p,p) = %g, want 0", d)
	}
	disjoint := JensenShannon([]float64{1, 0}, []float64{0, 1})
	if math.Abs(disjoint-1) > 1e-9 {
		t.Fatalf("JS of disjoint = %f, want 1", disjoint)
	}
	if d := JensenShannon([]float64{0, 0}, []float64{0.5, 0.5}); d != 0 {
		t.Fatalf("JS with empty mass = %f, want 0", d)
	}
}

func TestPopVarianceAndMedian(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	if v := PopVariance(x); math.Abs(v-1.25) > 1e-12 {
		t.Fatalf("PopVariance = %f, want 1.25", v)
	}
	if m := Median(x); m != 2.5 {
		t.Fatalf("Median = %f, want 2.5", m)
	}
	if m := Median([]float64{5, 1, 3}); m != 3 {
		t.Fatalf("Median = %f, want 3", m)
	}
}

func TestClamp01HandlesNaN(t *testing.T) {
	if Clamp01(math.NaN()) != 0 {
		t.Fatal("NaN must clamp to 0")
	}
	if Clamp01(1.5) != 1 || Clamp01(-2) != 0 {
		t.Fatal("clamp bounds")
	}
}
