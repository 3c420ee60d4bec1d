package pitch

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestCenters(t *testing.T) {
	if got, want := Center(0), 1200*math.Log2(32.7/10); got != want {
		t.Errorf("Center(0) = %v, want %v", got, want)
	}
	if got, want := Center(Bins-1), 1200*math.Log2(1975.5/10); math.Abs(got-want) > 1e-9 {
		t.Errorf("Center(359) = %v, want %v", got, want)
	}
	// Just under 20 cents per bin.
	if step := Center(1) - Center(0); math.Abs(step-20) > 0.25 {
		t.Errorf("bin step = %v cents", step)
	}
}

func TestDecode_SingleBin(t *testing.T) {
	for _, i := range []int{0, 1, 59, 180, 250, 359} {
		bins := make([]float32, Bins)
		bins[i] = 0.8

		got, err := Decode(bins)
		if err != nil {
			t.Fatalf("bin %d: %v", i, err)
		}
		want := 10 * math.Exp2(Center(i)/1200)
		if rel := math.Abs(got.Hz-want) / want; rel > 1e-6 {
			t.Errorf("bin %d: Hz = %v, want %v (rel %g)", i, got.Hz, want, rel)
		}
		if got.Confidence != float64(float32(0.8)) {
			t.Errorf("bin %d: confidence = %v", i, got.Confidence)
		}
	}
}

func TestDecode_ConfidenceIsMax(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		bins := make([]float32, Bins)
		var peak float32
		for i := range bins {
			bins[i] = r.Float32()
			peak = max(peak, bins[i])
		}
		got, err := Decode(bins)
		if err != nil {
			t.Fatal(err)
		}
		if got.Confidence != float64(peak) {
			t.Fatalf("confidence = %v, want %v", got.Confidence, peak)
		}
	}
}

func TestDecode_Centroid(t *testing.T) {
	// Equal mass in two neighbouring bins lands halfway between them.
	bins := make([]float32, Bins)
	bins[100] = 0.5
	bins[101] = 0.5
	got, err := Decode(bins)
	if err != nil {
		t.Fatal(err)
	}
	want := (Center(100) + Center(101)) / 2
	if math.Abs(got.Cents-want) > 1e-9 {
		t.Errorf("cents = %v, want %v", got.Cents, want)
	}

	// Octave ambiguity pulls the estimate between the modes.
	bins = make([]float32, Bins)
	bins[100] = 1
	bins[160] = 1
	got, err = Decode(bins)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cents <= Center(100) || got.Cents >= Center(160) {
		t.Errorf("bimodal cents = %v, want between modes", got.Cents)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		bins []float32
	}{
		{"all zero", make([]float32, Bins)},
		{"short", make([]float32, 10)},
		{"nil", nil},
		{"nan", func() []float32 {
			b := make([]float32, Bins)
			b[3] = float32(math.NaN())
			return b
		}()},
		{"inf", func() []float32 {
			b := make([]float32, Bins)
			b[3] = float32(math.Inf(1))
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.bins)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
			if got != (Estimate{}) {
				t.Errorf("estimate = %+v, want zero", got)
			}
		})
	}
}

func TestHzCentsRoundTrip(t *testing.T) {
	for _, hz := range []float64{32.7, 110, 440, 1975.5} {
		if got := Hz(Cents(hz)); math.Abs(got-hz)/hz > 1e-12 {
			t.Errorf("Hz(Cents(%v)) = %v", hz, got)
		}
	}
	if got := Cents(10); got != 0 {
		t.Errorf("Cents(10) = %v, want 0", got)
	}
}
