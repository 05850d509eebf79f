package processor

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizedDifferenceIndex(t *testing.T) {
	nd, err := NewNormalizedDifference("NDVI", "B08", "B04", DefaultZeroDenominator)
	if err != nil {
		t.Fatalf("failed to create formula: %v", err)
	}

	cases := []struct {
		a, b float64
	}{
		{0.5, 0.1},
		{0.1, 0.5},
		{0.3, 0.3},
		{1, 0},
		{0, 1},
		{0.0001, 0.9999},
		{-0.2, 0.7},
	}
	for _, c := range cases {
		got := nd.Index(c.a, c.b)
		want := (c.a - c.b) / (c.a + c.b)
		if got != want {
			t.Errorf("Index(%v, %v) = %v, expecting %v", c.a, c.b, got, want)
		}
		if c.a >= 0 && c.b >= 0 && (got < -1 || got > 1) {
			t.Errorf("Index(%v, %v) = %v is outside [-1, 1]", c.a, c.b, got)
		}
	}
}

func TestNormalizedDifferenceRange(t *testing.T) {
	nd, _ := NewNormalizedDifference("", "A", "B", DefaultZeroDenominator)
	for i := 0; i <= 20; i++ {
		for j := 0; j <= 20; j++ {
			v := nd.Index(float64(i)/20, float64(j)/20)
			if v < -1 || v > 1 || math.IsNaN(v) {
				t.Errorf("Index(%v, %v) = %v", float64(i)/20, float64(j)/20, v)
			}
		}
	}
}

func TestZeroDenominatorSentinel(t *testing.T) {
	for _, sentinel := range []float64{0, -1, 0.005} {
		nd, err := NewNormalizedDifference("", "B08", "B04", sentinel)
		if err != nil {
			t.Fatalf("failed to create formula: %v", err)
		}
		if got := nd.Index(0, 0); got != sentinel {
			t.Errorf("Index(0, 0) = %v, expecting sentinel %v", got, sentinel)
		}
		if got := nd.Index(0.3, -0.3); got != sentinel {
			t.Errorf("Index(0.3, -0.3) = %v, expecting sentinel %v", got, sentinel)
		}
		if got := nd.Index(math.NaN(), 0.1); got != sentinel {
			t.Errorf("Index(NaN, 0.1) = %v, expecting sentinel %v", got, sentinel)
		}
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewNormalizedDifference("", "B08", "B04", bad)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("sentinel %v accepted, expecting a config error, got %v", bad, err)
		}
	}
}

func TestNormalizedDifferenceMissingBand(t *testing.T) {
	nd, _ := NewNormalizedDifference("", "B08", "B04", 0)
	_, err := nd.Evaluate(NewPixelSample(map[string]float64{"B08": 0.5}, 1))
	if !errors.Is(err, ErrMissingBand) {
		t.Errorf("expecting ErrMissingBand, got %v", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "B04" {
		t.Errorf("expecting a config error naming B04, got %v", err)
	}
}

func TestExpressionFormula(t *testing.T) {
	evi, err := LookupFormula("evi", 0)
	if err != nil {
		t.Fatalf("failed to look up EVI: %v", err)
	}

	s := NewPixelSample(map[string]float64{"B02": 0.05, "B04": 0.1, "B08": 0.5}, 1)
	got, err := evi.Evaluate(s)
	if err != nil {
		t.Fatalf("failed to evaluate EVI: %v", err)
	}
	want := 2.5 * ((0.5 - 0.1) / (0.5 + 6*0.1 - 7.5*0.05 + 1))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("EVI = %v, expecting %v", got, want)
	}

	bands := evi.Bands()
	if len(bands) != 3 || bands[0] != "B02" || bands[1] != "B04" || bands[2] != "B08" {
		t.Errorf("EVI bands = %v", bands)
	}

	_, err = evi.Evaluate(NewPixelSample(map[string]float64{"B04": 0.1, "B08": 0.5}, 1))
	if !errors.Is(err, ErrMissingBand) {
		t.Errorf("expecting ErrMissingBand, got %v", err)
	}
}

func TestExpressionFormulaFallback(t *testing.T) {
	ef, err := NewExpressionFormula("", "(A - B) / (A + B)", UnboundedDomain, -1)
	if err != nil {
		t.Fatalf("failed to create expression: %v", err)
	}
	got, err := ef.Evaluate(NewPixelSample(map[string]float64{"A": 0, "B": 0}, 1))
	if err != nil {
		t.Fatalf("failed to evaluate: %v", err)
	}
	if got != -1 {
		t.Errorf("0/0 evaluated to %v, expecting fallback -1", got)
	}
}

func TestExpressionFormulaInvalid(t *testing.T) {
	for _, expr := range []string{"", "   ", "1 + 2", "(B08 - ", "B08 + dataMask"} {
		if _, err := NewExpressionFormula("", expr, UnboundedDomain, 0); err == nil {
			t.Errorf("expression %q accepted", expr)
		}
	}
}

func TestLookupFormula(t *testing.T) {
	for _, name := range NamedFormulas() {
		f, err := LookupFormula(name, 0)
		if err != nil {
			t.Errorf("LookupFormula(%s): %v", name, err)
			continue
		}
		if len(f.Bands()) < 2 {
			t.Errorf("%s uses bands %v", name, f.Bands())
		}
	}

	ndsi, _ := LookupFormula("NDSI", 0)
	if b := ndsi.Bands(); b[0] != "B03" || b[1] != "B11" {
		t.Errorf("NDSI bands = %v", b)
	}

	if _, err := LookupFormula("NOPE", 0); err == nil {
		t.Errorf("unknown formula accepted")
	}
}
