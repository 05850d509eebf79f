package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	black = []float64{0, 0, 0}
	white = []float64{1, 1, 1}
	blue  = []float64{0, 0, 1}
)

func threeColourRamp(t *testing.T, mode RampMode) *ColorRamp {
	ramp, err := NewColorRamp([]ThresholdEntry{
		{UpperBound: -1, Value: black},
		{UpperBound: 0, Value: white},
		{UpperBound: 1, Value: blue},
	}, mode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}
	return ramp
}

func TestStepClassify(t *testing.T) {
	ramp := threeColourRamp(t, StepMode)

	cases := []struct {
		v    float64
		want []float64
	}{
		{-5, black},
		{-1, black},
		{-0.5, white},
		{0, white},
		{0.6667, blue},
		{1, blue},
		{3, blue},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, ramp.Classify(c.v)); diff != "" {
			t.Errorf("Classify(%v) mismatch (-want +got):\n%s", c.v, diff)
		}
	}
}

func TestStepMonotonic(t *testing.T) {
	ramp, err := NewColorRamp([]ThresholdEntry{
		{UpperBound: -0.5, Value: []float64{0}},
		{UpperBound: 0, Value: []float64{1}},
		{UpperBound: 0.2, Value: []float64{2}},
		{UpperBound: 0.7, Value: []float64{3}},
		{UpperBound: math.Inf(1), Value: []float64{4}},
	}, StepMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}

	prev := -1
	for v := -2.0; v <= 2.0; v += 0.01 {
		idx := ramp.Match(v)
		if idx < prev {
			t.Fatalf("Match(%v) = %d after %d", v, idx, prev)
		}
		prev = idx
	}
}

func TestCatchAllIsTotal(t *testing.T) {
	ramp, err := NewColorRamp([]ThresholdEntry{
		{UpperBound: 0.42, Value: []float64{-1}},
		{UpperBound: math.Inf(1), Value: []float64{1}},
	}, StepMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}
	if !ramp.Covers(UnboundedDomain) {
		t.Errorf("catch-all ramp does not cover the unbounded domain")
	}

	for _, v := range []float64{-math.MaxFloat64, -1e9, 0, 0.42, 0.4200001, 1e9, math.MaxFloat64} {
		out := ramp.Classify(v)
		if len(out) != 1 || (out[0] != 1 && out[0] != -1) {
			t.Errorf("Classify(%v) = %v", v, out)
		}
	}
	if got := ramp.Classify(0.42)[0]; got != -1 {
		t.Errorf("Classify(0.42) = %v, expecting -1", got)
	}
}

func TestInterpolateClassify(t *testing.T) {
	ramp := threeColourRamp(t, InterpolateMode)
	approx := cmpopts.EquateApprox(0, 1e-12)

	cases := []struct {
		v    float64
		want []float64
	}{
		{-3, black},
		{-1, black},
		{-0.5, []float64{0.5, 0.5, 0.5}},
		{-0.25, []float64{0.75, 0.75, 0.75}},
		{0, white},
		{0.5, []float64{0.5, 0.5, 1}},
		{1, blue},
		{7, blue},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, ramp.Classify(c.v), approx); diff != "" {
			t.Errorf("Classify(%v) mismatch (-want +got):\n%s", c.v, diff)
		}
	}
}

func TestInterpolateExactBoundaries(t *testing.T) {
	entries := []ThresholdEntry{
		{UpperBound: -0.3, Value: []float64{0.1, 0.2, 0.3}},
		{UpperBound: 0.1, Value: []float64{0.9, 0.4, 0.0}},
		{UpperBound: 0.7, Value: []float64{0.3, 0.3, 0.8}},
		{UpperBound: 1.3, Value: []float64{0.0, 1.0, 0.5}},
	}
	ramp, err := NewColorRamp(entries, InterpolateMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}
	for _, e := range entries {
		if diff := cmp.Diff(e.Value, ramp.Classify(e.UpperBound)); diff != "" {
			t.Errorf("Classify(%v) at a boundary mismatch (-want +got):\n%s", e.UpperBound, diff)
		}
	}
}

func TestInterpolateCatchAll(t *testing.T) {
	ramp, err := NewColorRamp([]ThresholdEntry{
		{UpperBound: 0, Value: black},
		{UpperBound: math.Inf(1), Value: white},
	}, InterpolateMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}
	if diff := cmp.Diff(white, ramp.Classify(12)); diff != "" {
		t.Errorf("Classify(12) mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpolateBelowNegativeInfinity(t *testing.T) {
	entries := []ThresholdEntry{
		{UpperBound: math.Inf(-1), Value: black},
		{UpperBound: 0, Value: white},
		{UpperBound: 1, Value: blue},
	}
	step, err := NewColorRamp(entries, StepMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}
	interp, err := NewColorRamp(entries, InterpolateMode)
	if err != nil {
		t.Fatalf("failed to build ramp: %v", err)
	}

	for _, v := range []float64{-1e9, -5, -0.5, 0} {
		if diff := cmp.Diff(white, interp.Classify(v)); diff != "" {
			t.Errorf("Classify(%v) mismatch (-want +got):\n%s", v, diff)
		}
		if diff := cmp.Diff(step.Classify(v), interp.Classify(v)); diff != "" {
			t.Errorf("Classify(%v) differs between modes (-step +interpolate):\n%s", v, diff)
		}
	}
	if diff := cmp.Diff(black, interp.Classify(math.Inf(-1))); diff != "" {
		t.Errorf("Classify(-Inf) mismatch (-want +got):\n%s", diff)
	}
}

func TestNewColorRampInvalid(t *testing.T) {
	cases := map[string][]ThresholdEntry{
		"empty":      {},
		"unsorted":   {{UpperBound: 1, Value: black}, {UpperBound: 0, Value: white}},
		"duplicate":  {{UpperBound: 0, Value: black}, {UpperBound: 0, Value: white}},
		"ragged":     {{UpperBound: 0, Value: black}, {UpperBound: 1, Value: []float64{1}}},
		"no value":   {{UpperBound: 0}},
		"nan bound":  {{UpperBound: math.NaN(), Value: black}},
		"nan colour": {{UpperBound: 0, Value: []float64{math.NaN(), 0, 0}}},
	}
	for name, entries := range cases {
		_, err := NewColorRamp(entries, StepMode)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expecting a config error, got %v", name, err)
		}
	}
}

func TestRampIsImmutable(t *testing.T) {
	value := []float64{0.2, 0.4, 0.6}
	ramp, _ := NewColorRamp([]ThresholdEntry{{UpperBound: math.Inf(1), Value: value}}, StepMode)
	value[0] = 1

	out := ramp.Classify(0)
	if out[0] != 0.2 {
		t.Errorf("ramp changed with its input slice: %v", out)
	}
	out[1] = 1
	if ramp.Classify(0)[1] != 0.4 {
		t.Errorf("ramp changed through a classification result")
	}
}

func TestGradientRGBAPalette(t *testing.T) {
	ramp := threeColourRamp(t, InterpolateMode)
	lut, err := GradientRGBAPalette(ramp, ScaleParams{Offset: 1, Scale: 127, Clip: 2})
	if err != nil {
		t.Fatalf("failed to build palette: %v", err)
	}
	if len(lut) != 256 {
		t.Fatalf("palette has %d colours", len(lut))
	}
	if lut[0].R != 0 || lut[0].B != 0 {
		t.Errorf("palette starts with %v, expecting black", lut[0])
	}
	if lut[127].R != 255 || lut[127].G != 255 || lut[127].B != 255 {
		t.Errorf("palette middle is %v, expecting white", lut[127])
	}
	if lut[254].R != 0 || lut[254].B != 255 {
		t.Errorf("palette end is %v, expecting blue", lut[254])
	}

	if _, err := GradientRGBAPalette(ramp, ScaleParams{}); err == nil {
		t.Errorf("zero scale accepted")
	}
}
