package processor

import (
	"fmt"
	"image/color"
	"math"
)

// RampMode selects how a ColorRamp turns a matched entry into output.
type RampMode int

const (
	// StepMode returns the matched entry's value unchanged.
	StepMode RampMode = iota
	// InterpolateMode blends between the matched entry and its predecessor.
	// Below a -Inf predecessor there is nothing to blend from, so the
	// matched entry is returned as in StepMode.
	InterpolateMode
)

func (m RampMode) String() string {
	if m == InterpolateMode {
		return "interpolate"
	}
	return "step"
}

// ParseRampMode accepts "step" (or empty) and "interpolate".
func ParseRampMode(s string) (RampMode, error) {
	switch s {
	case "", "step":
		return StepMode, nil
	case "interpolate", "interpolated":
		return InterpolateMode, nil
	default:
		return StepMode, configErrorf("ramp.mode", "unknown ramp mode %q", s)
	}
}

// ThresholdEntry maps every value up to and including UpperBound, and
// above the previous entry's bound, to Value.
type ThresholdEntry struct {
	UpperBound float64
	Value      []float64
}

// ColorRamp is an ordered threshold table. It is immutable once built
// and safe to share between goroutines.
type ColorRamp struct {
	entries []ThresholdEntry
	mode    RampMode
	width   int
}

// NewColorRamp checks that bounds are strictly increasing and that every
// entry has the same number of channels.
func NewColorRamp(entries []ThresholdEntry, mode RampMode) (*ColorRamp, error) {
	if len(entries) == 0 {
		return nil, configErrorf("ramp.entries", "ramp must contain at least one entry")
	}

	width := len(entries[0].Value)
	if width == 0 {
		return nil, configErrorf("ramp.entries", "entry 0 has no output value")
	}

	cp := make([]ThresholdEntry, len(entries))
	for i, e := range entries {
		if math.IsNaN(e.UpperBound) {
			return nil, configErrorf("ramp.entries", "entry %d has a NaN upper bound", i)
		}
		if len(e.Value) != width {
			return nil, configErrorf("ramp.entries", "entry %d has %d channels, expected %d", i, len(e.Value), width)
		}
		if i > 0 && !(e.UpperBound > entries[i-1].UpperBound) {
			return nil, configErrorf("ramp.entries", "upper bounds must be strictly increasing: entry %d (%v) follows %v", i, e.UpperBound, entries[i-1].UpperBound)
		}
		for c, v := range e.Value {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, configErrorf("ramp.entries", "entry %d channel %d is not finite", i, c)
			}
		}

		val := make([]float64, width)
		copy(val, e.Value)
		cp[i] = ThresholdEntry{UpperBound: e.UpperBound, Value: val}
	}

	return &ColorRamp{entries: cp, mode: mode, width: width}, nil
}

func (r *ColorRamp) Mode() RampMode {
	return r.mode
}

// Width is the number of channels every classification returns.
func (r *ColorRamp) Width() int {
	return r.width
}

// Entries returns a copy of the threshold table.
func (r *ColorRamp) Entries() []ThresholdEntry {
	out := make([]ThresholdEntry, len(r.entries))
	for i, e := range r.entries {
		val := make([]float64, len(e.Value))
		copy(val, e.Value)
		out[i] = ThresholdEntry{UpperBound: e.UpperBound, Value: val}
	}
	return out
}

// Covers reports whether every value of d has a matching entry, i.e.
// the last upper bound is at least d.Max.
func (r *ColorRamp) Covers(d Domain) bool {
	return r.entries[len(r.entries)-1].UpperBound >= d.Max
}

// Match returns the index of the first entry whose upper bound is at
// least v. Values above every bound match the last entry; NaN matches
// the first.
func (r *ColorRamp) Match(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	for i, e := range r.entries {
		if v <= e.UpperBound {
			return i
		}
	}
	return len(r.entries) - 1
}

// Classify maps v to an output vector of Width channels. The returned
// slice is freshly allocated.
func (r *ColorRamp) Classify(v float64) []float64 {
	out := make([]float64, r.width)
	r.classifyInto(out, v)
	return out
}

func (r *ColorRamp) classifyInto(dst []float64, v float64) {
	idx := r.Match(v)
	e := r.entries[idx]

	if r.mode == StepMode || idx == 0 || v >= e.UpperBound || math.IsInf(e.UpperBound, 1) ||
		math.IsInf(r.entries[idx-1].UpperBound, -1) {
		copy(dst, e.Value)
		return
	}

	prev := r.entries[idx-1]

	t := (v - prev.UpperBound) / (e.UpperBound - prev.UpperBound)
	for c := range dst {
		dst[c] = InterpolateChannel(prev.Value[c], e.Value[c], t)
	}
}

// InterpolateChannel blends a towards b by t in [0, 1].
func InterpolateChannel(a, b, t float64) float64 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return a + t*(b-a)
}

func channelToUint8(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// ToRGBA converts a classification of up to four [0, 1] channels into an
// opaque colour. One channel is rendered as grey.
func ToRGBA(v []float64) color.RGBA {
	switch len(v) {
	case 0:
		return color.RGBA{}
	case 1, 2:
		g := channelToUint8(v[0])
		return color.RGBA{g, g, g, 255}
	case 3:
		return color.RGBA{channelToUint8(v[0]), channelToUint8(v[1]), channelToUint8(v[2]), 255}
	default:
		return color.RGBA{channelToUint8(v[0]), channelToUint8(v[1]), channelToUint8(v[2]), channelToUint8(v[3])}
	}
}

// GradientRGBAPalette builds the 256 colour lookup table used to render
// byte-scaled single band tiles. Entry i colours the value that scales
// to byte i, i.e. i/Scale - Offset.
func GradientRGBAPalette(ramp *ColorRamp, params ScaleParams) ([]color.RGBA, error) {
	if ramp == nil {
		return nil, nil
	}
	if params.Scale <= 0 {
		return nil, fmt.Errorf("palette needs a positive scale, got %v", params.Scale)
	}

	lut := make([]color.RGBA, 256)
	for i := range lut {
		lut[i] = ToRGBA(ramp.Classify(float64(i)/params.Scale - params.Offset))
	}
	return lut, nil
}
