package processor

import (
	"math"
)

// PixelState names the stages a pixel passes through in Process.
type PixelState int

const (
	StateStart PixelState = iota
	StateMaskChecked
	StateInvalid
	StateEvaluated
	StateClassified
	StatePacked
	StateDone
)

var pixelStateNames = [...]string{"Start", "MaskChecked", "Invalid", "Evaluated", "Classified", "Packed", "Done"}

func (s PixelState) String() string {
	if int(s) < len(pixelStateNames) {
		return pixelStateNames[s]
	}
	return "Unknown"
}

// PixelProcessor evaluates one script against single pixels. All of its
// configuration is fixed at construction, so one instance can be shared
// by any number of goroutines.
type PixelProcessor struct {
	Name    string
	Inputs  []string
	Formula IndexFormula
	// Ramp is nil for scripts emitting the raw index.
	Ramp   *ColorRamp
	Output OutputSpec
}

// NewPixelProcessor validates that the parts of a script fit together:
// the formula only reads declared inputs and the ramp covers the
// formula's domain.
func NewPixelProcessor(name string, inputs []string, formula IndexFormula, ramp *ColorRamp, output OutputSpec) (*PixelProcessor, error) {
	if formula == nil {
		return nil, configErrorf("formula", "script %q has no formula", name)
	}
	if output.Bands < 1 || output.Bands > MaxOutputBands || len(output.NoData) != output.Bands {
		return nil, configErrorf("output", "script %q has an invalid output spec, use NewOutputSpec", name)
	}

	declared := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		declared[in] = struct{}{}
	}
	if len(inputs) > 0 {
		for _, b := range formula.Bands() {
			if _, ok := declared[b]; !ok {
				return nil, configErrorf("input", "script %q: formula %s references band %q which is not declared in inputs %v", name, formula.Name(), b, inputs)
			}
		}
	}

	if ramp != nil && !ramp.Covers(formula.Domain()) {
		return nil, configErrorf("ramp", "script %q: ramp does not cover the formula domain up to %v, add a catch-all entry", name, formula.Domain().Max)
	}

	in := make([]string, len(inputs))
	copy(in, inputs)
	return &PixelProcessor{Name: name, Inputs: in, Formula: formula, Ramp: ramp, Output: output}, nil
}

// Width is the number of values the classifier stage yields per pixel.
func (p *PixelProcessor) Width() int {
	if p.Ramp == nil {
		return 1
	}
	return p.Ramp.Width()
}

// Layout describes each packed output band.
func (p *PixelProcessor) Layout() []BandSemantic {
	return p.Output.Layout(p.Width(), p.Ramp == nil)
}

// RequiredBands lists the bands a sample must carry, without dataMask.
func (p *PixelProcessor) RequiredBands() []string {
	return p.Formula.Bands()
}

// Process runs one pixel to completion and returns a new vector of
// Output.Bands values.
func (p *PixelProcessor) Process(s Sample) ([]float64, error) {
	out := make([]float64, p.Output.Bands)
	_, err := p.ProcessInto(out, s)
	return out, err
}

// ProcessInto packs the result into dst, which must hold Output.Bands
// values, and returns the state the pixel ended in before Done. A masked
// pixel ends in Invalid and never has its bands read.
func (p *PixelProcessor) ProcessInto(dst []float64, s Sample) (PixelState, error) {
	state := StateStart
	var index float64
	var classified []float64
	var scratch [MaxOutputBands]float64

	for {
		switch state {
		case StateStart:
			state = StateMaskChecked

		case StateMaskChecked:
			if !IsValid(s.DataMask()) {
				state = StateInvalid
				continue
			}
			v, err := p.Formula.Evaluate(s)
			if err != nil {
				return StateMaskChecked, err
			}
			index = v
			state = StateEvaluated

		case StateInvalid:
			copy(dst, p.Output.NoData)
			return StateInvalid, nil

		case StateEvaluated:
			// Built-in formulas already substitute their sentinel.
			if math.IsNaN(index) || math.IsInf(index, 0) {
				index = DefaultZeroDenominator
			}
			if p.Ramp == nil {
				scratch[0] = index
				classified = scratch[:1]
			} else if p.Ramp.Width() <= MaxOutputBands {
				classified = scratch[:p.Ramp.Width()]
				p.Ramp.classifyInto(classified, index)
			} else {
				classified = p.Ramp.Classify(index)
			}
			state = StateClassified

		case StateClassified:
			p.pack(dst, classified, s.DataMask())
			state = StatePacked

		case StatePacked:
			state = StateDone

		case StateDone:
			return StatePacked, nil
		}
	}
}

// pack truncates wider classifications and pads narrower ones with zeros,
// placing the mask value in the final band.
func (p *PixelProcessor) pack(dst, classified []float64, mask float64) {
	n := copy(dst[:p.Output.Bands], classified)
	if n == p.Output.Bands {
		return
	}
	for i := n; i < p.Output.Bands; i++ {
		dst[i] = 0
	}
	dst[p.Output.Bands-1] = mask
}
