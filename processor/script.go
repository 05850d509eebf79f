package processor

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/nci/evalpix/utils"
)

// Script is a compiled, read-only script ready for concurrent use.
type Script struct {
	Name        string
	Config      *utils.Script
	Processor   *PixelProcessor
	ScaleParams ScaleParams
	// Palette is nil when single band output renders as grey.
	Palette []color.RGBA
}

// ScriptSet maps qualified script names to compiled scripts.
type ScriptSet map[string]*Script

func (ss ScriptSet) Names() []string {
	names := make([]string, 0, len(ss))
	for k := range ss {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (ss ScriptSet) Lookup(name string) (*Script, error) {
	s, ok := ss[name]
	if !ok {
		return nil, fmt.Errorf("unknown script %q, available scripts are %v", name, ss.Names())
	}
	return s, nil
}

func compileFormula(f *utils.Formula) (IndexFormula, error) {
	sentinel := DefaultZeroDenominator
	if f.ZeroDenominator != nil {
		sentinel = *f.ZeroDenominator
	}

	switch {
	case len(f.Name) > 0:
		return LookupFormula(f.Name, sentinel)
	case len(f.Bands) == 2:
		return NewNormalizedDifference("", f.Bands[0], f.Bands[1], sentinel)
	case len(f.Expression) > 0:
		domain := UnboundedDomain
		if len(f.Domain) == 2 {
			domain = Domain{Min: f.Domain[0], Max: f.Domain[1]}
		}
		return NewExpressionFormula("", f.Expression, domain, sentinel)
	default:
		return nil, configErrorf("formula", "no formula name, bands or expression given")
	}
}

func compileRamp(r *utils.Ramp) (*ColorRamp, error) {
	mode, err := ParseRampMode(r.Mode)
	if err != nil {
		return nil, err
	}

	entries := make([]ThresholdEntry, len(r.Entries))
	for i, e := range r.Entries {
		upper := math.Inf(1)
		if e.Upper != nil {
			upper = *e.Upper
		}
		entries[i] = ThresholdEntry{UpperBound: upper, Value: e.Value}
	}
	return NewColorRamp(entries, mode)
}

// CompileScript turns a configured script into a PixelProcessor,
// rejecting any configuration that could fail once pixels flow.
func CompileScript(s *utils.Script) (*Script, error) {
	hasMask := false
	for _, in := range s.Input {
		if in == DataMaskBand {
			hasMask = true
		}
	}
	if !hasMask {
		return nil, configErrorf("input", "script %q must declare %s in its inputs", s.Name, DataMaskBand)
	}

	formula, err := compileFormula(&s.Formula)
	if err != nil {
		return nil, err
	}

	var ramp *ColorRamp
	if s.Ramp != nil {
		ramp, err = compileRamp(s.Ramp)
		if err != nil {
			return nil, err
		}
	}

	output, err := NewOutputSpec(s.Output.Bands, s.Output.NoData)
	if err != nil {
		return nil, err
	}

	proc, err := NewPixelProcessor(s.FullName(), s.Input, formula, ramp, output)
	if err != nil {
		return nil, err
	}

	scale := ScaleParams{Offset: 0, Scale: 254, Clip: 1}
	if s.Scale != nil {
		scale = ScaleParams{Offset: s.Scale.Offset, Scale: s.Scale.Scale, Clip: s.Scale.Clip}
	}
	var palette []color.RGBA
	if s.Palette != nil {
		pr, err := compileRamp(s.Palette)
		if err != nil {
			return nil, fmt.Errorf("palette: %w", err)
		}
		if pr.Width() < 3 {
			return nil, configErrorf("palette", "palette colours need 3 or 4 channels, got %d", pr.Width())
		}
		palette, err = GradientRGBAPalette(pr, scale)
		if err != nil {
			return nil, err
		}
	}

	return &Script{Name: s.FullName(), Config: s, Processor: proc, ScaleParams: scale, Palette: palette}, nil
}

// CompileScripts compiles every script of every config, failing on the
// first invalid one so nothing is processed with a broken config.
func CompileScripts(configMap map[string]*utils.Config) (ScriptSet, error) {
	ss := make(ScriptSet)
	for _, s := range utils.AllScripts(configMap) {
		compiled, err := CompileScript(s)
		if err != nil {
			return nil, fmt.Errorf("script %s: %w", s.FullName(), err)
		}
		ss[compiled.Name] = compiled
	}
	if len(ss) == 0 {
		return nil, fmt.Errorf("no scripts configured")
	}
	return ss, nil
}
