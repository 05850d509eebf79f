package processor

import (
	"math"
)

// DataMaskBand is the reserved input name carrying pixel validity.
const DataMaskBand = "dataMask"

// Sample is one pixel as seen by a PixelProcessor.
type Sample interface {
	Band(name string) (float64, bool)
	DataMask() float64
}

// PixelSample is an immutable Sample backed by a band map.
type PixelSample struct {
	bands    map[string]float64
	dataMask float64
}

// NewPixelSample copies bands so later changes to the map are not seen
// by the sample.
func NewPixelSample(bands map[string]float64, dataMask float64) PixelSample {
	cp := make(map[string]float64, len(bands))
	for k, v := range bands {
		cp[k] = v
	}
	return PixelSample{bands: cp, dataMask: dataMask}
}

func (s PixelSample) Band(name string) (float64, bool) {
	v, ok := s.bands[name]
	return v, ok
}

func (s PixelSample) DataMask() float64 {
	return s.dataMask
}

// IsValid reports whether a data mask value marks a usable pixel.
func IsValid(dataMask float64) bool {
	return dataMask != 0 && !math.IsNaN(dataMask)
}

// Domain is the closed interval a formula's output is expected to lie in.
type Domain struct {
	Min float64
	Max float64
}

var UnboundedDomain = Domain{Min: math.Inf(-1), Max: math.Inf(1)}

// BandSemantic describes what an output band carries.
type BandSemantic int

const (
	RawBand BandSemantic = iota
	ChannelBand
	MaskBand
	PaddingBand
)

func (b BandSemantic) String() string {
	switch b {
	case RawBand:
		return "raw"
	case ChannelBand:
		return "channel"
	case MaskBand:
		return "mask"
	default:
		return "padding"
	}
}

const MaxOutputBands = 4

// OutputSpec declares the width of the packed output vector and the
// vector emitted for invalid pixels.
type OutputSpec struct {
	Bands  int
	NoData []float64
}

// NewOutputSpec validates the band count and the optional no-data vector.
// A nil noData means all channels zero.
func NewOutputSpec(bands int, noData []float64) (OutputSpec, error) {
	if bands < 1 || bands > MaxOutputBands {
		return OutputSpec{}, configErrorf("output.bands", "band count must be between 1 and %d, got %d", MaxOutputBands, bands)
	}

	nd := make([]float64, bands)
	if noData != nil {
		if len(noData) != bands {
			return OutputSpec{}, configErrorf("output.no_data", "expected %d values, got %d", bands, len(noData))
		}
		for i, v := range noData {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return OutputSpec{}, configErrorf("output.no_data", "value %d must be finite, got %v", i, v)
			}
		}
		copy(nd, noData)
	}
	return OutputSpec{Bands: bands, NoData: nd}, nil
}

// Layout returns the meaning of each output band when the classifier
// produces width values per pixel.
func (o OutputSpec) Layout(width int, raw bool) []BandSemantic {
	layout := make([]BandSemantic, o.Bands)
	for i := range layout {
		switch {
		case i < width && raw:
			layout[i] = RawBand
		case i < width:
			layout[i] = ChannelBand
		case i == o.Bands-1:
			layout[i] = MaskBand
		default:
			layout[i] = PaddingBand
		}
	}
	return layout
}
