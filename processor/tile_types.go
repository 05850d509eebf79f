package processor

import (
	"fmt"
	"image/color"
	"time"
)

type ScaleParams struct {
	Offset float64
	Scale  float64
	Clip   float64
}

// BandTile is a block of input pixels with one float32 slice per band,
// row-major, Width*Height long.
type BandTile struct {
	Script     string               `json:"script"`
	Collection string               `json:"collection"`
	Height     int                  `json:"height"`
	Width      int                  `json:"width"`
	OffX       int                  `json:"off_x"`
	OffY       int                  `json:"off_y"`
	Bands      map[string][]float32 `json:"bands"`
	// DataMask is required by processors declaring dataMask as an input.
	// Otherwise a nil mask marks every pixel valid.
	DataMask  []float32 `json:"data_mask"`
	TimeStamp time.Time `json:"timestamp"`
	// Footprint is an optional GeoJSON feature describing the tile extent.
	Footprint string `json:"footprint"`
}

// Check verifies the tile carries every band p needs at the right size.
func (t *BandTile) Check(p *PixelProcessor) error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid tile size %dx%d", t.Width, t.Height)
	}
	size := t.Width * t.Height
	for _, b := range p.RequiredBands() {
		data, ok := t.Bands[b]
		if !ok {
			return missingBand(b)
		}
		if len(data) != size {
			return configErrorf(b, "band has %d values, tile needs %d", len(data), size)
		}
	}
	if t.DataMask == nil {
		for _, in := range p.Inputs {
			if in == DataMaskBand {
				return missingBand(DataMaskBand)
			}
		}
	} else if len(t.DataMask) != size {
		return configErrorf(DataMaskBand, "mask has %d values, tile needs %d", len(t.DataMask), size)
	}
	return nil
}

// tileSample exposes pixel idx of a BandTile as a Sample without copying.
type tileSample struct {
	tile *BandTile
	idx  int
}

func (s tileSample) Band(name string) (float64, bool) {
	data, ok := s.tile.Bands[name]
	if !ok || s.idx >= len(data) {
		return 0, false
	}
	return float64(data[s.idx]), true
}

func (s tileSample) DataMask() float64 {
	if s.tile.DataMask == nil {
		return 1
	}
	return float64(s.tile.DataMask[s.idx])
}

// PixelTile holds the packed output of a tile, pixel-interleaved:
// pixel i occupies Data[i*Bands : (i+1)*Bands].
type PixelTile struct {
	Script        string
	Collection    string
	Height, Width int
	OffX, OffY    int
	Bands         int
	Layout        []BandSemantic
	Data          []float32
	Valid         []bool
	TimeStamp     time.Time
	Footprint     string
}

// Pixel returns the output vector of pixel (x, y).
func (t *PixelTile) Pixel(x, y int) []float32 {
	i := (y*t.Width + x) * t.Bands
	return t.Data[i : i+t.Bands]
}

// Band extracts one output band as a row-major slice.
func (t *PixelTile) Band(b int) []float32 {
	out := make([]float32, t.Width*t.Height)
	for i := range out {
		out[i] = t.Data[i*t.Bands+b]
	}
	return out
}

// ByteRaster is a single band tile scaled for rendering. 0xFF marks no data.
type ByteRaster struct {
	Data          []uint8
	Height, Width int
	OffX, OffY    int
	Palette       []color.RGBA
}
