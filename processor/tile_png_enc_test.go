package processor

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"
)

func rgbTile() *PixelTile {
	return &PixelTile{
		Script: "rgb",
		Width:  2,
		Height: 1,
		Bands:  3,
		Data:   []float32{0, 0, 1, 0, 0, 0},
		Valid:  []bool{true, false},
	}
}

func TestRenderTile(t *testing.T) {
	img := RenderTile(rgbTile(), &Script{})
	if c := img.RGBAAt(0, 0); c != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("pixel 0 = %v, expecting blue", c)
	}
	if c := img.RGBAAt(1, 0); c.A != 0 {
		t.Errorf("masked pixel is not transparent: %v", c)
	}

	grey := &PixelTile{Width: 2, Height: 1, Bands: 1, Data: []float32{0.5, 0.2}, Valid: []bool{true, true}}
	img = RenderTile(grey, &Script{ScaleParams: ScaleParams{Offset: 0, Scale: 254, Clip: 1}})
	if c := img.RGBAAt(0, 0); c.R != 127 || c.G != 127 || c.A != 255 {
		t.Errorf("grey pixel = %v", c)
	}

	palette := make([]color.RGBA, 256)
	palette[127] = color.RGBA{10, 20, 30, 255}
	img = RenderTile(grey, &Script{ScaleParams: ScaleParams{Offset: 0, Scale: 254, Clip: 1}, Palette: palette})
	if c := img.RGBAAt(0, 0); c != palette[127] {
		t.Errorf("palette pixel = %v, expecting %v", c, palette[127])
	}
}

func TestScaleBand(t *testing.T) {
	tile := &PixelTile{Width: 4, Height: 1, Bands: 1, Data: []float32{-1, 0, 1, 5}, Valid: []bool{true, true, true, false}}
	br := ScaleBand(tile, 0, ScaleParams{Offset: 1, Scale: 127, Clip: 2})
	want := []uint8{0, 127, 254, 0xFF}
	for i, v := range want {
		if br.Data[i] != v {
			t.Errorf("byte %d = %d, expecting %d", i, br.Data[i], v)
		}
	}
}

func TestEncodeImage(t *testing.T) {
	second := rgbTile()
	second.OffY = 1
	tiles := []*PixelTile{rgbTile(), second}
	scripts := ScriptSet{"rgb": &Script{Name: "rgb"}}

	var buf bytes.Buffer
	if err := EncodeImage(&buf, tiles, scripts, FormatPNG); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Errorf("png bounds = %v", b)
	}
	if _, _, b, _ := img.At(0, 1).RGBA(); b != 0xFFFF {
		t.Errorf("second tile not drawn at its offset")
	}

	buf.Reset()
	if err := EncodeImage(&buf, tiles, scripts, FormatTIFF); err != nil {
		t.Fatalf("failed to encode tiff: %v", err)
	}
	if _, err := tiff.Decode(&buf); err != nil {
		t.Errorf("failed to decode tiff: %v", err)
	}

	if err := EncodeImage(&buf, tiles, scripts, ImageFormat("jpeg")); err == nil {
		t.Errorf("unsupported format accepted")
	}
	if err := EncodeImage(&buf, nil, scripts, FormatPNG); err == nil {
		t.Errorf("empty tile list accepted")
	}
	if err := EncodeImage(&buf, tiles, ScriptSet{}, FormatPNG); err == nil {
		t.Errorf("unknown script accepted")
	}
}

func TestImageEncoder(t *testing.T) {
	errChan := make(chan error, 1)
	enc := NewImageEncoder(ScriptSet{"rgb": &Script{Name: "rgb"}}, FormatPNG, errChan)
	go enc.Run()
	enc.In <- rgbTile()
	close(enc.In)

	data, ok := <-enc.Out
	if !ok {
		t.Fatalf("encoder failed: %v", <-errChan)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("output is not a png")
	}
}
