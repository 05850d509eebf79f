package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/tiff"
)

// RenderTile draws a processed tile. Single band tiles are byte scaled
// and coloured through the script palette, or grey without one. Two
// band tiles are grey plus alpha, three and four band tiles map their
// [0, 1] channels straight to RGB(A). Masked pixels stay transparent.
func RenderTile(t *PixelTile, script *Script) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))

	if t.Bands == 1 {
		br := ScaleBand(t, 0, script.ScaleParams)
		for i, v := range br.Data {
			if v == 0xFF {
				continue
			}
			var c color.RGBA
			if script.Palette != nil {
				c = script.Palette[v]
			} else {
				c = color.RGBA{v, v, v, 0xFF}
			}
			img.SetRGBA(i%t.Width, i/t.Width, c)
		}
		return img
	}

	vec := make([]float64, t.Bands)
	for i, valid := range t.Valid {
		if !valid {
			continue
		}
		for b := range vec {
			vec[b] = float64(t.Data[i*t.Bands+b])
		}
		c := ToRGBA(vec)
		if t.Bands == 2 {
			c.A = channelToUint8(vec[1])
		}
		img.SetRGBA(i%t.Width, i/t.Width, c)
	}
	return img
}

// composeCanvas places every tile at its offset, origin top left.
func composeCanvas(tiles []*PixelTile, scripts ScriptSet) (*image.RGBA, error) {
	canvasX := 0
	canvasY := 0
	for _, t := range tiles {
		if maxX := t.OffX + t.Width; maxX > canvasX {
			canvasX = maxX
		}
		if maxY := t.OffY + t.Height; maxY > canvasY {
			canvasY = maxY
		}
	}
	if canvasX == 0 || canvasY == 0 {
		return nil, fmt.Errorf("no tiles to encode")
	}

	dst := image.NewRGBA(image.Rect(0, 0, canvasX, canvasY))
	for _, t := range tiles {
		script, err := scripts.Lookup(t.Script)
		if err != nil {
			return nil, err
		}
		tile := RenderTile(t, script)
		draw.Draw(dst, image.Rect(t.OffX, t.OffY, t.OffX+t.Width, t.OffY+t.Height), tile, image.Point{}, draw.Src)
	}
	return dst, nil
}

type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatTIFF ImageFormat = "tiff"
)

// EncodeImage writes tiles as one PNG or TIFF image.
func EncodeImage(w io.Writer, tiles []*PixelTile, scripts ScriptSet, format ImageFormat) error {
	dst, err := composeCanvas(tiles, scripts)
	if err != nil {
		return err
	}

	switch format {
	case FormatPNG:
		return png.Encode(w, dst)
	case FormatTIFF:
		return tiff.Encode(w, dst, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("unsupported image format: %s", format)
	}
}

// ImageEncoder collects every tile of a request and emits one encoded
// image when In is closed.
type ImageEncoder struct {
	In      chan *PixelTile
	Out     chan []byte
	Error   chan error
	Scripts ScriptSet
	Format  ImageFormat
}

func NewImageEncoder(scripts ScriptSet, format ImageFormat, errChan chan error) *ImageEncoder {
	return &ImageEncoder{
		In:      make(chan *PixelTile, 100),
		Out:     make(chan []byte, 1),
		Error:   errChan,
		Scripts: scripts,
		Format:  format,
	}
}

func (enc *ImageEncoder) Run() {
	defer close(enc.Out)

	var tiles []*PixelTile
	for t := range enc.In {
		tiles = append(tiles, t)
	}

	buf := new(bytes.Buffer)
	if err := EncodeImage(buf, tiles, enc.Scripts, enc.Format); err != nil {
		enc.Error <- err
		return
	}
	enc.Out <- buf.Bytes()
}
