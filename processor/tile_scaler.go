package processor

// ScaleBand converts output band b of a tile to bytes: offset is added,
// the result clipped to [0, Clip] and multiplied by Scale. Masked pixels
// become 0xFF.
func ScaleBand(t *PixelTile, b int, params ScaleParams) *ByteRaster {
	out := &ByteRaster{Data: make([]uint8, t.Width*t.Height), Width: t.Width, Height: t.Height,
		OffX: t.OffX, OffY: t.OffY}

	offset := float32(params.Offset)
	clip := float32(params.Clip)
	scale := float32(params.Scale)
	for i, valid := range t.Valid {
		if !valid {
			out.Data[i] = 0xFF
			continue
		}
		value := t.Data[i*t.Bands+b] + offset
		if value > clip {
			value = clip
		}
		if value < 0 || value != value {
			value = 0
		}
		v := value * scale
		if v > 254 {
			v = 254
		}
		out.Data[i] = uint8(v)
	}
	return out
}
