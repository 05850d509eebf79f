package pixelservice

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/nci/evalpix/processor"
	"google.golang.org/protobuf/types/known/structpb"
)

// Tiles travel as google.protobuf.Struct messages. Float32 rasters are
// packed little endian and base64 encoded so NaN survives the trip.

func packFloat32(data []float32) string {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func unpackFloat32(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("raster of %d bytes is not float32 aligned", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

func packBools(data []bool) string {
	buf := make([]byte, len(data))
	for i, v := range data {
		if v {
			buf[i] = 1
		}
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func unpackBools(s string) ([]bool, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(buf))
	for i, v := range buf {
		out[i] = v != 0
	}
	return out, nil
}

// fields wraps the field map of a Struct with typed accessors.
type fields map[string]*structpb.Value

func (f fields) str(key string) string {
	if v, ok := f[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func (f fields) num(key string) int {
	if v, ok := f[key]; ok {
		return int(v.GetNumberValue())
	}
	return 0
}

func (f fields) float(key string) float64 {
	if v, ok := f[key]; ok {
		return v.GetNumberValue()
	}
	return 0
}

func (f fields) time(key string) (time.Time, error) {
	s := f.str(key)
	if len(s) == 0 {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// EncodeBandTile converts an input tile into its wire message.
func EncodeBandTile(t *processor.BandTile) (*structpb.Struct, error) {
	bands := make(map[string]interface{}, len(t.Bands))
	for name, data := range t.Bands {
		bands[name] = packFloat32(data)
	}

	m := map[string]interface{}{
		"script":     t.Script,
		"collection": t.Collection,
		"width":      t.Width,
		"height":     t.Height,
		"off_x":      t.OffX,
		"off_y":      t.OffY,
		"timestamp":  formatTime(t.TimeStamp),
		"footprint":  t.Footprint,
		"bands":      bands,
	}
	if t.DataMask != nil {
		m["data_mask"] = packFloat32(t.DataMask)
	}
	return structpb.NewStruct(m)
}

// DecodeBandTile is the inverse of EncodeBandTile.
func DecodeBandTile(s *structpb.Struct) (*processor.BandTile, error) {
	if s == nil {
		return nil, fmt.Errorf("empty tile message")
	}
	f := fields(s.GetFields())

	ts, err := f.time("timestamp")
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %v", err)
	}

	t := &processor.BandTile{
		Script:     f.str("script"),
		Collection: f.str("collection"),
		Width:      f.num("width"),
		Height:     f.num("height"),
		OffX:       f.num("off_x"),
		OffY:       f.num("off_y"),
		TimeStamp:  ts,
		Footprint:  f.str("footprint"),
		Bands:      make(map[string][]float32),
	}

	if bv, ok := f["bands"]; ok {
		for name, v := range bv.GetStructValue().GetFields() {
			data, err := unpackFloat32(v.GetStringValue())
			if err != nil {
				return nil, fmt.Errorf("band %s: %v", name, err)
			}
			t.Bands[name] = data
		}
	}
	if mask, ok := f["data_mask"]; ok {
		t.DataMask, err = unpackFloat32(mask.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%s: %v", processor.DataMaskBand, err)
		}
	}
	return t, nil
}

// EncodePixelTile converts a processed tile and its summary into the
// response message. k may be nil.
func EncodePixelTile(t *processor.PixelTile, k *processor.KPISummary) (*structpb.Struct, error) {
	layout := make([]interface{}, len(t.Layout))
	for i, l := range t.Layout {
		layout[i] = l.String()
	}

	m := map[string]interface{}{
		"script":     t.Script,
		"collection": t.Collection,
		"width":      t.Width,
		"height":     t.Height,
		"off_x":      t.OffX,
		"off_y":      t.OffY,
		"bands":      t.Bands,
		"layout":     layout,
		"data":       packFloat32(t.Data),
		"valid":      packBools(t.Valid),
		"timestamp":  formatTime(t.TimeStamp),
		"footprint":  t.Footprint,
	}
	if k != nil {
		m["kpi"] = map[string]interface{}{
			"band":   k.Band,
			"count":  k.Count,
			"masked": k.Masked,
			"mean":   k.Mean,
			"min":    k.Min,
			"max":    k.Max,
			"std":    k.Std,
		}
	}
	return structpb.NewStruct(m)
}

var bandSemantics = map[string]processor.BandSemantic{
	processor.RawBand.String():     processor.RawBand,
	processor.ChannelBand.String(): processor.ChannelBand,
	processor.MaskBand.String():    processor.MaskBand,
	processor.PaddingBand.String(): processor.PaddingBand,
}

// DecodePixelTile is the inverse of EncodePixelTile. The summary is nil
// when the message carries none.
func DecodePixelTile(s *structpb.Struct) (*processor.PixelTile, *processor.KPISummary, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("empty result message")
	}
	f := fields(s.GetFields())

	ts, err := f.time("timestamp")
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timestamp: %v", err)
	}

	t := &processor.PixelTile{
		Script:     f.str("script"),
		Collection: f.str("collection"),
		Width:      f.num("width"),
		Height:     f.num("height"),
		OffX:       f.num("off_x"),
		OffY:       f.num("off_y"),
		Bands:      f.num("bands"),
		TimeStamp:  ts,
		Footprint:  f.str("footprint"),
	}

	if lv, ok := f["layout"]; ok {
		for _, v := range lv.GetListValue().GetValues() {
			sem, found := bandSemantics[v.GetStringValue()]
			if !found {
				return nil, nil, fmt.Errorf("unknown band semantic %q", v.GetStringValue())
			}
			t.Layout = append(t.Layout, sem)
		}
	}

	if t.Data, err = unpackFloat32(f.str("data")); err != nil {
		return nil, nil, fmt.Errorf("data: %v", err)
	}
	if t.Valid, err = unpackBools(f.str("valid")); err != nil {
		return nil, nil, fmt.Errorf("valid: %v", err)
	}
	size := t.Width * t.Height
	if len(t.Valid) != size || len(t.Data) != size*t.Bands {
		return nil, nil, fmt.Errorf("result of %d values for a %dx%dx%d tile", len(t.Data), t.Width, t.Height, t.Bands)
	}

	var k *processor.KPISummary
	if kv, ok := f["kpi"]; ok {
		kf := fields(kv.GetStructValue().GetFields())
		k = &processor.KPISummary{
			Script:     t.Script,
			Collection: t.Collection,
			TimeStamp:  t.TimeStamp,
			Footprint:  t.Footprint,
			Band:       kf.num("band"),
			Count:      kf.num("count"),
			Masked:     kf.num("masked"),
			Mean:       kf.float("mean"),
			Min:        kf.float("min"),
			Max:        kf.float("max"),
			Std:        kf.float("std"),
		}
	}
	return t, k, nil
}
