package utils

func float64Ptr(v float64) *float64 {
	return &v
}

// BuiltinScripts returns the scripts available when no config directory
// is given: the raw NDVI index, an NDVI colour map and an NDSI snow mask.
func BuiltinScripts() *Config {
	return &Config{
		Scripts: []Script{
			{
				Name:     "ndvi",
				Title:    "Normalised Difference Vegetation Index",
				Abstract: "Raw (B08 - B04) / (B08 + B04).",
				Input:    []string{"B04", "B08", "dataMask"},
				Formula:  Formula{Name: "NDVI"},
				Output:   Output{Bands: 1},
				Scale:    &Scale{Offset: 1, Scale: 127, Clip: 2},
				Palette: &Ramp{
					Mode: "interpolate",
					Entries: []Threshold{
						{Upper: float64Ptr(-0.2), Value: []float64{0.05, 0.05, 0.4}},
						{Upper: float64Ptr(0), Value: []float64{0.75, 0.75, 0.75}},
						{Upper: float64Ptr(0.3), Value: []float64{0.8, 0.7, 0.3}},
						{Upper: float64Ptr(0.6), Value: []float64{0.4, 0.7, 0.2}},
						{Upper: float64Ptr(1), Value: []float64{0, 0.3, 0}},
					},
				},
			},
			{
				Name:     "ndvi-color",
				Title:    "NDVI colour map",
				Abstract: "NDVI classified into black, white and blue.",
				Input:    []string{"B04", "B08", "dataMask"},
				Formula:  Formula{Name: "NDVI"},
				Ramp: &Ramp{
					Mode: "step",
					Entries: []Threshold{
						{Upper: float64Ptr(-1), Value: []float64{0, 0, 0}},
						{Upper: float64Ptr(0), Value: []float64{1, 1, 1}},
						{Upper: float64Ptr(1), Value: []float64{0, 0, 1}},
					},
				},
				Output: Output{Bands: 3},
			},
			{
				Name:     "ndsi",
				Title:    "Normalised Difference Snow Index",
				Abstract: "1 where (B03 - B11) / (B03 + B11) exceeds 0.42, -1 elsewhere.",
				Input:    []string{"B03", "B11", "dataMask"},
				Formula:  Formula{Name: "NDSI"},
				Ramp: &Ramp{
					Mode: "step",
					Entries: []Threshold{
						{Upper: float64Ptr(0.42), Value: []float64{-1}},
						{Value: []float64{1}},
					},
				},
				Output: Output{Bands: 1},
			},
		},
	}
}
