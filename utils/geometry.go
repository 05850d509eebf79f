package utils

import (
	"encoding/json"
	"fmt"

	geo "github.com/nci/geometry"
)

// EmptyFootprint is the WKT recorded for tiles without a footprint.
const EmptyFootprint = "POLYGON EMPTY"

// FootprintWKT converts a GeoJSON feature into WKT. An empty footprint
// gives EmptyFootprint.
func FootprintWKT(footprint string) (string, error) {
	if len(footprint) == 0 {
		return EmptyFootprint, nil
	}

	var feat geo.Feature
	if err := json.Unmarshal([]byte(footprint), &feat); err != nil {
		return "", fmt.Errorf("Problem unmarshalling GeoJSON object: %v", err)
	}
	if feat.Geometry == nil {
		return "", fmt.Errorf("GeoJSON feature has no geometry: %s", footprint)
	}
	return feat.Geometry.MarshalWKT(), nil
}
