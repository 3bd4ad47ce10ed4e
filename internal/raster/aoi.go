package raster

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseExtent reads an area of interest and returns its bounding box. The
// input is either "minx,miny,maxx,maxy", an inline GeoJSON object, or the
// path of a GeoJSON file. An empty input yields a zero extent, meaning the
// full raster.
func ParseExtent(input string) (Extent, error) {
	s := strings.TrimSpace(input)
	switch {
	case s == "":
		return Extent{}, nil
	case strings.HasPrefix(s, "{"):
		return extentFromGeoJSON([]byte(s))
	case looksLikeBBox(s):
		return parseBBox(s)
	default:
		data, err := os.ReadFile(s)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: read %s: %v", ErrInvalidAOI, s, err)
		}
		return extentFromGeoJSON(data)
	}
}

func looksLikeBBox(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return false
		}
	}
	return true
}

func parseBBox(s string) (Extent, error) {
	var v [4]float64
	for i, p := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		v[i] = f
	}
	e := Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if !e.Valid() {
		return Extent{}, fmt.Errorf("%w: empty bounding box %s", ErrInvalidAOI, s)
	}
	return e, nil
}

func extentFromGeoJSON(data []byte) (Extent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Extent{}, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
	}

	var bound orb.Bound
	var ok bool
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			bound, ok = union(bound, ok, f.Geometry.Bound())
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		if f.Geometry != nil {
			bound, ok = f.Geometry.Bound(), true
		}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		bound, ok = g.Geometry().Bound(), true
	}

	e := ExtentFromBound(bound)
	if !ok || !e.Valid() {
		return Extent{}, fmt.Errorf("%w: geometry has no area", ErrInvalidAOI)
	}
	return e, nil
}

func union(b orb.Bound, have bool, next orb.Bound) (orb.Bound, bool) {
	if !have {
		return next, true
	}
	return b.Union(next), true
}
