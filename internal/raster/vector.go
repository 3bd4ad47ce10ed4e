package raster

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/stat"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Polygonize turns the selected cells of mask into polygons, one rectangle
// per horizontal run of selected cells. ref supplies the georeferencing and
// the values averaged into each feature's properties.
func Polygonize(mask *grid.Mask, ref *Raster) (*geojson.FeatureCollection, error) {
	if mask.Shape() != ref.Grid.Shape() {
		return nil, fmt.Errorf("%w: mask %s, raster %s", grid.ErrBadShape, mask.Shape(), ref.Grid.Shape())
	}
	fc := geojson.NewFeatureCollection()
	id := 0
	for row := 0; row < mask.Rows(); row++ {
		col := 0
		for col < mask.Cols() {
			if !mask.At(row, col) {
				col++
				continue
			}
			start := col
			for col < mask.Cols() && mask.At(row, col) {
				col++
			}
			id++
			fc.Append(runFeature(id, row, start, col, ref))
		}
	}
	return fc, nil
}

func runFeature(id, row, start, end int, ref *Raster) *geojson.Feature {
	first, last := ref.CellBound(row, start), ref.CellBound(row, end-1)
	x0, y0 := first.Min[0], first.Min[1]
	x1, y1 := last.Max[0], last.Max[1]
	ring := orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}

	vals := make([]float64, 0, end-start)
	for c := start; c < end; c++ {
		if v := ref.Grid.At(row, c); !grid.IsNoData(v) {
			vals = append(vals, v)
		}
	}

	f := geojson.NewFeature(orb.Polygon{ring})
	f.ID = id
	f.Properties["row"] = row
	f.Properties["col_start"] = start
	f.Properties["cells"] = end - start
	f.Properties["area_km2"] = float64(end-start) * ref.CellAreaKm2()
	if len(vals) > 0 {
		f.Properties["wsi_mean"] = stat.Mean(vals, nil)
	}
	return f
}
