package raster

import (
	"fmt"
	"math"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// ClipRaster returns the window of r that covers extent, snapped outwards to
// whole cells.
func ClipRaster(r *Raster, extent Extent) (*Raster, error) {
	if !extent.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAOI, extent)
	}
	overlap, ok := r.Extent.Intersect(extent)
	if !ok {
		return nil, fmt.Errorf("%w: raster %s, extent %s", ErrOutsideExtent, r.Extent, extent)
	}

	cs := r.CellSize
	c0 := int(math.Floor((overlap.MinX - r.Extent.MinX) / cs))
	c1 := int(math.Ceil((overlap.MaxX - r.Extent.MinX) / cs))
	r0 := int(math.Floor((r.Extent.MaxY - overlap.MaxY) / cs))
	r1 := int(math.Ceil((r.Extent.MaxY - overlap.MinY) / cs))
	c0, c1 = clampIndex(c0, r.Cols()), min(max(c1, c0+1), r.Cols())
	r0, r1 = clampIndex(r0, r.Rows()), min(max(r1, r0+1), r.Rows())

	if c0 == 0 && r0 == 0 && c1 == r.Cols() && r1 == r.Rows() {
		return r, nil
	}

	out := grid.New(r1-r0, c1-c0)
	for row := r0; row < r1; row++ {
		for col := c0; col < c1; col++ {
			out.Set(row-r0, col-c0, r.Grid.At(row, col))
		}
	}
	minX := r.Extent.MinX + float64(c0)*cs
	minY := r.Extent.MaxY - float64(r1)*cs
	return New(out, minX, minY, cs, r.CRS)
}
