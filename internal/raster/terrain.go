package raster

import (
	"fmt"
	"math"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Slope computes the terrain slope of a DEM in degrees using Horn's 3x3
// method. Edge cells reuse their own row or column for the missing
// neighbours; a no-data neighbour takes the centre value. No-data cells
// stay no-data.
func Slope(dem *Raster) (*Raster, error) {
	if dem == nil || dem.Grid.Empty() {
		return nil, fmt.Errorf("%w: empty DEM", ErrInvalidRaster)
	}
	g := dem.Grid
	rows, cols := g.Rows(), g.Cols()
	out := grid.New(rows, cols)
	cs := dem.CellSize

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			z := g.At(r, c)
			if grid.IsNoData(z) {
				out.Set(r, c, grid.NoData)
				continue
			}
			at := func(dr, dc int) float64 {
				rr, cc := clampIndex(r+dr, rows), clampIndex(c+dc, cols)
				v := g.At(rr, cc)
				if grid.IsNoData(v) {
					return z
				}
				return v
			}
			a, b, cc := at(-1, -1), at(-1, 0), at(-1, 1)
			d, f := at(0, -1), at(0, 1)
			gg, h, i := at(1, -1), at(1, 0), at(1, 1)

			dzdx := ((cc + 2*f + i) - (a + 2*d + gg)) / (8 * cs)
			dzdy := ((gg + 2*h + i) - (a + 2*b + cc)) / (8 * cs)
			out.Set(r, c, math.Atan(math.Hypot(dzdx, dzdy))*180/math.Pi)
		}
	}
	return dem.WithGrid(out)
}

// Distance computes, for every cell, the distance in map units to the
// nearest feature cell (finite and non-zero) with a two-pass chamfer
// transform. A raster without features yields all no-data.
func Distance(features *Raster) (*Raster, error) {
	if features == nil || features.Grid.Empty() {
		return nil, fmt.Errorf("%w: empty features raster", ErrInvalidRaster)
	}
	g := features.Grid
	rows, cols := g.Rows(), g.Cols()
	ortho := features.CellSize
	diag := features.CellSize * math.Sqrt2

	dist := make([]float64, rows*cols)
	found := false
	for i := range dist {
		v := g.Index(i)
		if !grid.IsNoData(v) && v != 0 {
			found = true
			continue
		}
		dist[i] = math.Inf(1)
	}
	if !found {
		return features.WithGrid(grid.Full(rows, cols, grid.NoData))
	}

	relax := func(r, c, dr, dc int, w float64) {
		rr, cc := r+dr, c+dc
		if rr < 0 || rr >= rows || cc < 0 || cc >= cols {
			return
		}
		if d := dist[rr*cols+cc] + w; d < dist[r*cols+c] {
			dist[r*cols+c] = d
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			relax(r, c, -1, -1, diag)
			relax(r, c, -1, 0, ortho)
			relax(r, c, -1, 1, diag)
			relax(r, c, 0, -1, ortho)
		}
	}
	for r := rows - 1; r >= 0; r-- {
		for c := cols - 1; c >= 0; c-- {
			relax(r, c, 1, 1, diag)
			relax(r, c, 1, 0, ortho)
			relax(r, c, 1, -1, diag)
			relax(r, c, 0, 1, ortho)
		}
	}

	out, err := grid.FromSlice(rows, cols, dist)
	if err != nil {
		return nil, err
	}
	return features.WithGrid(out)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
