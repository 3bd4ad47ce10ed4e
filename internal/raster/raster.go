// Package raster is the storage side of a suitability run: it loads and
// saves georeferenced grids, derives slope and distance layers and turns
// cell selections into vector features. Engines are selected by name through
// Open; the scoring core only ever sees the grids they return.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Extent is an axis-aligned bounding box in map units.
type Extent struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// IsZero reports whether no extent was given.
func (e Extent) IsZero() bool { return e == Extent{} }

func (e Extent) Width() float64  { return e.MaxX - e.MinX }
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Valid reports whether the extent encloses a positive area.
func (e Extent) Valid() bool {
	return e.MaxX > e.MinX && e.MaxY > e.MinY
}

// Intersect returns the overlap of two extents.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	out := Extent{
		MinX: math.Max(e.MinX, o.MinX),
		MinY: math.Max(e.MinY, o.MinY),
		MaxX: math.Min(e.MaxX, o.MaxX),
		MaxY: math.Min(e.MaxY, o.MaxY),
	}
	return out, out.Valid()
}

// Bound converts the extent to an orb bound.
func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// ExtentFromBound converts an orb bound to an extent.
func ExtentFromBound(b orb.Bound) Extent {
	return Extent{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

func (e Extent) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// Raster is a grid plus its georeferencing. Row 0 is the northern edge and
// cells are square.
type Raster struct {
	Grid     *grid.Grid
	Extent   Extent
	CellSize float64
	CRS      string
}

// New georeferences g with its lower-left corner at (minX, minY).
func New(g *grid.Grid, minX, minY, cellSize float64, crs string) (*Raster, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grid", ErrInvalidRaster)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: cell size must be positive, got %v", ErrInvalidRaster, cellSize)
	}
	return &Raster{
		Grid: g,
		Extent: Extent{
			MinX: minX,
			MinY: minY,
			MaxX: minX + float64(g.Cols())*cellSize,
			MaxY: minY + float64(g.Rows())*cellSize,
		},
		CellSize: cellSize,
		CRS:      crs,
	}, nil
}

// WithGrid returns a raster sharing r's georeferencing with a different grid
// of the same shape.
func (r *Raster) WithGrid(g *grid.Grid) (*Raster, error) {
	if !g.SameShape(r.Grid) {
		return nil, fmt.Errorf("%w: grid %s does not match raster %s", grid.ErrBadShape, g.Shape(), r.Grid.Shape())
	}
	out := *r
	out.Grid = g
	return &out, nil
}

func (r *Raster) Rows() int { return r.Grid.Rows() }
func (r *Raster) Cols() int { return r.Grid.Cols() }

// CellAreaKm2 returns the area of one cell, assuming metre map units.
func (r *Raster) CellAreaKm2() float64 {
	return r.CellSize * r.CellSize / 1e6
}

// AreaKm2 returns the area covered by the whole raster.
func (r *Raster) AreaKm2() float64 {
	return float64(r.Grid.Len()) * r.CellAreaKm2()
}

// CellBound returns the bounding box of cell (row, col).
func (r *Raster) CellBound(row, col int) orb.Bound {
	x0 := r.Extent.MinX + float64(col)*r.CellSize
	y1 := r.Extent.MaxY - float64(row)*r.CellSize
	return orb.Bound{
		Min: orb.Point{x0, y1 - r.CellSize},
		Max: orb.Point{x0 + r.CellSize, y1},
	}
}

// SameGeometry reports whether two rasters can be combined cell by cell.
func (r *Raster) SameGeometry(o *Raster) bool {
	return r.Grid.SameShape(o.Grid) && r.CellSize == o.CellSize && r.Extent == o.Extent
}
