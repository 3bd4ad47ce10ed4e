package raster

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// wgrid is a little-endian binary layout: a fixed header, the CRS string and
// rows*cols float64 cells in row-major order. No-data cells are stored as NaN.
var wgridMagic = [4]byte{'W', 'G', 'R', 'D'}

const (
	wgridVersion = 1
	maxCRSLen    = 1 << 16
	maxCells     = 1 << 31
)

type wgridHeader struct {
	Magic    [4]byte
	Version  uint32
	Rows     uint32
	Cols     uint32
	MinX     float64
	MinY     float64
	CellSize float64
	CRSLen   uint32
}

func writeWGrid(w io.Writer, r *Raster) error {
	h := wgridHeader{
		Magic:    wgridMagic,
		Version:  wgridVersion,
		Rows:     uint32(r.Rows()),
		Cols:     uint32(r.Cols()),
		MinX:     r.Extent.MinX,
		MinY:     r.Extent.MinY,
		CellSize: r.CellSize,
		CRSLen:   uint32(len(r.CRS)),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.WriteString(w, r.CRS); err != nil {
		return fmt.Errorf("write crs: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.Grid.Values()); err != nil {
		return fmt.Errorf("write cells: %w", err)
	}
	return nil
}

func readWGrid(rd io.Reader) (*Raster, error) {
	var h wgridHeader
	if err := binary.Read(rd, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidRaster, err)
	}
	if h.Magic != wgridMagic {
		return nil, fmt.Errorf("%w: not a wgrid file", ErrInvalidRaster)
	}
	if h.Version != wgridVersion {
		return nil, fmt.Errorf("%w: unsupported wgrid version %d", ErrInvalidRaster, h.Version)
	}
	if h.CRSLen > maxCRSLen || uint64(h.Rows)*uint64(h.Cols) > maxCells {
		return nil, fmt.Errorf("%w: header out of bounds", ErrInvalidRaster)
	}

	crs := make([]byte, h.CRSLen)
	if _, err := io.ReadFull(rd, crs); err != nil {
		return nil, fmt.Errorf("%w: read crs: %v", ErrInvalidRaster, err)
	}
	data := make([]float64, int(h.Rows)*int(h.Cols))
	if err := binary.Read(rd, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: read cells: %v", ErrInvalidRaster, err)
	}
	g, err := grid.FromSlice(int(h.Rows), int(h.Cols), data)
	if err != nil {
		return nil, err
	}
	return New(g, h.MinX, h.MinY, h.CellSize, string(crs))
}
