package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// asciiNoData is written for no-data cells in ESRI ASCII grids.
const asciiNoData = -9999

type asciiHeader struct {
	ncols, nrows int
	xll, yll     float64
	center       bool
	cellSize     float64
	noData       float64
	hasNoData    bool
}

// readASCII parses an ESRI ASCII grid.
func readASCII(r io.Reader) (*Raster, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var h asciiHeader
	var first string
	for sc.Scan() {
		tok := sc.Text()
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			first = tok
			break
		}
		key := strings.ToLower(tok)
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header %s has no value", ErrInvalidRaster, key)
		}
		val := sc.Text()
		if err := h.set(key, val); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if h.ncols <= 0 || h.nrows <= 0 || !(h.cellSize > 0) {
		return nil, fmt.Errorf("%w: incomplete ASCII header", ErrInvalidRaster)
	}

	n := h.ncols * h.nrows
	data := make([]float64, 0, n)
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrInvalidRaster, len(data), err)
		}
		if h.hasNoData && v == h.noData {
			v = grid.NoData
		}
		data = append(data, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for len(data) < n && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: expected %d cells, found %d", ErrInvalidRaster, n, len(data))
	}

	g, err := grid.FromSlice(h.nrows, h.ncols, data)
	if err != nil {
		return nil, err
	}
	minX, minY := h.xll, h.yll
	if h.center {
		minX -= h.cellSize / 2
		minY -= h.cellSize / 2
	}
	return New(g, minX, minY, h.cellSize, "")
}

func (h *asciiHeader) set(key, val string) error {
	var err error
	switch key {
	case "ncols":
		h.ncols, err = strconv.Atoi(val)
	case "nrows":
		h.nrows, err = strconv.Atoi(val)
	case "xllcorner":
		h.xll, err = strconv.ParseFloat(val, 64)
	case "yllcorner":
		h.yll, err = strconv.ParseFloat(val, 64)
	case "xllcenter":
		h.center = true
		h.xll, err = strconv.ParseFloat(val, 64)
	case "yllcenter":
		h.center = true
		h.yll, err = strconv.ParseFloat(val, 64)
	case "cellsize":
		h.cellSize, err = strconv.ParseFloat(val, 64)
	case "nodata_value":
		h.hasNoData = true
		h.noData, err = strconv.ParseFloat(val, 64)
	default:
		return fmt.Errorf("%w: unknown ASCII header %q", ErrInvalidRaster, key)
	}
	if err != nil {
		return fmt.Errorf("%w: header %s: %v", ErrInvalidRaster, key, err)
	}
	return nil
}

// writeASCII writes r as an ESRI ASCII grid, one row per line.
func writeASCII(w io.Writer, r *Raster) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", r.Cols(), r.Rows())
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(r.Extent.MinX), formatFloat(r.Extent.MinY))
	fmt.Fprintf(bw, "cellsize %s\nNODATA_value %d\n", formatFloat(r.CellSize), asciiNoData)
	for row := 0; row < r.Rows(); row++ {
		for col := 0; col < r.Cols(); col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := r.Grid.At(row, col)
			if grid.IsNoData(v) {
				v = asciiNoData
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
