package raster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustRaster(t *testing.T, rows [][]float64, cellSize float64) *Raster {
	t.Helper()
	g, err := grid.FromRows(rows)
	require.NoError(t, err)
	r, err := New(g, 1000, 2000, cellSize, "EPSG:3116")
	require.NoError(t, err)
	return r
}

const sampleASC = `ncols 3
nrows 2
xllcorner 1000
yllcorner 2000
cellsize 100
NODATA_value -9999
1.5 2 -9999
4 5 6
`

func TestReadASCII(t *testing.T) {
	r, err := Decode(strings.NewReader(sampleASC), FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, grid.Shape{Rows: 2, Cols: 3}, r.Grid.Shape())
	assert.Equal(t, 1.5, r.Grid.At(0, 0))
	assert.True(t, math.IsNaN(r.Grid.At(0, 2)))
	assert.Equal(t, Extent{MinX: 1000, MinY: 2000, MaxX: 1300, MaxY: 2200}, r.Extent)
	assert.Equal(t, 100.0, r.CellSize)
}

func TestReadASCIICenterAndTruncated(t *testing.T) {
	centered := "ncols 1\nnrows 1\nxllcenter 50\nyllcenter 50\ncellsize 100\n7\n"
	r, err := Decode(strings.NewReader(centered), FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Extent.MinX)
	assert.Equal(t, 0.0, r.Extent.MinY)

	_, err = Decode(strings.NewReader("ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n"), FormatASCII)
	assert.ErrorIs(t, err, ErrInvalidRaster)

	_, err = Decode(strings.NewReader("ncols 2\nbogus 1\n"), FormatASCII)
	assert.ErrorIs(t, err, ErrInvalidRaster)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := mustRaster(t, [][]float64{{0.1, math.NaN()}, {0.7, 1}}, 250)

	for _, name := range []string{"out.asc", "out.wgrid", "out.wgrid.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, src))
			got, err := ReadFile(path)
			require.NoError(t, err)

			assert.Equal(t, src.Extent, got.Extent)
			assert.Equal(t, src.CellSize, got.CellSize)
			assert.Equal(t, 0.1, got.Grid.At(0, 0))
			assert.True(t, math.IsNaN(got.Grid.At(0, 1)))
			assert.Equal(t, 1.0, got.Grid.At(1, 1))
			if name != "out.asc" {
				assert.Equal(t, "EPSG:3116", got.CRS)
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a grid at all, sorry")), FormatWGrid)
	assert.ErrorIs(t, err, ErrInvalidRaster)

	_, err = FormatOf("wind.tif")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	f, err := FormatOf("https://example.com/grids/wind.wgrid.zst?token=abc")
	require.NoError(t, err)
	assert.Equal(t, FormatWGridZstd, f)
}

func TestClipRaster(t *testing.T) {
	r := mustRaster(t, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
	}, 100)
	// raster spans x 1000..1400, y 2000..2300
	clipped, err := ClipRaster(r, Extent{MinX: 1150, MinY: 2050, MaxX: 1290, MaxY: 2190})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{6, 7}, {10, 11}}, clipped.Grid.RowSlices())
	assert.Equal(t, Extent{MinX: 1100, MinY: 2000, MaxX: 1300, MaxY: 2200}, clipped.Extent)

	_, err = ClipRaster(r, Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})
	assert.ErrorIs(t, err, ErrOutsideExtent)

	same, err := ClipRaster(r, Extent{MinX: 0, MinY: 0, MaxX: 5000, MaxY: 5000})
	require.NoError(t, err)
	assert.Same(t, r, same)
}

func TestSlope(t *testing.T) {
	// elevation rises one metre per metre eastwards: a 45 degree plane
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = []float64{0, 10, 20, 30}
	}
	dem := mustRaster(t, rows, 10)
	slope, err := Slope(dem)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, slope.Grid.At(1, 1), 1e-9)
	assert.InDelta(t, 45.0, slope.Grid.At(2, 2), 1e-9)

	flat, err := Slope(mustRaster(t, [][]float64{{5, 5}, {5, 5}}, 10))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, flat.Grid.Values())

	hole, err := Slope(mustRaster(t, [][]float64{{5, math.NaN()}, {5, 5}}, 10))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(hole.Grid.At(0, 1)))
	assert.Equal(t, 0.0, hole.Grid.At(0, 0))
}

func TestDistance(t *testing.T) {
	features := mustRaster(t, [][]float64{
		{0, 0, 0},
		{0, 1, 0},
		{0, 0, 0},
	}, 100)
	d, err := Distance(features)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Grid.At(1, 1))
	assert.InDelta(t, 100, d.Grid.At(0, 1), 1e-9)
	assert.InDelta(t, 100, d.Grid.At(1, 2), 1e-9)
	assert.InDelta(t, 100*math.Sqrt2, d.Grid.At(0, 0), 1e-9)
	assert.InDelta(t, 100*math.Sqrt2, d.Grid.At(2, 2), 1e-9)

	none, err := Distance(mustRaster(t, [][]float64{{0, 0}}, 100))
	require.NoError(t, err)
	assert.Equal(t, 0, none.Grid.CountFinite())
}

func TestPolygonize(t *testing.T) {
	ref := mustRaster(t, [][]float64{
		{0.9, 0.8, 0.1},
		{0.2, 0.7, 0.95},
	}, 100)
	mask := grid.NewMask(2, 3)
	mask.Set(0, 0, true)
	mask.Set(0, 1, true)
	mask.Set(1, 2, true)

	fc, err := Polygonize(mask, ref)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	assert.Equal(t, 2, first.Properties["cells"])
	assert.InDelta(t, 0.85, first.Properties["wsi_mean"], 1e-12)
	b := first.Geometry.Bound()
	assert.Equal(t, [2]float64{1000, 2100}, [2]float64(b.Min))
	assert.Equal(t, [2]float64{1200, 2200}, [2]float64(b.Max))

	_, err = Polygonize(grid.NewMask(1, 1), ref)
	assert.ErrorIs(t, err, grid.ErrBadShape)
}

func TestParseExtent(t *testing.T) {
	e, err := ParseExtent("-75.6, 6.2, -75.5, 6.3")
	require.NoError(t, err)
	assert.Equal(t, Extent{MinX: -75.6, MinY: 6.2, MaxX: -75.5, MaxY: 6.3}, e)

	poly := `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,5],[0,5],[0,0]]]}`
	e, err = ParseExtent(poly)
	require.NoError(t, err)
	assert.Equal(t, Extent{MaxX: 10, MaxY: 5}, e)

	fc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,1]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[4,3]}}]}`
	path := filepath.Join(t.TempDir(), "aoi.geojson")
	require.NoError(t, os.WriteFile(path, []byte(fc), 0o644))
	e, err = ParseExtent(path)
	require.NoError(t, err)
	assert.Equal(t, Extent{MinX: 1, MinY: 1, MaxX: 4, MaxY: 3}, e)

	e, err = ParseExtent("")
	require.NoError(t, err)
	assert.True(t, e.IsZero())

	_, err = ParseExtent("5,5,1,1")
	assert.ErrorIs(t, err, ErrInvalidAOI)
	_, err = ParseExtent(`{"type":"Point","coordinates":[1,1]}`)
	assert.ErrorIs(t, err, ErrInvalidAOI)
}

func TestOpen(t *testing.T) {
	e, err := Open("", Options{Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, EngineNative, e.Name())

	_, err = Open("qgis", Options{})
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	_, err = Open("grass", Options{})
	assert.ErrorIs(t, err, ErrUnknownEngine)

	statuses := Engines()
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Available)
	assert.False(t, statuses[1].Available)
}

func TestNativeEngineLoadSave(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wind.asc"), []byte(sampleASC), 0o644))

	e := NewNativeEngine(dir, nil, discardLogger())
	ctx := context.Background()

	r, err := e.LoadGrid(ctx, "wind.asc", Extent{MinX: 1100, MinY: 2000, MaxX: 1300, MaxY: 2100})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{5, 6}}, r.Grid.RowSlices())

	out := filepath.Join(dir, "run", "rasters", "wsi.wgrid.zst")
	require.NoError(t, e.SaveGrid(ctx, r, out))
	back, err := ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, r.Grid.Values(), back.Grid.Values())

	mask := grid.NewMask(1, 2)
	mask.Set(0, 1, true)
	n, err := e.RasterToVector(ctx, mask, r, filepath.Join(dir, "run", "vectors", "sites.geojson"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	data, err := os.ReadFile(filepath.Join(dir, "run", "vectors", "sites.geojson"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc["type"])

	_, err = e.LoadGrid(ctx, "https://example.com/wind.asc", Extent{})
	assert.Error(t, err, "remote refs need a RemoteSource")
}

func TestNativeEngineReproject(t *testing.T) {
	e := NewNativeEngine("", nil, discardLogger())
	r := mustRaster(t, [][]float64{{1}}, 1)

	same, err := e.Reproject(context.Background(), r, "epsg:3116")
	require.NoError(t, err)
	assert.Same(t, r, same)

	_, err = e.Reproject(context.Background(), r, "EPSG:4326")
	assert.ErrorIs(t, err, ErrUnsupported)

	bare := *r
	bare.CRS = ""
	tagged, err := e.Reproject(context.Background(), &bare, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", tagged.CRS)
}

func TestRemoteSourceRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, sampleASC)
	}))
	defer srv.Close()

	remote := NewRemoteSource(srv.Client(), time.Second, BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, discardLogger())
	e := NewNativeEngine("", remote, discardLogger())

	r, err := e.LoadGrid(context.Background(), srv.URL+"/grids/wind.asc", Extent{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 6.0, r.Grid.At(1, 2))
}

func TestRemoteSourceGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := NewRemoteSource(srv.Client(), time.Second, BackoffConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
	}, discardLogger())
	_, err := remote.Fetch(context.Background(), srv.URL+"/wind.asc")
	assert.ErrorIs(t, err, errServerError)
}

func TestRemoteSourceClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	remote := NewRemoteSource(srv.Client(), time.Second, BackoffConfig{
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
	}, discardLogger())

	for i := 0; i < 10; i++ {
		_, err := remote.Fetch(context.Background(), srv.URL+"/missing.asc")
		assert.ErrorIs(t, err, errClientError)
	}
	assert.Equal(t, int32(10), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, remote.circuit.State())
}

func TestRemoteSourceLimitsBodySize(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, sampleASC)
	}))
	defer srv.Close()

	remote := NewRemoteSource(srv.Client(), time.Second, BackoffConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	}, discardLogger())
	remote.maxBytes = 16

	_, err := remote.Fetch(context.Background(), srv.URL+"/wind.asc")
	assert.ErrorIs(t, err, errTooLarge)
	assert.Equal(t, int32(1), calls.Load())

	remote.maxBytes = DefaultMaxBytes
	data, err := remote.Fetch(context.Background(), srv.URL+"/wind.asc")
	require.NoError(t, err)
	assert.Equal(t, sampleASC, string(data))
}

func TestRemoteSourceCircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	remote := NewRemoteSource(srv.Client(), time.Second, BackoffConfig{
		MaxRetries:      20,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, discardLogger())
	var states []gobreaker.State
	remote.OnStateChange(func(name string, to gobreaker.State) {
		assert.Equal(t, "remote-grid", name)
		states = append(states, to)
	})

	_, err := remote.Fetch(context.Background(), srv.URL+"/wind.asc")
	assert.ErrorIs(t, err, errCircuitOpen)
	// the breaker trips after more than five consecutive failures
	assert.Equal(t, int32(6), calls.Load())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, states)
}
