package raster

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// NativeEngine is the pure-Go engine. It reads and writes local or remote
// grid files and implements the raster derivations in process.
type NativeEngine struct {
	dataDir string
	remote  *RemoteSource
	logger  *slog.Logger
}

// NewNativeEngine creates a NativeEngine. Relative refs resolve against
// dataDir; remote may be nil when no HTTP sources are used.
func NewNativeEngine(dataDir string, remote *RemoteSource, logger *slog.Logger) *NativeEngine {
	return &NativeEngine{dataDir: dataDir, remote: remote, logger: logger}
}

func (e *NativeEngine) Name() string { return EngineNative }

// LoadGrid reads ref and clips it to extent when one is given.
func (e *NativeEngine) LoadGrid(ctx context.Context, ref string, extent Extent) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, err := FormatOf(ref)
	if err != nil {
		return nil, err
	}

	var r *Raster
	if IsRemote(ref) {
		if e.remote == nil {
			return nil, fmt.Errorf("load %s: remote sources are not configured", ref)
		}
		data, err := e.remote.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ref, err)
		}
		r, err = Decode(bytes.NewReader(data), format)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ref, err)
		}
	} else {
		path := e.resolve(ref)
		r, err = ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	e.logger.Debug("grid loaded", "ref", ref, "shape", r.Grid.Shape(), "cell_size", r.CellSize)
	if extent.IsZero() {
		return r, nil
	}
	return ClipRaster(r, extent)
}

// SaveGrid writes r to path, creating parent directories.
func (e *NativeEngine) SaveGrid(ctx context.Context, r *Raster, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	return WriteFile(path, r)
}

func (e *NativeEngine) DeriveSlope(ctx context.Context, dem *Raster) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Slope(dem)
}

func (e *NativeEngine) DeriveDistance(ctx context.Context, features *Raster) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Distance(features)
}

// RasterToVector writes the selected cells of mask as GeoJSON polygons and
// returns the number of features written.
func (e *NativeEngine) RasterToVector(ctx context.Context, mask *grid.Mask, ref *Raster, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fc, err := Polygonize(mask, ref)
	if err != nil {
		return 0, err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(fc.Features), nil
}

// Reproject only assigns or confirms a CRS; the native engine does not
// transform coordinates.
func (e *NativeEngine) Reproject(ctx context.Context, r *Raster, crs string) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case crs == "" || strings.EqualFold(crs, r.CRS):
		return r, nil
	case r.CRS == "":
		out := *r
		out.CRS = crs
		return &out, nil
	default:
		return nil, fmt.Errorf("%w: reproject %s to %s", ErrUnsupported, r.CRS, crs)
	}
}

func (e *NativeEngine) Clip(ctx context.Context, r *Raster, extent Extent) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ClipRaster(r, extent)
}

func (e *NativeEngine) resolve(ref string) string {
	if e.dataDir == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(e.dataDir, ref)
}
