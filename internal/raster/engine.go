package raster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Engine is the capability set a GIS backend offers to a suitability run.
// The processing extent is always passed explicitly.
type Engine interface {
	Name() string
	LoadGrid(ctx context.Context, ref string, extent Extent) (*Raster, error)
	SaveGrid(ctx context.Context, r *Raster, path string) error
	DeriveSlope(ctx context.Context, dem *Raster) (*Raster, error)
	DeriveDistance(ctx context.Context, features *Raster) (*Raster, error)
	RasterToVector(ctx context.Context, mask *grid.Mask, ref *Raster, path string) (int, error)
	Reproject(ctx context.Context, r *Raster, crs string) (*Raster, error)
	Clip(ctx context.Context, r *Raster, extent Extent) (*Raster, error)
}

// Engine names accepted by Open.
const (
	EngineNative   = "native"
	EngineRasterio = "rasterio"
	EngineQGIS     = "qgis"
	EngineArcGIS   = "arcgis"
)

// Options configures the engine returned by Open.
type Options struct {
	DataDir string
	Remote  *RemoteSource
	Logger  *slog.Logger
}

// Open returns the engine registered under kind. An empty kind selects the
// native engine. QGIS and ArcGIS are known names whose bindings are not
// part of this build.
func Open(kind string, opts Options) (Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "", EngineNative, EngineRasterio:
		return NewNativeEngine(opts.DataDir, opts.Remote, logger), nil
	case EngineQGIS, EngineArcGIS:
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, k)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, kind)
	}
}

// EngineStatus describes one known engine for diagnostics.
type EngineStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Engines reports which engines can be opened.
func Engines() []EngineStatus {
	out := make([]EngineStatus, 0, 3)
	for _, name := range []string{EngineNative, EngineQGIS, EngineArcGIS} {
		st := EngineStatus{Name: name, Available: true}
		if _, err := Open(name, Options{}); err != nil {
			st.Available = false
			st.Detail = err.Error()
		}
		out = append(out, st)
	}
	return out
}
