package raster

import "errors"

var (
	ErrEngineUnavailable = errors.New("raster engine not available")
	ErrUnknownEngine     = errors.New("unknown raster engine")
	ErrUnsupported       = errors.New("operation not supported by engine")
	ErrUnknownFormat     = errors.New("unknown raster format")
	ErrInvalidRaster     = errors.New("invalid raster")
	ErrOutsideExtent     = errors.New("raster does not overlap extent")
	ErrInvalidAOI        = errors.New("invalid area of interest")
)
