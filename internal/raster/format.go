package raster

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Grid file formats understood by the native engine.
const (
	FormatASCII     = "asc"
	FormatWGrid     = "wgrid"
	FormatWGridZstd = "wgrid.zst"
)

// FormatOf infers the file format from a path or URL.
func FormatOf(ref string) (string, error) {
	name := ref
	if IsRemote(ref) {
		if u, err := url.Parse(ref); err == nil {
			name = u.Path
		}
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".wgrid.zst"):
		return FormatWGridZstd, nil
	case strings.HasSuffix(lower, ".wgrid"):
		return FormatWGrid, nil
	case strings.HasSuffix(lower, ".asc"):
		return FormatASCII, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, ref)
	}
}

// IsRemote reports whether ref is fetched over HTTP.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Decode reads a raster in the given format.
func Decode(r io.Reader, format string) (*Raster, error) {
	switch format {
	case FormatASCII:
		return readASCII(r)
	case FormatWGrid:
		return readWGrid(r)
	case FormatWGridZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		return readWGrid(dec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Encode writes a raster in the given format.
func Encode(w io.Writer, r *Raster, format string) error {
	switch format {
	case FormatASCII:
		return writeASCII(w, r)
	case FormatWGrid:
		return writeWGrid(w, r)
	case FormatWGridZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		if err := writeWGrid(enc, r); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finalize compression: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ReadFile loads a raster from disk, choosing the format by extension.
func ReadFile(path string) (*Raster, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	r, err := Decode(bufio.NewReader(f), format)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r, nil
}

// WriteFile stores a raster on disk, choosing the format by extension.
func WriteFile(path string, r *Raster) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, r, format); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
