// Package fitssource adapts a FITS image file to the converter's Source
// interface. The underlying reader loads the whole primary HDU into memory,
// so plane reads after Open are slicing, not I/O.
package fitssource

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/siravan/fits"

	"fits2hdf5/internal/models"
	"fits2hdf5/pkg/converter"
)

// Header keys that are structural or commentary rather than data
// description; these are never forwarded as attributes.
var skippedKeys = map[string]bool{
	"":        true,
	"COMMENT": true,
	"HISTORY": true,
	"END":     true,
}

// Source reads planes from the primary image HDU of a FITS file.
type Source struct {
	dims   models.CubeDims
	header []models.HeaderEntry
	data   []float32
}

// Open reads the FITS file at path and validates that its primary HDU is a
// single-precision image of rank 2 to 4. Unsupported files are rejected with
// converter.ErrUnsupportedFormat.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", converter.ErrSourceRead, err)
	}
	defer f.Close()

	units, err := fits.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", converter.ErrSourceRead, err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no HDUs", converter.ErrSourceRead)
	}

	unit := units[0]
	if !unit.HasImage() {
		return nil, fmt.Errorf("%w: primary HDU holds no image", converter.ErrUnsupportedFormat)
	}
	if unit.Bitpix() != -32 {
		return nil, fmt.Errorf("%w: BITPIX %d, only -32 is supported", converter.ErrUnsupportedFormat, unit.Bitpix())
	}

	dims, err := cubeDims(unit.Naxis)
	if err != nil {
		return nil, err
	}

	data, ok := unit.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected sample type %T", converter.ErrUnsupportedFormat, unit.Data)
	}
	if want := dims.Stokes * dims.PlaneSize(); len(data) != want {
		return nil, fmt.Errorf("%w: %d samples for a %d-sample cube", converter.ErrSourceRead, len(data), want)
	}

	return &Source{
		dims:   dims,
		header: headerEntries(unit.Keys),
		data:   data,
	}, nil
}

// Dims returns the logical cube shape.
func (s *Source) Dims() models.CubeDims {
	return s.dims
}

// Header returns the forwarded header cards in key order.
func (s *Source) Header() []models.HeaderEntry {
	return s.header
}

// ReadPlane returns the samples of one stokes plane. The returned slice
// aliases the loaded data and must not be modified.
func (s *Source) ReadPlane(stokes int) ([]float32, error) {
	if stokes < 0 || stokes >= s.dims.Stokes {
		return nil, fmt.Errorf("%w: stokes index %d out of range", converter.ErrSourceRead, stokes)
	}
	size := s.dims.PlaneSize()
	return s.data[stokes*size : (stokes+1)*size], nil
}

// Close releases the loaded data.
func (s *Source) Close() error {
	s.data = nil
	return nil
}

// cubeDims maps the NAXISn values onto the logical cube shape. NAXIS1 is the
// fastest-varying axis, so Naxis runs width, height, depth, stokes.
func cubeDims(naxis []int) (models.CubeDims, error) {
	rank := len(naxis)
	if rank < 2 || rank > 4 {
		return models.CubeDims{}, fmt.Errorf("%w: rank %d, only 2 to 4 axes are supported", converter.ErrUnsupportedFormat, rank)
	}
	for i, n := range naxis {
		if n < 1 {
			return models.CubeDims{}, fmt.Errorf("%w: NAXIS%d = %d", converter.ErrUnsupportedFormat, i+1, n)
		}
	}

	dims := models.CubeDims{Rank: rank, Stokes: 1, Depth: 1, Height: naxis[1], Width: naxis[0]}
	if rank >= 3 {
		dims.Depth = naxis[2]
	}
	if rank == 4 {
		dims.Stokes = naxis[3]
	}
	return dims, nil
}

// headerEntries flattens the parsed header into sorted key/value cards,
// dropping commentary and valueless keys.
func headerEntries(keys map[string]interface{}) []models.HeaderEntry {
	names := make([]string, 0, len(keys))
	for name, value := range keys {
		if skippedKeys[name] || value == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]models.HeaderEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, models.HeaderEntry{Key: name, Value: formatValue(keys[name])})
	}
	return entries
}

// formatValue renders a parsed header value back into card notation.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "T"
		}
		return "F"
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'G', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
