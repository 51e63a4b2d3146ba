// Package converter orchestrates a whole conversion: it reads one stokes
// plane at a time from a Source, runs the fused swizzle/statistics passes
// over it, hands the results to a Sink sized by the layout plan, and
// atomically publishes the finished container.
package converter

import (
	"errors"

	"go.uber.org/zap"

	"fits2hdf5/internal/models"
	"fits2hdf5/pkg/config"
	"fits2hdf5/pkg/layout"
)

// Conversion failures fall into three fatal classes. Degenerate data
// (all-NaN slices, zero-width histogram ranges) is not an error; it is
// absorbed by the statistics engine and only shows up in NaN counts.
var (
	// ErrUnsupportedFormat marks sources the converter cannot process:
	// non-float32 samples or a rank outside 2..4. Reported before any
	// allocation.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrSourceRead marks a failure to open or read the source.
	ErrSourceRead = errors.New("source read failed")

	// ErrSinkWrite marks a failure to create or write the output container.
	ErrSinkWrite = errors.New("sink write failed")
)

// Source is the abstract reader the converter consumes. Implementations must
// deliver single-precision samples; anything else is an
// ErrUnsupportedFormat at open time, before the converter runs.
type Source interface {
	// Dims returns the logical cube shape. Absent axes are reported as 1.
	Dims() models.CubeDims

	// Header returns the source's header cards in a stable order.
	Header() []models.HeaderEntry

	// ReadPlane returns one stokes plane of depth*height*width samples in
	// (depth, height, width) order. The call blocks until the plane is
	// fully available.
	ReadPlane(stokes int) ([]float32, error)

	Close() error
}

// DatasetRef is an opaque handle to a created dataset, returned by the sink
// and passed back on writes.
type DatasetRef any

// Sink is the abstract hierarchical-container writer the converter produces
// into. Dataset paths use '/'-separated components relative to the file
// root; intermediate groups are created on demand. All writes are blocking.
type Sink interface {
	// CreateGroup ensures a group exists at the given path.
	CreateGroup(path string) error

	// CreateDataset creates a dataset described by the plan entry.
	CreateDataset(spec layout.Dataset) (DatasetRef, error)

	// WriteFloats writes float32 data into the hyperslab selected by start
	// and count. A nil selection writes the whole dataset.
	WriteFloats(ref DatasetRef, data []float32, start, count []uint64) error

	// WriteInts writes int64 data, with the same selection semantics.
	WriteInts(ref DatasetRef, data []int64, start, count []uint64) error

	// WriteAttribute attaches a scalar attribute to the group at path.
	WriteAttribute(path, name string, value any) error

	// Close finalizes and closes the container.
	Close() error

	// Abort releases the sink without finalizing, leaving whatever was
	// written on disk for diagnostics.
	Abort()
}

// Params configures a Converter. Source and Sink are required; the sink must
// be writing to TempPath, which Run renames to OutputPath on success.
type Params struct {
	Source     Source
	Sink       Sink
	OutputPath string
	TempPath   string
	Config     *config.Config
	Logger     *zap.SugaredLogger
}

// Converter drives one conversion end to end. Create it with New and call
// Run exactly once.
type Converter struct {
	source Source
	sink   Sink
	output string
	temp   string
	cfg    *config.Config
	log    *zap.SugaredLogger
}

// New returns a Converter for the given parameters. A nil Config falls back
// to defaults and a nil Logger disables logging.
func New(p Params) *Converter {
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Converter{
		source: p.Source,
		sink:   p.Sink,
		output: p.OutputPath,
		temp:   p.TempPath,
		cfg:    cfg,
		log:    log,
	}
}
