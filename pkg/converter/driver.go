package converter

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"fits2hdf5/internal/models"
	"fits2hdf5/pkg/geometry"
	"fits2hdf5/pkg/layout"
	"fits2hdf5/pkg/mipmap"
	"fits2hdf5/pkg/stats"
)

// Attribute names reserved for the converter's own identity. Header cards
// with these names are dropped so the identity always wins.
const (
	attrSchemaVersion    = "SCHEMA_VERSION"
	attrConverterName    = "HDF5_CONVERTER"
	attrConverterVersion = "HDF5_CONVERTER_VERSION"
)

// Run performs the conversion. The source is closed in every case; on any
// failure the sink is aborted and nothing is published, so the target path
// only ever holds complete output.
func (c *Converter) Run() (err error) {
	defer func() {
		err = multierr.Append(err, c.source.Close())
	}()

	start := time.Now()

	dims := c.source.Dims()
	if dims.Rank < 2 || dims.Rank > 4 {
		return fmt.Errorf("%w: rank %d", ErrUnsupportedFormat, dims.Rank)
	}

	plan := layout.NewPlan(dims, layout.Options{
		TileSize:   c.cfg.Processing.TileSize,
		Bins:       geometry.BinCount(dims.Width, dims.Height),
		EnableMips: c.cfg.Mipmaps.Enabled,
		MipMinEdge: c.cfg.Mipmaps.MinEdge,
	})

	c.log.Infow("starting conversion",
		"output", c.output,
		"stokes", dims.Stokes,
		"depth", dims.Depth,
		"height", dims.Height,
		"width", dims.Width,
		"workers", c.cfg.Processing.Workers)

	if err := c.convert(dims, plan); err != nil {
		c.sink.Abort()
		return err
	}

	if err := c.sink.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if err := os.Rename(c.temp, c.output); err != nil {
		return fmt.Errorf("publishing output: %w", err)
	}

	c.log.Infow("conversion complete",
		"output", c.output,
		"elapsed", time.Since(start))
	return nil
}

// convert writes the whole container into the sink: attributes, the main and
// swizzled datasets one stokes plane at a time, the statistics and any
// requested mip levels. The temporary file is not published here; the caller
// owns the rename.
func (c *Converter) convert(dims models.CubeDims, plan layout.Plan) error {
	if err := c.sink.CreateGroup(layout.DataRoot); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if err := c.writeAttributes(); err != nil {
		return err
	}

	standard, err := c.sink.CreateDataset(plan.Standard)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	var swizzled DatasetRef
	if plan.Swizzled != nil {
		if swizzled, err = c.sink.CreateDataset(*plan.Swizzled); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
	}
	mipRefs := make([]DatasetRef, len(plan.Mips))
	for i, level := range plan.Mips {
		if mipRefs[i], err = c.sink.CreateDataset(level.Dataset); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
	}

	collector := stats.NewCollector(dims, geometry.BinCount(dims.Width, dims.Height), c.cfg.Processing.Workers)

	var swizzleBuf []float32
	if plan.Swizzled != nil {
		swizzleBuf = make([]float32, dims.PlaneSize())
	}

	for stokes := 0; stokes < dims.Stokes; stokes++ {
		planeStart := time.Now()
		plane, err := c.source.ReadPlane(stokes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSourceRead, err)
		}

		collector.ProcessPlane(stokes, plane, swizzleBuf)

		start, count := stokesSelection(plan.Standard.Dims, stokes)
		if err := c.sink.WriteFloats(standard, plane, start, count); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
		if plan.Swizzled != nil {
			start, count := stokesSelection(plan.Swizzled.Dims, stokes)
			if err := c.sink.WriteFloats(swizzled, swizzleBuf, start, count); err != nil {
				return fmt.Errorf("%w: %v", ErrSinkWrite, err)
			}
		}

		for i, level := range plan.Mips {
			down := mipmap.DownsamplePlane(plane, dims.Depth, dims.Height, dims.Width, level.Factor)
			start, count := stokesSelection(level.Dataset.Dims, stokes)
			if err := c.sink.WriteFloats(mipRefs[i], down, start, count); err != nil {
				return fmt.Errorf("%w: %v", ErrSinkWrite, err)
			}
		}

		c.log.Infow("stokes plane processed",
			"stokes", stokes,
			"elapsed", time.Since(planeStart))
	}

	return c.writeStatistics(plan, collector)
}

// writeStatistics creates and fills the statistics datasets from the
// collector's cumulative arrays. The arrays are laid out exactly as stored,
// so every dataset is a single whole write.
func (c *Converter) writeStatistics(plan layout.Plan, collector *stats.Collector) error {
	err := c.writeStatsGroup(plan.SliceStats,
		collector.SliceMin, collector.SliceMax, collector.SliceMean,
		collector.SliceNaN, collector.SliceHist)
	if err != nil {
		return err
	}

	if plan.ProfileStats != nil {
		err = c.writeStatsGroup(*plan.ProfileStats,
			collector.ProfileMin, collector.ProfileMax, collector.ProfileMean,
			collector.ProfileNaN, nil)
		if err != nil {
			return err
		}
	}
	if plan.CubeStats != nil {
		err = c.writeStatsGroup(*plan.CubeStats,
			collector.CubeMin, collector.CubeMax, collector.CubeMean,
			collector.CubeNaN, collector.CubeHist)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) writeStatsGroup(g layout.StatsGroup, min, max, mean []float32, nan, hist []int64) error {
	if err := c.createAndWriteFloats(g.Min, min); err != nil {
		return err
	}
	if err := c.createAndWriteFloats(g.Max, max); err != nil {
		return err
	}
	if err := c.createAndWriteFloats(g.Mean, mean); err != nil {
		return err
	}
	if err := c.createAndWriteInts(g.NaNCount, nan); err != nil {
		return err
	}
	if g.Histogram != nil {
		if err := c.createAndWriteInts(*g.Histogram, hist); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) createAndWriteFloats(spec layout.Dataset, data []float32) error {
	ref, err := c.sink.CreateDataset(spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if err := c.sink.WriteFloats(ref, data, nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

func (c *Converter) createAndWriteInts(spec layout.Dataset, data []int64) error {
	ref, err := c.sink.CreateDataset(spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if err := c.sink.WriteInts(ref, data, nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

// writeAttributes attaches the converter identity and the forwarded header
// cards to the data root group. Duplicate header keys keep the first value;
// later occurrences are dropped with a warning, as are cards that would
// shadow an identity attribute.
func (c *Converter) writeAttributes() error {
	identity := []models.HeaderEntry{
		{Key: attrSchemaVersion, Value: c.cfg.Converter.SchemaVersion},
		{Key: attrConverterName, Value: c.cfg.Converter.Name},
		{Key: attrConverterVersion, Value: c.cfg.Converter.Version},
	}

	seen := make(map[string]bool, len(identity))
	for _, attr := range identity {
		if err := c.sink.WriteAttribute(layout.DataRoot, attr.Key, attr.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
		seen[attr.Key] = true
	}

	for _, card := range c.source.Header() {
		if seen[card.Key] {
			c.log.Warnw("duplicate header key ignored", "key", card.Key)
			continue
		}
		seen[card.Key] = true
		if err := c.sink.WriteAttribute(layout.DataRoot, card.Key, card.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWrite, err)
		}
	}
	return nil
}

// stokesSelection returns the hyperslab covering one stokes plane of a
// dataset, or a whole-dataset selection when the dataset has no stokes axis.
func stokesSelection(dims []uint64, stokes int) (start, count []uint64) {
	if len(dims) < 4 {
		return nil, nil
	}
	start = make([]uint64, len(dims))
	start[0] = uint64(stokes)
	count = append([]uint64{1}, dims[1:]...)
	return start, count
}
