// Package layout plans the output container: which datasets are created,
// under which paths, with which dimensions and chunk shapes. The plan is a
// pure mapping from the cube geometry and the configuration; it holds no
// mutable state and performs no I/O.
package layout

import (
	"fmt"

	"fits2hdf5/internal/models"
	"fits2hdf5/pkg/geometry"
)

// ElementType identifies the storage type of a planned dataset.
type ElementType int

const (
	Float32 ElementType = iota
	Int64
)

// Dataset describes one dataset for the container writer. Path components
// are separated by '/' and are relative to the file root. A nil Chunk means
// contiguous storage. Empty Dims means a scalar dataset.
type Dataset struct {
	Path  string
	Elem  ElementType
	Dims  []uint64
	Chunk []uint64
}

// StatsGroup is the set of datasets for one statistics aggregation level.
// Histogram is nil for the profile level, which stores no histogram.
type StatsGroup struct {
	Min       Dataset
	Max       Dataset
	Mean      Dataset
	NaNCount  Dataset
	Histogram *Dataset
}

// MipLevel is one planned multi-resolution dataset.
type MipLevel struct {
	Factor  int
	Dataset Dataset
}

// Options carries the configuration the planner depends on.
type Options struct {
	// TileSize is the chunk edge applied to the trailing two axes
	TileSize int

	// Bins is the histogram bin count shared by all levels
	Bins int

	// EnableMips requests multi-resolution datasets
	EnableMips bool

	// MipMinEdge stops the mip progression once either spatial axis of the
	// next level would fall below it
	MipMinEdge int
}

// Plan is the complete set of datasets one conversion writes. Swizzled,
// ProfileStats and CubeStats are nil when depth == 1.
type Plan struct {
	Standard Dataset
	Swizzled *Dataset

	SliceStats   StatsGroup
	ProfileStats *StatsGroup
	CubeStats    *StatsGroup

	Mips []MipLevel
}

// DataRoot is the name of the top-level group every dataset lives under.
const DataRoot = "0"

// NewPlan derives the dataset plan for a cube of the given shape.
func NewPlan(dims models.CubeDims, opts Options) Plan {
	standardDims := geometry.StandardDims(dims)

	plan := Plan{
		Standard: Dataset{
			Path:  DataRoot + "/DATA",
			Elem:  Float32,
			Dims:  standardDims,
			Chunk: geometry.ChunkDims(standardDims, opts.TileSize),
		},
	}

	if dims.Depth > 1 {
		swizzledDims := geometry.SwizzledDims(dims)
		plan.Swizzled = &Dataset{
			Path:  DataRoot + "/SwizzledData/" + SwizzledName(dims.Rank),
			Elem:  Float32,
			Dims:  swizzledDims,
			Chunk: geometry.ChunkDims(swizzledDims, opts.TileSize),
		}
	}

	sliceDims := geometry.SliceStatsDims(dims)
	plan.SliceStats = statsGroup(DataRoot+"/Statistics/XY", sliceDims,
		geometry.HistogramDims(sliceDims, opts.Bins))

	if dims.Depth > 1 {
		profile := statsGroup(DataRoot+"/Statistics/Z", geometry.ProfileStatsDims(dims), nil)
		plan.ProfileStats = &profile

		cubeDims := geometry.CubeStatsDims(dims)
		cube := statsGroup(DataRoot+"/Statistics/XYZ", cubeDims,
			geometry.HistogramDims(cubeDims, opts.Bins))
		plan.CubeStats = &cube
	}

	if opts.EnableMips {
		plan.Mips = mipLevels(standardDims, opts)
	}

	return plan
}

// SwizzledName returns the axis-order name of the swizzled dataset: "ZYX"
// for 3D cubes and "ZYXW" for 4D cubes.
func SwizzledName(rank int) string {
	if rank == 4 {
		return "ZYXW"
	}
	return "ZYX"
}

func statsGroup(base string, statsDims, histDims []uint64) StatsGroup {
	g := StatsGroup{
		Min:      Dataset{Path: base + "/MIN", Elem: Float32, Dims: statsDims},
		Max:      Dataset{Path: base + "/MAX", Elem: Float32, Dims: statsDims},
		Mean:     Dataset{Path: base + "/MEAN", Elem: Float32, Dims: statsDims},
		NaNCount: Dataset{Path: base + "/NAN_COUNT", Elem: Int64, Dims: statsDims},
	}
	if histDims != nil {
		g.Histogram = &Dataset{Path: base + "/HISTOGRAM", Elem: Int64, Dims: histDims}
	}
	return g
}

// mipLevels doubles the decimation factor until either spatial axis of the
// next level would drop below the configured minimum edge.
func mipLevels(standardDims []uint64, opts Options) []MipLevel {
	var levels []MipLevel
	for factor := 2; ; factor *= 2 {
		dims := geometry.MipDims(standardDims, factor)
		h := dims[len(dims)-2]
		w := dims[len(dims)-1]
		if h < uint64(opts.MipMinEdge) || w < uint64(opts.MipMinEdge) {
			break
		}
		levels = append(levels, MipLevel{
			Factor: factor,
			Dataset: Dataset{
				Path:  fmt.Sprintf("%s/MipMaps/DATA/DATA_XY_%d", DataRoot, factor),
				Elem:  Float32,
				Dims:  dims,
				Chunk: geometry.ChunkDims(dims, opts.TileSize),
			},
		})
	}
	return levels
}
