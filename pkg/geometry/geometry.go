// Package geometry derives the output layout shapes from the input cube
// dimensions: dataset dimension vectors, histogram bin counts, chunk shapes
// and mip-level shapes. Everything here is a pure function of its inputs.
package geometry

import (
	"math"

	"fits2hdf5/internal/models"
)

// BinCount returns the number of histogram bins used for every statistics
// level: round(sqrt(width*height)). The same count is deliberately shared by
// the slice-level and cube-level histograms.
func BinCount(width, height int) int {
	return int(math.Sqrt(float64(width)*float64(height)) + 0.5)
}

// StandardDims returns the dataset dimensions for the cube in natural storage
// order (stokes, depth, height, width), with leading absent axes dropped to
// match the source rank.
func StandardDims(d models.CubeDims) []uint64 {
	dims := []uint64{uint64(d.Height), uint64(d.Width)}
	if d.Rank >= 3 {
		dims = append([]uint64{uint64(d.Depth)}, dims...)
	}
	if d.Rank == 4 {
		dims = append([]uint64{uint64(d.Stokes)}, dims...)
	}
	return dims
}

// SwizzledDims returns the dataset dimensions for the axis-permuted copy that
// exposes depth as the fastest-varying axis: (stokes, width, height, depth)
// with trailing axes trimmed to the source rank. Only meaningful when
// depth > 1.
func SwizzledDims(d models.CubeDims) []uint64 {
	dims := []uint64{uint64(d.Width), uint64(d.Height)}
	if d.Rank >= 3 {
		dims = append(dims, uint64(d.Depth))
	}
	if d.Rank == 4 {
		dims = append([]uint64{uint64(d.Stokes)}, dims...)
	}
	return dims
}

// SliceStatsDims returns the shape of the per-slice statistics arrays: one
// entry per depth index, per stokes index. For a 2D image this is empty
// (a scalar statistic).
func SliceStatsDims(d models.CubeDims) []uint64 {
	var dims []uint64
	if d.Rank >= 3 {
		dims = append(dims, uint64(d.Depth))
	}
	if d.Rank == 4 {
		dims = append([]uint64{uint64(d.Stokes)}, dims...)
	}
	return dims
}

// ProfileStatsDims returns the shape of the per-profile statistics arrays:
// one entry per (y, x) position, per stokes index.
func ProfileStatsDims(d models.CubeDims) []uint64 {
	dims := []uint64{uint64(d.Height), uint64(d.Width)}
	if d.Rank == 4 {
		dims = append([]uint64{uint64(d.Stokes)}, dims...)
	}
	return dims
}

// CubeStatsDims returns the shape of the whole-cube statistics arrays: one
// entry per stokes index, empty (scalar) below rank 4.
func CubeStatsDims(d models.CubeDims) []uint64 {
	if d.Rank == 4 {
		return []uint64{uint64(d.Stokes)}
	}
	return nil
}

// HistogramDims appends the bin axis to a statistics shape.
func HistogramDims(statsDims []uint64, bins int) []uint64 {
	dims := make([]uint64, 0, len(statsDims)+1)
	dims = append(dims, statsDims...)
	return append(dims, uint64(bins))
}

// MipDims returns the dataset dimensions at decimation factor mip: the
// trailing two (spatial) axes are divided by mip and rounded up, all other
// axes are unchanged.
func MipDims(dims []uint64, mip int) []uint64 {
	out := make([]uint64, len(dims))
	copy(out, dims)
	for i := max(0, len(dims)-2); i < len(dims); i++ {
		out[i] = (dims[i] + uint64(mip) - 1) / uint64(mip)
	}
	return out
}

// UseChunks reports whether a dataset with the given dimensions should use
// chunked storage: true iff both trailing (spatial) axes are at least the
// tile size. Below that, chunking overhead is not justified.
func UseChunks(dims []uint64, tile int) bool {
	for i := max(0, len(dims)-2); i < len(dims); i++ {
		if dims[i] < uint64(tile) {
			return false
		}
	}
	return true
}

// ChunkDims returns the chunk shape for a dataset: the tile edge applied to
// the trailing two axes and 1 elsewhere, or nil (contiguous storage) when
// UseChunks is false.
func ChunkDims(dims []uint64, tile int) []uint64 {
	if !UseChunks(dims, tile) {
		return nil
	}
	chunk := make([]uint64, len(dims))
	for i := range chunk {
		chunk[i] = 1
	}
	for i := max(0, len(dims)-2); i < len(dims); i++ {
		chunk[i] = uint64(tile)
	}
	return chunk
}

// Product returns the number of elements in a dataset with the given
// dimensions. An empty shape is a scalar and has one element.
func Product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}
