// Package stats computes the NaN-aware statistics and histograms stored
// alongside the converted cube: min/max/mean/NaN-count per XY slice, per Z
// profile and per whole cube, plus fixed-range histograms at the slice and
// cube levels. The slice pass also produces the axis-swizzled copy of the
// plane, so the cube is only traversed twice in total.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"fits2hdf5/internal/models"
)

// Collector accumulates statistics for a whole conversion. The slice, profile
// and cube arrays span every stokes index and are laid out exactly as they
// are written to the output file. Allocate one Collector up front and feed it
// one stokes plane at a time.
type Collector struct {
	dims    models.CubeDims
	bins    int
	workers int

	// per XY slice, indexed stokes*depth + z
	SliceMin  []float32
	SliceMax  []float32
	SliceMean []float32
	SliceNaN  []int64
	// indexed (stokes*depth + z)*bins + bin
	SliceHist []int64

	// per Z profile, indexed stokes*height*width + y*width + x
	// (nil when depth == 1)
	ProfileMin  []float32
	ProfileMax  []float32
	ProfileMean []float32
	ProfileNaN  []int64

	// per cube, indexed by stokes (nil when depth == 1)
	CubeMin  []float32
	CubeMax  []float32
	CubeMean []float32
	CubeNaN  []int64
	// indexed stokes*bins + bin
	CubeHist []int64
}

// NewCollector allocates the cumulative statistics arrays for a cube of the
// given shape. bins is the histogram bin count shared by all levels; workers
// caps the parallel fan-out of each reduction pass.
func NewCollector(dims models.CubeDims, bins, workers int) *Collector {
	if workers < 1 {
		workers = 1
	}
	c := &Collector{dims: dims, bins: bins, workers: workers}

	slices := dims.Stokes * dims.Depth
	c.SliceMin = make([]float32, slices)
	c.SliceMax = make([]float32, slices)
	c.SliceMean = make([]float32, slices)
	c.SliceNaN = make([]int64, slices)
	c.SliceHist = make([]int64, slices*bins)

	if dims.Depth > 1 {
		profiles := dims.Stokes * dims.Height * dims.Width
		c.ProfileMin = make([]float32, profiles)
		c.ProfileMax = make([]float32, profiles)
		c.ProfileMean = make([]float32, profiles)
		c.ProfileNaN = make([]int64, profiles)

		c.CubeMin = make([]float32, dims.Stokes)
		c.CubeMax = make([]float32, dims.Stokes)
		c.CubeMean = make([]float32, dims.Stokes)
		c.CubeNaN = make([]int64, dims.Stokes)
		c.CubeHist = make([]int64, dims.Stokes*bins)
	}

	return c
}

// Bins returns the histogram bin count the collector was created with.
func (c *Collector) Bins() int {
	return c.bins
}

// ProcessPlane runs every reduction pass for one stokes plane. plane holds
// depth*height*width values in (depth, height, width) order. When swizzled is
// non-nil it must have the same length and is filled with the
// (width, height, depth)-ordered copy during the slice pass; pass nil when no
// swizzled dataset is produced.
//
// The parallel passes partition their index range across workers and each
// worker writes only to the output slots it owns, so results are identical
// for any worker count.
func (c *Collector) ProcessPlane(stokes int, plane, swizzled []float32) {
	c.reduceSlices(stokes, plane, swizzled)
	if c.dims.Depth > 1 {
		c.consolidateCube(stokes)
		c.reduceProfiles(stokes, plane)
	}
	c.binHistograms(stokes, plane)
}

// reduceSlices is the first pass: one reduction per XY slice, parallel over
// the depth index, with the swizzle copy fused into the same traversal.
func (c *Collector) reduceSlices(stokes int, plane, swizzled []float32) {
	depth := c.dims.Depth
	height := c.dims.Height
	width := c.dims.Width
	sliceSize := c.dims.SliceSize()

	parallelFor(c.workers, depth, func(lo, hi int) {
		for z := lo; z < hi; z++ {
			minVal := float32(math.MaxFloat32)
			maxVal := float32(-math.MaxFloat32)
			sum := float64(0)
			nanCount := int64(0)

			base := z * sliceSize
			for y := 0; y < height; y++ {
				row := base + y*width
				for x := 0; x < width; x++ {
					val := plane[row+x]
					if swizzled != nil {
						// destination is (width, height, depth) order; a
						// direct copy preserves NaN payloads bit for bit
						swizzled[z+depth*y+depth*height*x] = val
					}
					if math.IsNaN(float64(val)) {
						nanCount++
					} else {
						if val < minVal {
							minVal = val
						}
						if val > maxVal {
							maxVal = val
						}
						sum += float64(val)
					}
				}
			}

			out := stokes*depth + z
			if nanCount == int64(sliceSize) {
				nan := float32(math.NaN())
				c.SliceMin[out] = nan
				c.SliceMax[out] = nan
				c.SliceMean[out] = nan
			} else {
				c.SliceMin[out] = minVal
				c.SliceMax[out] = maxVal
				c.SliceMean[out] = float32(sum / float64(int64(sliceSize)-nanCount))
			}
			c.SliceNaN[out] = nanCount
		}
	})
}

// consolidateCube folds the slice statistics of one stokes index into the
// cube-level statistics. The cube min/max are the extrema of the slice
// extrema and the mean is weighted by each slice's finite-sample count, so no
// third pass over the raw data is needed. Runs sequentially after the slice
// pass completes.
func (c *Collector) consolidateCube(stokes int) {
	depth := c.dims.Depth
	sliceSize := int64(c.dims.SliceSize())

	mins := make([]float64, 0, depth)
	maxs := make([]float64, 0, depth)
	means := make([]float64, 0, depth)
	weights := make([]float64, 0, depth)
	nanTotal := int64(0)

	for z := 0; z < depth; z++ {
		idx := stokes*depth + z
		nanTotal += c.SliceNaN[idx]
		if math.IsNaN(float64(c.SliceMean[idx])) {
			// all-NaN slice: counts toward the NaN total, nothing else
			continue
		}
		mins = append(mins, float64(c.SliceMin[idx]))
		maxs = append(maxs, float64(c.SliceMax[idx]))
		means = append(means, float64(c.SliceMean[idx]))
		weights = append(weights, float64(sliceSize-c.SliceNaN[idx]))
	}

	c.CubeNaN[stokes] = nanTotal
	if len(means) == 0 {
		nan := float32(math.NaN())
		c.CubeMin[stokes] = nan
		c.CubeMax[stokes] = nan
		c.CubeMean[stokes] = nan
		return
	}
	c.CubeMin[stokes] = float32(floats.Min(mins))
	c.CubeMax[stokes] = float32(floats.Max(maxs))
	c.CubeMean[stokes] = float32(stat.Mean(means, weights))
}

// reduceProfiles is the second pass: one reduction per (y, x) position along
// the depth axis, parallel over image rows.
func (c *Collector) reduceProfiles(stokes int, plane []float32) {
	depth := c.dims.Depth
	height := c.dims.Height
	width := c.dims.Width
	sliceSize := c.dims.SliceSize()

	parallelFor(c.workers, height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < width; x++ {
				minVal := float32(math.MaxFloat32)
				maxVal := float32(-math.MaxFloat32)
				sum := float64(0)
				nanCount := int64(0)

				for z := 0; z < depth; z++ {
					val := plane[x+width*y+sliceSize*z]
					if math.IsNaN(float64(val)) {
						nanCount++
					} else {
						if val < minVal {
							minVal = val
						}
						if val > maxVal {
							maxVal = val
						}
						sum += float64(val)
					}
				}

				out := stokes*sliceSize + y*width + x
				if nanCount == int64(depth) {
					nan := float32(math.NaN())
					c.ProfileMin[out] = nan
					c.ProfileMax[out] = nan
					c.ProfileMean[out] = nan
				} else {
					c.ProfileMin[out] = minVal
					c.ProfileMax[out] = maxVal
					c.ProfileMean[out] = float32(sum / float64(int64(depth)-nanCount))
				}
				c.ProfileNaN[out] = nanCount
			}
		}
	})
}

// binHistograms is the final pass: per-slice histograms against each slice's
// own range and, when depth > 1, per-slice partial histograms against the
// cube range. The partial histograms are index-partitioned per depth slot, so
// the parallel fan-out never touches a shared counter; they are summed
// sequentially afterwards.
func (c *Collector) binHistograms(stokes int, plane []float32) {
	depth := c.dims.Depth
	bins := c.bins
	sliceSize := c.dims.SliceSize()

	var cubeMin, cubeRange float64
	if depth > 1 {
		cubeMin = float64(c.CubeMin[stokes])
		cubeRange = float64(c.CubeMax[stokes]) - cubeMin
	}

	var partial []int64
	if depth > 1 {
		partial = make([]int64, depth*bins)
	}

	parallelFor(c.workers, depth, func(lo, hi int) {
		for z := lo; z < hi; z++ {
			sliceMin := float64(c.SliceMin[stokes*depth+z])
			sliceMax := float64(c.SliceMax[stokes*depth+z])
			sliceRange := sliceMax - sliceMin
			if math.IsNaN(sliceMin) || math.IsNaN(sliceMax) || sliceRange == 0 {
				// degenerate or constant slice: all bins stay zero
				continue
			}

			histBase := (stokes*depth + z) * bins
			for i := 0; i < sliceSize; i++ {
				val := float64(plane[z*sliceSize+i])
				if math.IsNaN(val) {
					continue
				}
				c.SliceHist[histBase+binIndex(bins, val, sliceMin, sliceRange)]++
				if depth > 1 {
					partial[z*bins+binIndex(bins, val, cubeMin, cubeRange)]++
				}
			}
		}
	})

	if depth > 1 {
		cubeBase := stokes * bins
		for z := 0; z < depth; z++ {
			for b := 0; b < bins; b++ {
				c.CubeHist[cubeBase+b] += partial[z*bins+b]
			}
		}
	}
}

// binIndex maps a finite value onto a bin of the fixed range [min, min+rng).
// Values exactly at the range maximum land in the last bin.
func binIndex(bins int, val, min, rng float64) int {
	b := int(float64(bins) * (val - min) / rng)
	if b < 0 {
		b = 0
	}
	if b > bins-1 {
		b = bins - 1
	}
	return b
}
