// Package mipmap produces the downsampled (mip) versions of a cube plane.
// Each output sample is the mean of the finite samples in one factor x factor
// block of the source slice; blocks with no finite samples become NaN, so
// blanked regions stay blanked at every resolution.
package mipmap

import "math"

// DownsamplePlane reduces every height x width slice of a
// (depth, height, width)-ordered plane by the given decimation factor. The
// result has shape (depth, ceil(height/factor), ceil(width/factor)) in the
// same ordering.
func DownsamplePlane(plane []float32, depth, height, width, factor int) []float32 {
	mipHeight := (height + factor - 1) / factor
	mipWidth := (width + factor - 1) / factor
	out := make([]float32, depth*mipHeight*mipWidth)

	for z := 0; z < depth; z++ {
		srcBase := z * height * width
		dstBase := z * mipHeight * mipWidth
		for my := 0; my < mipHeight; my++ {
			for mx := 0; mx < mipWidth; mx++ {
				sum := float64(0)
				count := 0
				for y := my * factor; y < min((my+1)*factor, height); y++ {
					for x := mx * factor; x < min((mx+1)*factor, width); x++ {
						val := plane[srcBase+y*width+x]
						if !math.IsNaN(float64(val)) {
							sum += float64(val)
							count++
						}
					}
				}
				if count == 0 {
					out[dstBase+my*mipWidth+mx] = float32(math.NaN())
				} else {
					out[dstBase+my*mipWidth+mx] = float32(sum / float64(count))
				}
			}
		}
	}

	return out
}
