// Package models holds the plain data types shared between the conversion
// pipeline stages.
package models

// CubeDims describes the logical shape of an input cube as
// stokes x depth x height x width. Axes absent from the source are 1, so a
// 2D image has Depth == 1 and Stokes == 1.
type CubeDims struct {
	// Rank is the number of axes present in the source (2, 3 or 4)
	Rank int

	// Stokes is the number of polarization planes (outermost axis, rank 4 only)
	Stokes int

	// Depth is the number of channels along the spectral axis
	Depth int

	// Height and Width are the spatial dimensions of one image slice
	Height int
	Width  int
}

// PlaneSize returns the number of samples in one stokes plane.
func (d CubeDims) PlaneSize() int {
	return d.Depth * d.Height * d.Width
}

// SliceSize returns the number of samples in one height x width slice.
func (d CubeDims) SliceSize() int {
	return d.Height * d.Width
}

// HeaderEntry is one key/value card taken from the source header.
type HeaderEntry struct {
	Key   string
	Value string
}
