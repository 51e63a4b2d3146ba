// Package hdf5sink writes the converter's output into an HDF5 container.
//
// The underlying writer takes a dataset's full contents at creation time, so
// the sink buffers every write in memory and materializes the file in one
// pass when it is closed. Nothing touches the disk before Close, which keeps
// aborted conversions from leaving partial files behind.
package hdf5sink

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-hdf5/hdf5"

	"fits2hdf5/pkg/converter"
	"fits2hdf5/pkg/geometry"
	"fits2hdf5/pkg/layout"
)

type attribute struct {
	name  string
	value any
}

type dataset struct {
	spec   layout.Dataset
	floats []float32
	ints   []int64
}

// Sink buffers datasets and attributes and writes them to one HDF5 file on
// Close. It implements converter.Sink. Not safe for concurrent use.
type Sink struct {
	path     string
	order    []string
	datasets map[string]*dataset
	groups   []string
	attrs    map[string][]attribute
	aborted  bool
}

var _ converter.Sink = (*Sink)(nil)

// New returns a sink that will write the container to path when closed.
func New(path string) *Sink {
	return &Sink{
		path:     path,
		datasets: make(map[string]*dataset),
		attrs:    make(map[string][]attribute),
	}
}

// CreateGroup records a top-level group. Deeper path components are handled
// at dataset level; see flatten.
func (s *Sink) CreateGroup(path string) error {
	top := strings.SplitN(path, "/", 2)[0]
	for _, existing := range s.groups {
		if existing == top {
			return nil
		}
	}
	s.groups = append(s.groups, top)
	return nil
}

// CreateDataset allocates the buffer for one planned dataset.
func (s *Sink) CreateDataset(spec layout.Dataset) (converter.DatasetRef, error) {
	if _, exists := s.datasets[spec.Path]; exists {
		return nil, fmt.Errorf("dataset %s already exists", spec.Path)
	}

	ds := &dataset{spec: spec}
	size := geometry.Product(spec.Dims)
	switch spec.Elem {
	case layout.Float32:
		ds.floats = make([]float32, size)
	case layout.Int64:
		ds.ints = make([]int64, size)
	default:
		return nil, fmt.Errorf("dataset %s: unknown element type %d", spec.Path, spec.Elem)
	}

	s.datasets[spec.Path] = ds
	s.order = append(s.order, spec.Path)
	if err := s.CreateGroup(spec.Path); err != nil {
		return nil, err
	}
	return ds, nil
}

// WriteFloats copies float32 data into the buffered dataset.
func (s *Sink) WriteFloats(ref converter.DatasetRef, data []float32, start, count []uint64) error {
	ds, err := asDataset(ref)
	if err != nil {
		return err
	}
	if ds.floats == nil {
		return fmt.Errorf("dataset %s does not hold float32 samples", ds.spec.Path)
	}
	off, err := slabOffset(ds.spec.Dims, start, len(data))
	if err != nil {
		return fmt.Errorf("dataset %s: %w", ds.spec.Path, err)
	}
	copy(ds.floats[off:], data)
	return nil
}

// WriteInts copies int64 data into the buffered dataset.
func (s *Sink) WriteInts(ref converter.DatasetRef, data []int64, start, count []uint64) error {
	ds, err := asDataset(ref)
	if err != nil {
		return err
	}
	if ds.ints == nil {
		return fmt.Errorf("dataset %s does not hold int64 samples", ds.spec.Path)
	}
	off, err := slabOffset(ds.spec.Dims, start, len(data))
	if err != nil {
		return fmt.Errorf("dataset %s: %w", ds.spec.Path, err)
	}
	copy(ds.ints[off:], data)
	return nil
}

// WriteAttribute buffers a scalar attribute for the group at path.
func (s *Sink) WriteAttribute(path, name string, value any) error {
	top := strings.SplitN(path, "/", 2)[0]
	s.attrs[top] = append(s.attrs[top], attribute{name: name, value: value})
	return nil
}

// Abort discards everything buffered so far. The output file is never
// created.
func (s *Sink) Abort() {
	s.aborted = true
	s.datasets = nil
	s.order = nil
	s.attrs = nil
	s.groups = nil
}

// Close materializes the buffered container into the target file.
func (s *Sink) Close() (err error) {
	if s.aborted {
		return fmt.Errorf("sink was aborted")
	}

	f, err := hdf5.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	groups := make(map[string]*hdf5.Group, len(s.groups))
	for _, name := range s.groups {
		g, err := f.Root().CreateGroup(name)
		if err != nil {
			return fmt.Errorf("creating group %s: %w", name, err)
		}
		groups[name] = g
	}

	attached := make(map[string]bool, len(s.attrs))
	for _, path := range s.order {
		ds := s.datasets[path]
		groupName, flatName := flatten(path)
		g := groups[groupName]
		if g == nil {
			return fmt.Errorf("dataset %s has no group", path)
		}

		var opts []hdf5.DatasetOption
		if ds.spec.Chunk != nil {
			opts = append(opts, hdf5.WithChunks(ds.spec.Chunk...))
		}
		// group attributes ride on the group's first dataset; the writer
		// has no API to attach attributes to a group directly
		if !attached[groupName] {
			for _, attr := range s.attrs[groupName] {
				opts = append(opts, hdf5.WithAttribute(attr.name, attr.value))
			}
			attached[groupName] = true
		}

		if _, err := g.CreateDataset(flatName, nested(ds), opts...); err != nil {
			return fmt.Errorf("creating dataset %s: %w", path, err)
		}
	}

	return nil
}

func asDataset(ref converter.DatasetRef) (*dataset, error) {
	ds, ok := ref.(*dataset)
	if !ok {
		return nil, fmt.Errorf("foreign dataset reference %T", ref)
	}
	return ds, nil
}

// slabOffset maps a hyperslab selection onto the linear buffer. Selections
// always cover whole slabs along the leading axis, so the offset is the
// leading index times the slab size.
func slabOffset(dims, start []uint64, n int) (int, error) {
	if start == nil {
		if uint64(n) != geometry.Product(dims) {
			return 0, fmt.Errorf("%d samples for a %d-sample dataset", n, geometry.Product(dims))
		}
		return 0, nil
	}
	if len(start) != len(dims) {
		return 0, fmt.Errorf("selection rank %d against dataset rank %d", len(start), len(dims))
	}
	slab := geometry.Product(dims[1:])
	if uint64(n) != slab {
		return 0, fmt.Errorf("%d samples for a %d-sample slab", n, slab)
	}
	if start[0]*slab+slab > geometry.Product(dims) {
		return 0, fmt.Errorf("selection start %d out of range", start[0])
	}
	return int(start[0] * slab), nil
}

// flatten splits a dataset path into its top-level group and a flat dataset
// name. The writer cannot reliably extend groups nested below the root (link
// updates only resolve for children of the root group), so deeper path
// components are folded into the dataset name with dots.
func flatten(path string) (group, name string) {
	parts := strings.Split(path, "/")
	return parts[0], strings.Join(parts[1:], ".")
}

// nested reshapes the flat buffer into the nested-slice form the writer
// infers dimensions from.
func nested(ds *dataset) any {
	if ds.floats != nil {
		return nestSlice(ds.floats, ds.spec.Dims)
	}
	return nestSlice(ds.ints, ds.spec.Dims)
}

func nestSlice[T any](flat []T, dims []uint64) any {
	switch len(dims) {
	case 2:
		return nest2(flat, dims)
	case 3:
		return nest3(flat, dims)
	case 4:
		return nest4(flat, dims)
	default:
		return flat
	}
}

func nest2[T any](flat []T, dims []uint64) [][]T {
	d0, d1 := int(dims[0]), int(dims[1])
	out := make([][]T, d0)
	for i := range out {
		out[i] = flat[i*d1 : (i+1)*d1]
	}
	return out
}

func nest3[T any](flat []T, dims []uint64) [][][]T {
	d0 := int(dims[0])
	inner := int(dims[1] * dims[2])
	out := make([][][]T, d0)
	for i := range out {
		out[i] = nest2(flat[i*inner:(i+1)*inner], dims[1:])
	}
	return out
}

func nest4[T any](flat []T, dims []uint64) [][][][]T {
	d0 := int(dims[0])
	inner := int(dims[1] * dims[2] * dims[3])
	out := make([][][][]T, d0)
	for i := range out {
		out[i] = nest3(flat[i*inner:(i+1)*inner], dims[1:])
	}
	return out
}
