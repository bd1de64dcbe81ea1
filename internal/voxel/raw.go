package voxel

import "voxelterrain/internal/geom"

// RawVolume is a dense, bounded voxel box addressed by absolute coordinates.
// Reads outside the box return Border.
type RawVolume[V comparable] struct {
	region geom.Region
	dims   geom.Vec3i
	data   []V

	Border V
}

func NewRawVolume[V comparable](r geom.Region, border V) *RawVolume[V] {
	if !r.IsValid() {
		panic("voxel: raw volume over invalid region " + r.String())
	}
	rv := &RawVolume[V]{
		region: r,
		dims:   r.Dimensions(),
		data:   make([]V, r.Volume()),
		Border: border,
	}
	if border != *new(V) {
		for i := range rv.data {
			rv.data[i] = border
		}
	}
	return rv
}

func (rv *RawVolume[V]) Region() geom.Region { return rv.region }

func (rv *RawVolume[V]) index(x, y, z int) int {
	lx := x - rv.region.Min.X
	ly := y - rv.region.Min.Y
	lz := z - rv.region.Min.Z
	return lx + ly*rv.dims.X + lz*rv.dims.X*rv.dims.Y
}

func (rv *RawVolume[V]) Voxel(x, y, z int) V {
	if !rv.region.Contains(x, y, z) {
		return rv.Border
	}
	return rv.data[rv.index(x, y, z)]
}

func (rv *RawVolume[V]) SetVoxel(x, y, z int, v V) {
	if !rv.region.Contains(x, y, z) {
		return
	}
	rv.data[rv.index(x, y, z)] = v
}

// Row returns the backing slice for the x-run at (y, z), starting at region.Min.X.
func (rv *RawVolume[V]) Row(y, z int) []V {
	i := rv.index(rv.region.Min.X, y, z)
	return rv.data[i : i+rv.dims.X]
}

// Translated returns a view of the same voxels with the region moved by d. The two
// share storage.
func (rv *RawVolume[V]) Translated(d geom.Vec3i) *RawVolume[V] {
	out := *rv
	out.region = rv.region.Translate(d)
	return &out
}
