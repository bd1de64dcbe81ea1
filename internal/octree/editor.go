package octree

import (
	"voxelterrain/internal/geom"
	"voxelterrain/internal/volume"
)

// Editor writes voxels and tells the octree which nodes went stale. Use it from
// the goroutine that calls Update.
type Editor[V comparable] struct {
	vol  *volume.PagedVolume[V]
	tree *Octree[V]
}

func NewEditor[V comparable](tree *Octree[V]) *Editor[V] {
	return &Editor[V]{vol: tree.Volume(), tree: tree}
}

func (e *Editor[V]) Voxel(x, y, z int) V { return e.vol.Voxel(x, y, z) }

func (e *Editor[V]) SetVoxel(x, y, z int, v V) {
	e.vol.SetVoxel(x, y, z, v)
	e.tree.MarkDataAsModified(x, y, z)
}

// FillRegion sets every voxel of r to v and marks the region once.
func (e *Editor[V]) FillRegion(r geom.Region, v V) {
	if !r.IsValid() {
		return
	}
	r.ForEach(func(p geom.Vec3i) {
		e.vol.SetVoxel(p.X, p.Y, p.Z, v)
	})
	e.tree.MarkRegionAsModified(r)
}
