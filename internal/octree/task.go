package octree

import (
	"sync/atomic"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/mesh"
	"voxelterrain/internal/tasks"
	"voxelterrain/internal/volume"
	"voxelterrain/internal/voxel"
)

// SurfaceExtractionTask builds the mesh of one node. Process reads the volume and
// hands the result back through the octree's completion queue; it never touches
// node state.
type SurfaceExtractionTask[V comparable] struct {
	node     NodeIndex
	region   geom.Region
	height   uint
	priority uint32

	vol       *volume.PagedVolume[V]
	traits    Traits[V]
	clock     *tasks.Clock
	completed *tasks.Queue[*SurfaceExtractionTask[V]]

	started atomic.Uint64
	mesh    *mesh.Mesh[V]
}

func (t *SurfaceExtractionTask[V]) Priority() uint32 { return t.priority }

func (t *SurfaceExtractionTask[V]) Node() NodeIndex { return t.node }

// ProcessingStarted is zero until a worker picks the task up.
func (t *SurfaceExtractionTask[V]) ProcessingStarted() tasks.Timestamp {
	return tasks.Timestamp(t.started.Load())
}

// Mesh is valid once the task has been popped from the completion queue.
func (t *SurfaceExtractionTask[V]) Mesh() *mesh.Mesh[V] { return t.mesh }

func (t *SurfaceExtractionTask[V]) Process() {
	t.started.Store(uint64(t.clock.Next()))
	t.mesh = extractNode(t.vol, t.traits, t.region, t.height)
	t.completed.Push(t)
}

// extractNode meshes r at 1/2^height resolution. Voxels are copied with a halo of one
// coarse cell, translated so r starts at the origin (keeping the coarse grid aligned
// with the node), downsampled, meshed, and scaled back to world space.
func extractNode[V comparable](vol *volume.PagedVolume[V], traits Traits[V], r geom.Region, height uint) *mesh.Mesh[V] {
	factor := 1 << height
	src := vol.Copy(r.Grow(factor), traits.Empty)

	origin := r.Min
	local := src.Translated(origin.Scale(-1))
	coarse := voxel.Downsample(local, traits.Empty, height)
	target := r.Translate(origin.Scale(-1)).ScaleDown(factor)

	m := traits.Extract(coarse, target, traits.Empty)
	if m == nil {
		m = &mesh.Mesh[V]{}
	}
	m.Transform(float32(factor), origin.Vec3())
	return m
}
