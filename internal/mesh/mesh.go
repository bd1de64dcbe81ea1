// Package mesh is the boundary to the surface-extraction algorithms. The LOD core
// only moves *Mesh values around; it never looks inside them.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/voxel"
)

type Vertex[V comparable] struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Data     V
}

type Mesh[V comparable] struct {
	Vertices []Vertex[V]
	Indices  []uint32
}

func (m *Mesh[V]) IsEmpty() bool { return m == nil || len(m.Indices) == 0 }

func (m *Mesh[V]) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

// Transform scales every vertex position by s and then translates it by offset.
func (m *Mesh[V]) Transform(s float32, offset mgl32.Vec3) {
	if m == nil {
		return
	}
	for i := range m.Vertices {
		m.Vertices[i].Position = m.Vertices[i].Position.Mul(s).Add(offset)
	}
}

// Bounds is the axis-aligned box of all vertex positions.
func (m *Mesh[V]) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	if m == nil || len(m.Vertices) == 0 {
		return lo, hi, false
	}
	lo, hi = m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], v.Position[a])
			hi[a] = max(hi[a], v.Position[a])
		}
	}
	return lo, hi, true
}

// ExtractFunc converts the voxels of r into a mesh. It may read one voxel outside r
// on every side. Implementations must be pure: callers run them on worker goroutines.
type ExtractFunc[V comparable] func(src voxel.Source[V], r geom.Region, empty V) *Mesh[V]
