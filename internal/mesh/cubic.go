package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/voxel"
)

type face struct {
	dir     geom.Vec3i
	normal  mgl32.Vec3
	corners [4]mgl32.Vec3
}

// Corners are offsets from the voxel's minimum corner, wound counter-clockwise when
// viewed from outside.
var cubeFaces = [6]face{
	{geom.V(1, 0, 0), mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{geom.V(-1, 0, 0), mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{geom.V(0, 1, 0), mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{geom.V(0, -1, 0), mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{geom.V(0, 0, 1), mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{geom.V(0, 0, -1), mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// ExtractCubic emits one quad for every face between a solid voxel inside r and an
// empty neighbour (which may lie outside r). Positions are in source voxel units.
func ExtractCubic[V comparable](src voxel.Source[V], r geom.Region, empty V) *Mesh[V] {
	m := &Mesh[V]{}
	for z := r.Min.Z; z <= r.Max.Z; z++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for x := r.Min.X; x <= r.Max.X; x++ {
				v := src.Voxel(x, y, z)
				if v == empty {
					continue
				}
				base := mgl32.Vec3{float32(x), float32(y), float32(z)}
				for _, f := range cubeFaces {
					if src.Voxel(x+f.dir.X, y+f.dir.Y, z+f.dir.Z) != empty {
						continue
					}
					first := uint32(len(m.Vertices))
					for _, c := range f.corners {
						m.Vertices = append(m.Vertices, Vertex[V]{Position: base.Add(c), Normal: f.normal, Data: v})
					}
					m.Indices = append(m.Indices, first, first+1, first+2, first, first+2, first+3)
				}
			}
		}
	}
	return m
}
