package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/voxel"
)

func TestExtractCubicSingleVoxel(t *testing.T) {
	src := voxel.NewRawVolume[voxel.Material](geom.CubeAt(geom.V(-1, -1, -1), 3), 0)
	src.SetVoxel(0, 0, 0, 7)

	m := ExtractCubic[voxel.Material](src, geom.CubeAt(geom.V(0, 0, 0), 1), 0)
	if got := m.TriangleCount(); got != 12 {
		t.Fatalf("triangles: got %d want 12", got)
	}
	lo, hi, ok := m.Bounds()
	if !ok || lo != (mgl32.Vec3{0, 0, 0}) || hi != (mgl32.Vec3{1, 1, 1}) {
		t.Fatalf("bounds: got %v..%v", lo, hi)
	}
	for _, v := range m.Vertices {
		if v.Data != 7 {
			t.Fatalf("vertex payload: got %d", v.Data)
		}
	}
}

func TestExtractCubicHidesSharedFaces(t *testing.T) {
	src := voxel.NewRawVolume[voxel.Material](geom.CubeAt(geom.V(-1, -1, -1), 4), 0)
	src.SetVoxel(0, 0, 0, 1)
	src.SetVoxel(1, 0, 0, 1)

	m := ExtractCubic[voxel.Material](src, geom.NewRegion(0, 0, 0, 1, 0, 0), 0)
	if got := m.TriangleCount(); got != 20 {
		t.Fatalf("two adjacent cubes should have 10 quads, got %d triangles", got)
	}

	// A solid neighbour outside the extracted region still hides the face.
	half := ExtractCubic[voxel.Material](src, geom.CubeAt(geom.V(0, 0, 0), 1), 0)
	if got := half.TriangleCount(); got != 10 {
		t.Fatalf("face toward halo neighbour should be culled, got %d triangles", got)
	}
}

func TestTransform(t *testing.T) {
	m := &Mesh[voxel.Material]{Vertices: []Vertex[voxel.Material]{{Position: mgl32.Vec3{1, 2, 3}}}}
	m.Transform(2, mgl32.Vec3{10, 0, 0})
	if got := m.Vertices[0].Position; got != (mgl32.Vec3{12, 4, 6}) {
		t.Fatalf("transform: got %v", got)
	}
	var nilMesh *Mesh[voxel.Material]
	if !nilMesh.IsEmpty() {
		t.Fatalf("nil mesh should be empty")
	}
}
