package voxel

import (
	"testing"

	"voxelterrain/internal/geom"
)

func TestDownsample2xRequiresAllEightSolid(t *testing.T) {
	src := NewRawVolume[Material](geom.NewRegion(0, 0, 0, 3, 1, 1), 0)
	// Coarse cell (0,0,0): all eight solid, mostly material 2.
	geom.NewRegion(0, 0, 0, 1, 1, 1).ForEach(func(p geom.Vec3i) { src.SetVoxel(p.X, p.Y, p.Z, 2) })
	src.SetVoxel(0, 0, 0, 5)
	// Coarse cell (1,0,0): seven solid, one empty.
	geom.NewRegion(2, 0, 0, 3, 1, 1).ForEach(func(p geom.Vec3i) { src.SetVoxel(p.X, p.Y, p.Z, 3) })
	src.SetVoxel(3, 1, 1, 0)

	dst := Downsample2x(src, Material(0))
	if got := dst.Region(); got != geom.NewRegion(0, 0, 0, 1, 0, 0) {
		t.Fatalf("coarse region: got %v", got)
	}
	if got := dst.Voxel(0, 0, 0); got != 2 {
		t.Fatalf("majority material: got %d want 2", got)
	}
	if got := dst.Voxel(1, 0, 0); got != 0 {
		t.Fatalf("partially empty cell should be empty, got %d", got)
	}
}

func TestDownsampleLevels(t *testing.T) {
	src := NewRawVolume[MaterialDensity](geom.CubeAt(geom.V(0, 0, 0), 8), MaterialDensity{})
	solid := MaterialDensity{Material: 1, Density: 255}
	src.Region().ForEach(func(p geom.Vec3i) { src.SetVoxel(p.X, p.Y, p.Z, solid) })

	dst := Downsample(src, MaterialDensity{}, 2)
	if got := dst.Region().Dimensions(); got != geom.V(2, 2, 2) {
		t.Fatalf("dims after two levels: got %v", got)
	}
	if dst.Voxel(1, 1, 1) != solid {
		t.Fatalf("fully solid source should stay solid")
	}
	if dst.Voxel(2, 0, 0) != (MaterialDensity{}) {
		t.Fatalf("outside reads should return the border value")
	}
}
