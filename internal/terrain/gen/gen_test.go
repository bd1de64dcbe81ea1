package gen

import (
	"io"
	"log"
	"testing"

	"voxelterrain/internal/volume"
	"voxelterrain/internal/voxel"
)

func TestDeterministic(t *testing.T) {
	a := New(Config{Seed: 42, BaseHeight: 32})
	b := New(Config{Seed: 42, BaseHeight: 32})
	for x := -50; x < 50; x += 7 {
		for z := -50; z < 50; z += 11 {
			if a.SurfaceHeight(x, z) != b.SurfaceHeight(x, z) {
				t.Fatalf("height differs at %d,%d", x, z)
			}
			for y := 0; y < 40; y += 3 {
				if a.Material(x, y, z) != b.Material(x, y, z) {
					t.Fatalf("material differs at %d,%d,%d", x, y, z)
				}
			}
		}
	}
}

func TestSeedsDiffer(t *testing.T) {
	a := New(Config{Seed: 1, BaseHeight: 32})
	b := New(Config{Seed: 2, BaseHeight: 32})
	same := 0
	for x := 0; x < 256; x += 8 {
		if a.SurfaceHeight(x, x) == b.SurfaceHeight(x, x) {
			same++
		}
	}
	if same == 32 {
		t.Fatalf("different seeds produced identical terrain")
	}
}

func TestHeightWithinAmplitude(t *testing.T) {
	g := New(Config{Seed: 7, BaseHeight: 100, Amplitude: 10})
	for x := -300; x < 300; x += 13 {
		for z := -300; z < 300; z += 17 {
			h := g.SurfaceHeight(x, z)
			if h < 90 || h > 110 {
				t.Fatalf("height %d at %d,%d outside [90,110]", h, x, z)
			}
			if g.Material(x, h+1, z) == DefaultPalette.Stone || g.Material(x, h-10, z) == DefaultPalette.Air {
				t.Fatalf("column %d,%d not layered around %d", x, z, h)
			}
		}
	}
}

func TestDensityIsSolidBelowSurface(t *testing.T) {
	g := New(Config{Seed: 3, BaseHeight: 20})
	h := g.SurfaceHeight(5, 5)
	if d := g.Density(5, h+1, 5); d != (voxel.MaterialDensity{}) {
		t.Fatalf("above surface: got %+v", d)
	}
	if d := g.Density(5, h, 5); d.Density != 128 {
		t.Fatalf("surface density: got %d want 128", d.Density)
	}
	if d := g.Density(5, h-10, 5); d.Density != 255 {
		t.Fatalf("deep density: got %d want 255", d.Density)
	}
}

func TestPagerMatchesGenerator(t *testing.T) {
	g := New(Config{Seed: 9, BaseHeight: 16})
	v, err := volume.New(volume.Config[voxel.Material]{
		ChunkSideLength: 16,
		Pager:           NewMaterialPager(g),
		Logger:          log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	for x := -20; x < 20; x += 3 {
		for y := 0; y < 32; y += 5 {
			if got, want := v.Voxel(x, y, x*2), g.Material(x, y, x*2); got != want {
				t.Fatalf("%d,%d,%d: got %d want %d", x, y, x*2, got, want)
			}
		}
	}
	if st := v.Stats(); st.CreatedChunks != st.PageIns {
		t.Fatalf("generated chunks should all be fresh: %+v", st)
	}
}

func TestInClusterRespectsProbability(t *testing.T) {
	if InCluster(1, 0, 0, 0, 16, 3, 0) {
		t.Fatalf("zero probability should never hit")
	}
	h := Hash3(1, 0, 0, 0)
	cx, cy, cz := int((h>>10)%16), int((h>>20)%16), int((h>>30)%16)
	if !InCluster(1, cx, cy, cz, 16, 3, 1000) {
		t.Fatalf("cluster centre %d,%d,%d not inside its own cluster", cx, cy, cz)
	}
}
