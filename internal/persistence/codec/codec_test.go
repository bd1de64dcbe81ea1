package codec

import (
	"testing"

	"voxelterrain/internal/voxel"
)

func sampleMaterials() []voxel.Material {
	data := make([]voxel.Material, 16*16*16)
	for i := range data {
		switch {
		case i < 1000:
			data[i] = 1
		case i%97 == 0:
			data[i] = 513
		}
	}
	return data
}

func TestChunkRoundTripAllCompressors(t *testing.T) {
	in := sampleMaterials()
	for _, name := range []string{"zstd", "zlib", "none"} {
		comp, err := NewCompressor(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		c := Chunk[voxel.Material]{Words: MaterialWords, Compressor: comp}
		blob, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		out := make([]voxel.Material, len(in))
		if err := c.Decode(blob, out); err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("%s: mismatch at %d: got %d want %d", name, i, out[i], in[i])
			}
		}
	}
}

func TestMaterialDensityWords(t *testing.T) {
	comp, err := NewZstd()
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	c := Chunk[voxel.MaterialDensity]{Words: MaterialDensityWords, Compressor: comp}
	in := []voxel.MaterialDensity{{}, {Material: 3, Density: 255}, {Material: 0xFFFF, Density: 1}, {Material: 3, Density: 255}}
	blob, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := make([]voxel.MaterialDensity, len(in))
	if err := c.Decode(blob, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %+v want %+v", i, out[i], in[i])
		}
	}
	if c.Name() != "material_density+zstd" {
		t.Fatalf("name: got %q", c.Name())
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	c := Chunk[voxel.Material]{Words: MaterialWords, Compressor: None{}}
	blob, err := c.Encode(make([]voxel.Material, 64))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := c.Decode(blob, make([]voxel.Material, 512)); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestUnknownCompressor(t *testing.T) {
	if _, err := NewCompressor("lz4"); err == nil {
		t.Fatalf("expected error")
	}
}
