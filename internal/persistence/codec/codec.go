// Package codec turns chunk voxel buffers into compact blobs and back: voxels map
// to 32-bit words, words are run-length encoded, and the result is compressed.
package codec

import (
	"fmt"

	"voxelterrain/internal/encoding"
	"voxelterrain/internal/voxel"
)

// Words maps a voxel flavour to 32-bit words.
type Words[V comparable] struct {
	Name     string
	ToWord   func(V) uint32
	FromWord func(uint32) (V, error)
}

var MaterialWords = Words[voxel.Material]{
	Name:   "material",
	ToWord: func(m voxel.Material) uint32 { return uint32(m) },
	FromWord: func(w uint32) (voxel.Material, error) {
		if w > 0xFFFF {
			return 0, fmt.Errorf("material id too large: %d", w)
		}
		return voxel.Material(w), nil
	},
}

var MaterialDensityWords = Words[voxel.MaterialDensity]{
	Name: "material_density",
	ToWord: func(v voxel.MaterialDensity) uint32 {
		return uint32(v.Material)<<8 | uint32(v.Density)
	},
	FromWord: func(w uint32) (voxel.MaterialDensity, error) {
		if w > 0xFFFFFF {
			return voxel.MaterialDensity{}, fmt.Errorf("material/density word too large: %#x", w)
		}
		return voxel.MaterialDensity{Material: uint16(w >> 8), Density: uint8(w)}, nil
	},
}

// Chunk combines a word mapping with a compressor.
type Chunk[V comparable] struct {
	Words      Words[V]
	Compressor Compressor
}

// Name identifies the blob format, e.g. "material+zstd".
func (c Chunk[V]) Name() string { return c.Words.Name + "+" + c.Compressor.Name() }

func (c Chunk[V]) Encode(data []V) ([]byte, error) {
	words := make([]uint32, len(data))
	for i, v := range data {
		words[i] = c.Words.ToWord(v)
	}
	return c.Compressor.Compress(encoding.AppendRLE(nil, words))
}

// Decode fills data, which must have the length the blob was encoded with.
func (c Chunk[V]) Decode(blob []byte, data []V) error {
	raw, err := c.Compressor.Decompress(blob)
	if err != nil {
		return fmt.Errorf("%s: decompress: %w", c.Name(), err)
	}
	words := make([]uint32, len(data))
	if err := encoding.DecodeRLEInto(raw, words); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	for i, w := range words {
		v, err := c.Words.FromWord(w)
		if err != nil {
			return fmt.Errorf("%s: voxel %d: %w", c.Name(), i, err)
		}
		data[i] = v
	}
	return nil
}
