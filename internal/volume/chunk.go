package volume

import (
	"sync/atomic"
	"unsafe"

	"voxelterrain/internal/geom"
)

// MaxChunkSideLength bounds the Morton tables.
const MaxChunkSideLength = 256

// Chunk is a cube of voxels stored in Morton order. Pagers fill and read Data
// directly; everything else goes through the owning PagedVolume.
type Chunk[V comparable] struct {
	key        geom.Vec3i
	sideLength int
	sidePower  uint
	data       []V

	// Guarded by the volume lock (write lock for mutation).
	modified bool

	lastAccess atomic.Uint64
	evicted    atomic.Bool
}

func newChunk[V comparable](key geom.Vec3i, sidePower uint) *Chunk[V] {
	side := 1 << sidePower
	return &Chunk[V]{
		key:        key,
		sideLength: side,
		sidePower:  sidePower,
		data:       make([]V, side*side*side),
	}
}

// Key is the chunk-space coordinate.
func (c *Chunk[V]) Key() geom.Vec3i { return c.key }

func (c *Chunk[V]) SideLength() int { return c.sideLength }

// Region is the voxel-space extent of the chunk.
func (c *Chunk[V]) Region() geom.Region {
	return geom.CubeAt(c.key.Scale(c.sideLength), c.sideLength)
}

// Data is the Morton-ordered voxel buffer.
func (c *Chunk[V]) Data() []V { return c.data }

// Voxel reads by chunk-local coordinates.
func (c *Chunk[V]) Voxel(x, y, z int) V {
	return c.data[mortonIndex(x, y, z)]
}

// SetVoxel writes by chunk-local coordinates and marks the chunk modified.
func (c *Chunk[V]) SetVoxel(x, y, z int, v V) {
	c.data[mortonIndex(x, y, z)] = v
	c.modified = true
}

// Fill sets every voxel to v.
func (c *Chunk[V]) Fill(v V) {
	for i := range c.data {
		c.data[i] = v
	}
	c.modified = true
}

// ForEachLocal visits every voxel in Morton order with its local coordinates.
func (c *Chunk[V]) ForEachLocal(fn func(x, y, z int, v V)) {
	for i, v := range c.data {
		x, y, z := mortonDecode(uint32(i))
		fn(x, y, z, v)
	}
}

func (c *Chunk[V]) IsModified() bool { return c.modified }

// chunkOverheadBytes approximates the header and map entry of a resident chunk.
const chunkOverheadBytes = 128

// ChunkSizeInBytes is the approximate resident cost of one chunk.
func ChunkSizeInBytes[V comparable](sideLength int) int {
	var zero V
	return sideLength*sideLength*sideLength*int(unsafe.Sizeof(zero)) + chunkOverheadBytes
}
