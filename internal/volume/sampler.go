package volume

import (
	"voxelterrain/internal/geom"
	"voxelterrain/internal/voxel"
)

// withChunk runs fn with the chunk for key under the read lock, paging it in first
// if needed.
func (v *PagedVolume[V]) withChunk(key geom.Vec3i, fn func(c *Chunk[V])) {
	v.mu.RLock()
	c := v.lookupLocked(key)
	if c == nil {
		v.mu.RUnlock()
		c = v.mustFetch(key)
		v.mu.RLock()
	}
	fn(c)
	v.mu.RUnlock()
}

// ReadRegion copies r into dst one chunk at a time. Positions of r outside dst's
// region are skipped.
func (v *PagedVolume[V]) ReadRegion(r geom.Region, dst *voxel.RawVolume[V]) {
	r = r.Intersect(dst.Region())
	if !r.IsValid() {
		return
	}
	lo := v.ChunkKey(r.Min.X, r.Min.Y, r.Min.Z)
	hi := v.ChunkKey(r.Max.X, r.Max.Y, r.Max.Z)
	for cz := lo.Z; cz <= hi.Z; cz++ {
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for cx := lo.X; cx <= hi.X; cx++ {
				key := geom.Vec3i{X: cx, Y: cy, Z: cz}
				v.withChunk(key, func(c *Chunk[V]) {
					overlap := c.Region().Intersect(r)
					base := c.Region().Min
					for z := overlap.Min.Z; z <= overlap.Max.Z; z++ {
						for y := overlap.Min.Y; y <= overlap.Max.Y; y++ {
							for x := overlap.Min.X; x <= overlap.Max.X; x++ {
								dst.SetVoxel(x, y, z, c.Voxel(x-base.X, y-base.Y, z-base.Z))
							}
						}
					}
				})
			}
		}
	}
}

// Copy returns a dense copy of r.
func (v *PagedVolume[V]) Copy(r geom.Region, border V) *voxel.RawVolume[V] {
	dst := voxel.NewRawVolume[V](r, border)
	v.ReadRegion(r, dst)
	return dst
}

// Sampler is a cursor over a PagedVolume that keeps the chunk under the cursor
// cached, so walking a neighbourhood avoids the chunk map.
type Sampler[V comparable] struct {
	vol     *PagedVolume[V]
	x, y, z int
	chunk   *Chunk[V]
}

func (v *PagedVolume[V]) Sampler() *Sampler[V] {
	return &Sampler[V]{vol: v}
}

func (s *Sampler[V]) SetPosition(x, y, z int) {
	s.x, s.y, s.z = x, y, z
}

func (s *Sampler[V]) Position() geom.Vec3i { return geom.Vec3i{X: s.x, Y: s.y, Z: s.z} }

func (s *Sampler[V]) MovePositiveX() { s.x++ }
func (s *Sampler[V]) MovePositiveY() { s.y++ }
func (s *Sampler[V]) MovePositiveZ() { s.z++ }
func (s *Sampler[V]) MoveNegativeX() { s.x-- }
func (s *Sampler[V]) MoveNegativeY() { s.y-- }
func (s *Sampler[V]) MoveNegativeZ() { s.z-- }

// Voxel is the voxel under the cursor.
func (s *Sampler[V]) Voxel() V { return s.Peek(0, 0, 0) }

// Peek reads the voxel at the cursor offset by (dx,dy,dz).
func (s *Sampler[V]) Peek(dx, dy, dz int) V {
	v := s.vol
	x, y, z := s.x+dx, s.y+dy, s.z+dz
	key := v.ChunkKey(x, y, z)
	own := key == v.ChunkKey(s.x, s.y, s.z)
	lx, ly, lz := v.local(x, y, z)

	v.mu.RLock()
	c := s.chunk
	if c == nil || c.key != key || c.evicted.Load() {
		c = v.lookupLocked(key)
		if c == nil {
			v.mu.RUnlock()
			c = v.mustFetch(key)
			v.mu.RLock()
		}
		if own {
			s.chunk = c
		}
	}
	out := c.Voxel(lx, ly, lz)
	v.mu.RUnlock()
	return out
}
