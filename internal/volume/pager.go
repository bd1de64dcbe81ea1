package volume

import (
	"fmt"

	"voxelterrain/internal/geom"
)

// Pager is the backing store of a PagedVolume. Implementations must be safe for
// concurrent use: chunks are paged in from worker goroutines.
type Pager[V comparable] interface {
	// PageIn fills c.Data() for region r. It reports created=true when the content
	// was generated rather than loaded.
	PageIn(r geom.Region, c *Chunk[V]) (created bool, err error)
	// PageOut persists a modified chunk that is about to be discarded.
	PageOut(r geom.Region, c *Chunk[V]) error
}

// PagerError is raised (as a panic value) when paging fails on a path that cannot
// return an error, i.e. Voxel and SetVoxel.
type PagerError struct {
	Op    string
	Chunk geom.Vec3i
	Err   error
}

func (e *PagerError) Error() string {
	return fmt.Sprintf("volume: page %s chunk %d,%d,%d: %v", e.Op, e.Chunk.X, e.Chunk.Y, e.Chunk.Z, e.Err)
}

func (e *PagerError) Unwrap() error { return e.Err }

// NullPager leaves new chunks zeroed and discards evicted data.
type NullPager[V comparable] struct{}

func (NullPager[V]) PageIn(geom.Region, *Chunk[V]) (bool, error) { return true, nil }
func (NullPager[V]) PageOut(geom.Region, *Chunk[V]) error        { return nil }
