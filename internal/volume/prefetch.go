package volume

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"voxelterrain/internal/geom"
)

// Prefetch pages in every chunk overlapping r, several at a time. At most
// ChunkCountLimit chunks are requested so the prefetch cannot evict itself. It
// returns the first pager error.
func (v *PagedVolume[V]) Prefetch(ctx context.Context, r geom.Region) error {
	if !r.IsValid() {
		return nil
	}
	lo := v.ChunkKey(r.Min.X, r.Min.Y, r.Min.Z)
	hi := v.ChunkKey(r.Max.X, r.Max.Y, r.Max.Z)

	var keys []geom.Vec3i
	for cz := lo.Z; cz <= hi.Z; cz++ {
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for cx := lo.X; cx <= hi.X; cx++ {
				keys = append(keys, geom.Vec3i{X: cx, Y: cy, Z: cz})
			}
		}
	}
	if len(keys) > v.limit {
		v.logger.Printf("prefetch %v spans %d chunks; limiting to %d", r, len(keys), v.limit)
		keys = keys[:v.limit]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := v.fetch(key)
			return err
		})
	}
	return g.Wait()
}
