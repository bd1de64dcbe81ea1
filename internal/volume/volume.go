package volume

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/tasks"
)

var ErrInvalidChunkSize = errors.New("volume: chunk side length must be a power of two in [1, 256]")

const (
	DefaultChunkSideLength   = 32
	DefaultMemoryBudgetBytes = 256 << 20

	// Enough for a chunk and its neighbours plus a few to spare.
	minPracticalChunkCount = 32
)

type Config[V comparable] struct {
	ChunkSideLength   int
	MemoryBudgetBytes int
	Pager             Pager[V]

	// BackgroundWorkers sizes the volume-owned background task processor; zero
	// runs background work synchronously when the owner pumps it.
	BackgroundWorkers int

	// OnPageIn, if set, is called after a chunk becomes resident. It may be called
	// from any goroutine.
	OnPageIn func(r geom.Region, created bool)

	Logger *log.Logger
}

type Stats struct {
	ResidentChunks  int
	ChunkCountLimit int
	PageIns         uint64
	PageOuts        uint64
	CreatedChunks   uint64
	Evictions       uint64
}

// PagedVolume is an unbounded voxel grid backed by a Pager. Only a bounded number
// of chunks is resident; the least recently used one is evicted when a new chunk
// would exceed the limit.
//
// Reads and chunk lookups share a read lock; inserting, evicting and writing a
// voxel take the write lock. Safe for concurrent use.
type PagedVolume[V comparable] struct {
	sideLength int
	sidePower  uint
	limit      int
	pager      Pager[V]
	onPageIn   func(geom.Region, bool)
	logger     *log.Logger

	mu     sync.RWMutex
	chunks map[geom.Vec3i]*Chunk[V]
	last   atomic.Pointer[Chunk[V]]
	flight singleflight.Group

	ticker atomic.Uint64

	pageIns   atomic.Uint64
	pageOuts  atomic.Uint64
	created   atomic.Uint64
	evictions atomic.Uint64

	background *tasks.BackgroundProcessor
}

func New[V comparable](cfg Config[V]) (*PagedVolume[V], error) {
	if cfg.ChunkSideLength == 0 {
		cfg.ChunkSideLength = DefaultChunkSideLength
	}
	if !geom.IsPowerOfTwo(cfg.ChunkSideLength) || cfg.ChunkSideLength > MaxChunkSideLength {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, cfg.ChunkSideLength)
	}
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = DefaultMemoryBudgetBytes
	}
	if cfg.Pager == nil {
		cfg.Pager = NullPager[V]{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[volume] ", log.LstdFlags)
	}

	chunkBytes := ChunkSizeInBytes[V](cfg.ChunkSideLength)
	limit := cfg.MemoryBudgetBytes / chunkBytes
	if limit < minPracticalChunkCount {
		logger.Printf("memory budget %s holds only %d chunks of %s; using %d chunks (%s)",
			humanize.IBytes(uint64(cfg.MemoryBudgetBytes)), limit, humanize.IBytes(uint64(chunkBytes)),
			minPracticalChunkCount, humanize.IBytes(uint64(minPracticalChunkCount*chunkBytes)))
		limit = minPracticalChunkCount
	}

	return &PagedVolume[V]{
		sideLength: cfg.ChunkSideLength,
		sidePower:  geom.Log2(cfg.ChunkSideLength),
		limit:      limit,
		pager:      cfg.Pager,
		onPageIn:   cfg.OnPageIn,
		logger:     logger,
		chunks:     make(map[geom.Vec3i]*Chunk[V], limit+1),
		background: tasks.NewBackgroundProcessor(cfg.BackgroundWorkers),
	}, nil
}

func (v *PagedVolume[V]) ChunkSideLength() int { return v.sideLength }

// ChunkCountLimit is the resident chunk ceiling.
func (v *PagedVolume[V]) ChunkCountLimit() int { return v.limit }

// Background is the volume-owned processor for work that need not finish this frame.
func (v *PagedVolume[V]) Background() *tasks.BackgroundProcessor { return v.background }

func (v *PagedVolume[V]) ResidentChunks() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.chunks)
}

func (v *PagedVolume[V]) Stats() Stats {
	return Stats{
		ResidentChunks:  v.ResidentChunks(),
		ChunkCountLimit: v.limit,
		PageIns:         v.pageIns.Load(),
		PageOuts:        v.pageOuts.Load(),
		CreatedChunks:   v.created.Load(),
		Evictions:       v.evictions.Load(),
	}
}

// ChunkKey is the chunk-space coordinate containing voxel (x,y,z).
func (v *PagedVolume[V]) ChunkKey(x, y, z int) geom.Vec3i {
	return geom.Vec3i{X: x >> v.sidePower, Y: y >> v.sidePower, Z: z >> v.sidePower}
}

func (v *PagedVolume[V]) local(x, y, z int) (int, int, int) {
	m := v.sideLength - 1
	return x & m, y & m, z & m
}

// Voxel returns the voxel at (x,y,z), paging its chunk in if needed. Any position is
// valid. A pager failure panics with *PagerError.
func (v *PagedVolume[V]) Voxel(x, y, z int) V {
	key := v.ChunkKey(x, y, z)
	lx, ly, lz := v.local(x, y, z)

	v.mu.RLock()
	c := v.lookupLocked(key)
	if c == nil {
		v.mu.RUnlock()
		c = v.mustFetch(key)
		v.mu.RLock()
	}
	// An evicted chunk still holds the data it was saved with; nothing writes to it.
	out := c.Voxel(lx, ly, lz)
	v.mu.RUnlock()
	return out
}

// SetVoxel writes the voxel and marks its chunk modified. A pager failure panics
// with *PagerError.
func (v *PagedVolume[V]) SetVoxel(x, y, z int, val V) {
	key := v.ChunkKey(x, y, z)
	lx, ly, lz := v.local(x, y, z)
	for {
		v.mu.Lock()
		if c := v.lookupLocked(key); c != nil {
			c.SetVoxel(lx, ly, lz, val)
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
		v.mustFetch(key)
	}
}

// lookupLocked requires at least the read lock.
func (v *PagedVolume[V]) lookupLocked(key geom.Vec3i) *Chunk[V] {
	if c := v.last.Load(); c != nil && c.key == key {
		c.lastAccess.Store(v.ticker.Add(1))
		return c
	}
	c := v.chunks[key]
	if c == nil {
		return nil
	}
	c.lastAccess.Store(v.ticker.Add(1))
	v.last.Store(c)
	return c
}

func (v *PagedVolume[V]) mustFetch(key geom.Vec3i) *Chunk[V] {
	c, err := v.fetch(key)
	if err != nil {
		panic(err)
	}
	return c
}

// fetch returns the resident chunk for key, paging it in if necessary. Concurrent
// callers for the same key share one PageIn; PageIn itself runs without the lock.
func (v *PagedVolume[V]) fetch(key geom.Vec3i) (*Chunk[V], error) {
	res, err, _ := v.flight.Do(flightKey(key), func() (any, error) {
		v.mu.RLock()
		if c := v.chunks[key]; c != nil {
			v.mu.RUnlock()
			return c, nil
		}
		v.mu.RUnlock()

		c := newChunk[V](key, v.sidePower)
		r := c.Region()
		created, err := v.pager.PageIn(r, c)
		if err != nil {
			return nil, &PagerError{Op: "in", Chunk: key, Err: err}
		}
		c.modified = false
		v.pageIns.Add(1)
		if created {
			v.created.Add(1)
		}

		v.mu.Lock()
		if existing := v.chunks[key]; existing != nil {
			v.mu.Unlock()
			return existing, nil
		}
		c.lastAccess.Store(v.ticker.Add(1))
		v.chunks[key] = c
		evictErr := v.evictLocked()
		v.mu.Unlock()

		if v.onPageIn != nil {
			v.onPageIn(r, created)
		}
		if evictErr != nil {
			return c, evictErr
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Chunk[V]), nil
}

func flightKey(k geom.Vec3i) string {
	return fmt.Sprintf("%d,%d,%d", k.X, k.Y, k.Z)
}

// evictLocked drops least recently used chunks until the limit holds. Requires the
// write lock.
func (v *PagedVolume[V]) evictLocked() error {
	var firstErr error
	for len(v.chunks) > v.limit {
		var oldest *Chunk[V]
		for _, c := range v.chunks {
			if oldest == nil || c.lastAccess.Load() < oldest.lastAccess.Load() {
				oldest = c
			}
		}
		if err := v.discardLocked(oldest); err != nil && firstErr == nil {
			firstErr = err
		}
		v.evictions.Add(1)
	}
	return firstErr
}

// discardLocked removes c from the resident set, paging it out first if modified.
func (v *PagedVolume[V]) discardLocked(c *Chunk[V]) error {
	delete(v.chunks, c.key)
	c.evicted.Store(true)
	if v.last.Load() == c {
		v.last.Store(nil)
	}
	if !c.modified {
		return nil
	}
	if err := v.pager.PageOut(c.Region(), c); err != nil {
		v.logger.Printf("page out chunk %v: %v", c.key, err)
		return &PagerError{Op: "out", Chunk: c.key, Err: err}
	}
	c.modified = false
	v.pageOuts.Add(1)
	return nil
}

// Flush pages out every modified resident chunk and keeps it resident.
func (v *PagedVolume[V]) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var errs []error
	for _, key := range v.sortedKeysLocked() {
		c := v.chunks[key]
		if !c.modified {
			continue
		}
		if err := v.pager.PageOut(c.Region(), c); err != nil {
			errs = append(errs, &PagerError{Op: "out", Chunk: key, Err: err})
			continue
		}
		c.modified = false
		v.pageOuts.Add(1)
	}
	return errors.Join(errs...)
}

// FlushAll pages out every modified chunk and empties the resident set.
func (v *PagedVolume[V]) FlushAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var errs []error
	for _, key := range v.sortedKeysLocked() {
		if err := v.discardLocked(v.chunks[key]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the background processor and flushes every resident chunk.
func (v *PagedVolume[V]) Close() error {
	v.background.Close()
	return v.FlushAll()
}

// ResidentKeys lists the resident chunk coordinates in sorted order.
func (v *PagedVolume[V]) ResidentKeys() []geom.Vec3i {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sortedKeysLocked()
}

func (v *PagedVolume[V]) sortedKeysLocked() []geom.Vec3i {
	keys := make([]geom.Vec3i, 0, len(v.chunks))
	for k := range v.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].Z < keys[j].Z
	})
	return keys
}

// IsResident reports whether the chunk at chunk-space key is in memory.
func (v *PagedVolume[V]) IsResident(key geom.Vec3i) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.chunks[key]
	return ok
}
