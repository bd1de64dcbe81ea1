package volume

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/voxel"
)

type memoryPager struct {
	mu      sync.Mutex
	stored  map[geom.Vec3i][]uint16
	pageIns int
	outs    int
	failIn  error
}

func newMemoryPager() *memoryPager {
	return &memoryPager{stored: map[geom.Vec3i][]uint16{}}
}

func (p *memoryPager) PageIn(r geom.Region, c *Chunk[uint16]) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIn != nil {
		return false, p.failIn
	}
	p.pageIns++
	data, ok := p.stored[c.Key()]
	if !ok {
		return true, nil
	}
	copy(c.Data(), data)
	return false, nil
}

func (p *memoryPager) PageOut(r geom.Region, c *Chunk[uint16]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outs++
	p.stored[c.Key()] = append([]uint16(nil), c.Data()...)
	return nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func smallVolume(t *testing.T, pager Pager[uint16]) *PagedVolume[uint16] {
	t.Helper()
	v, err := New(Config[uint16]{
		ChunkSideLength:   8,
		MemoryBudgetBytes: 1,
		Pager:             pager,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return v
}

func TestNewRejectsBadChunkSize(t *testing.T) {
	for _, side := range []int{3, 12, 512, -4} {
		_, err := New(Config[uint16]{ChunkSideLength: side, Logger: quietLogger()})
		if !errors.Is(err, ErrInvalidChunkSize) {
			t.Fatalf("side %d: got %v want ErrInvalidChunkSize", side, err)
		}
	}
}

func TestNewClampsTinyBudget(t *testing.T) {
	v := smallVolume(t, nil)
	if v.ChunkCountLimit() != minPracticalChunkCount {
		t.Fatalf("limit: got %d want %d", v.ChunkCountLimit(), minPracticalChunkCount)
	}
}

func TestNewDerivesLimitFromBudget(t *testing.T) {
	per := ChunkSizeInBytes[uint16](16)
	v, err := New(Config[uint16]{ChunkSideLength: 16, MemoryBudgetBytes: per * 100, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if v.ChunkCountLimit() != 100 {
		t.Fatalf("limit: got %d want 100", v.ChunkCountLimit())
	}
}

func TestNewUsesDefaults(t *testing.T) {
	v, err := New(Config[uint16]{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if v.ChunkSideLength() != DefaultChunkSideLength {
		t.Fatalf("side: got %d want %d", v.ChunkSideLength(), DefaultChunkSideLength)
	}
}

func TestVoxelDefaultsToZero(t *testing.T) {
	v := smallVolume(t, nil)
	if got := v.Voxel(-100, 5, 1 << 20); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

func TestSetThenGetNegativeCoordinates(t *testing.T) {
	v := smallVolume(t, nil)
	v.SetVoxel(-1, -9, -17, 42)
	if got := v.Voxel(-1, -9, -17); got != 42 {
		t.Fatalf("got %d want 42", got)
	}
	if k := v.ChunkKey(-1, -9, -17); k != (geom.Vec3i{X: -1, Y: -2, Z: -3}) {
		t.Fatalf("chunk key: got %v", k)
	}
}

func TestRoundTripThroughEviction(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	v.SetVoxel(3, 4, 5, 7)

	// Touch enough distinct chunks to push the first one out.
	for i := 1; i <= v.ChunkCountLimit()+4; i++ {
		v.Voxel(i*8, 0, 0)
		if n := v.ResidentChunks(); n > v.ChunkCountLimit() {
			t.Fatalf("resident %d exceeds limit %d", n, v.ChunkCountLimit())
		}
	}
	if v.IsResident(geom.Vec3i{}) {
		t.Fatalf("origin chunk should have been evicted")
	}
	if pager.outs != 1 {
		t.Fatalf("page outs: got %d want 1", pager.outs)
	}
	if got := v.Voxel(3, 4, 5); got != 7 {
		t.Fatalf("after reload: got %d want 7", got)
	}
	st := v.Stats()
	if st.Evictions == 0 || st.PageOuts != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestUnmodifiedChunksAreNotPagedOut(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	for i := 0; i < v.ChunkCountLimit()*2; i++ {
		v.Voxel(i*8, 0, 0)
	}
	if pager.outs != 0 {
		t.Fatalf("page outs: got %d want 0", pager.outs)
	}
}

func TestFlushKeepsChunksResident(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	v.SetVoxel(0, 0, 0, 1)
	v.SetVoxel(100, 0, 0, 2)
	if err := v.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if pager.outs != 2 || v.ResidentChunks() != 2 {
		t.Fatalf("outs %d resident %d", pager.outs, v.ResidentChunks())
	}
	if err := v.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if pager.outs != 2 {
		t.Fatalf("clean chunks flushed again: outs %d", pager.outs)
	}
}

func TestFlushAllEmptiesVolume(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	v.SetVoxel(0, 0, 0, 1)
	v.Voxel(50, 50, 50)
	if err := v.FlushAll(); err != nil {
		t.Fatalf("flush all: %v", err)
	}
	if v.ResidentChunks() != 0 {
		t.Fatalf("resident: got %d want 0", v.ResidentChunks())
	}
	if pager.outs != 1 {
		t.Fatalf("outs: got %d want 1", pager.outs)
	}
	if got := v.Voxel(0, 0, 0); got != 1 {
		t.Fatalf("reload: got %d want 1", got)
	}
}

func TestOnPageInReportsCreated(t *testing.T) {
	pager := newMemoryPager()
	var mu sync.Mutex
	var events []bool
	v, err := New(Config[uint16]{
		ChunkSideLength: 8,
		Pager:           pager,
		Logger:          quietLogger(),
		OnPageIn: func(r geom.Region, created bool) {
			mu.Lock()
			events = append(events, created)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	v.SetVoxel(1, 1, 1, 9)
	if err := v.FlushAll(); err != nil {
		t.Fatalf("flush all: %v", err)
	}
	v.Voxel(1, 1, 1)
	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("events: got %v want [true false]", events)
	}
}

func TestPagerFailurePanicsWithPagerError(t *testing.T) {
	pager := newMemoryPager()
	pager.failIn = errors.New("disk gone")
	v := smallVolume(t, pager)
	defer func() {
		r := recover()
		pe, ok := r.(*PagerError)
		if !ok {
			t.Fatalf("panic value: got %T want *PagerError", r)
		}
		if pe.Op != "in" || !errors.Is(pe, pager.failIn) {
			t.Fatalf("pager error: %v", pe)
		}
	}()
	v.Voxel(0, 0, 0)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				x := (i*7 + w*64) % 400
				v.SetVoxel(x, w, 0, uint16(w+1))
				if got := v.Voxel(x, w, 0); got != uint16(w+1) {
					t.Errorf("worker %d at %d: got %d", w, x, got)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if n := v.ResidentChunks(); n > v.ChunkCountLimit() {
		t.Fatalf("resident %d exceeds limit %d", n, v.ChunkCountLimit())
	}
}

func TestReadRegionSpansChunks(t *testing.T) {
	v := smallVolume(t, nil)
	r := geom.NewRegion(-3, -3, -3, 10, 4, 2)
	r.ForEach(func(p geom.Vec3i) {
		v.SetVoxel(p.X, p.Y, p.Z, uint16(p.X+p.Y*16+p.Z*256+1000))
	})
	dst := v.Copy(r, 0)
	bad := 0
	r.ForEach(func(p geom.Vec3i) {
		if dst.Voxel(p.X, p.Y, p.Z) != uint16(p.X+p.Y*16+p.Z*256+1000) {
			bad++
		}
	})
	if bad != 0 {
		t.Fatalf("%d mismatched voxels", bad)
	}
}

func TestSamplerWalksAcrossChunks(t *testing.T) {
	v := smallVolume(t, nil)
	for x := 0; x < 20; x++ {
		v.SetVoxel(x, 0, 0, uint16(x+1))
	}
	s := v.Sampler()
	s.SetPosition(0, 0, 0)
	for x := 0; x < 20; x++ {
		if got := s.Voxel(); got != uint16(x+1) {
			t.Fatalf("x=%d: got %d", x, got)
		}
		if x < 19 {
			if got := s.Peek(1, 0, 0); got != uint16(x+2) {
				t.Fatalf("peek x=%d: got %d", x, got)
			}
		}
		s.MovePositiveX()
	}
	s.MoveNegativeX()
	if s.Position() != (geom.Vec3i{X: 19}) {
		t.Fatalf("position: got %v", s.Position())
	}
}

func TestSamplerSeesWritesAfterEviction(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	s := v.Sampler()
	s.SetPosition(1, 1, 1)
	if s.Voxel() != 0 {
		t.Fatalf("fresh voxel not empty")
	}
	if err := v.FlushAll(); err != nil {
		t.Fatalf("flush all: %v", err)
	}
	v.SetVoxel(1, 1, 1, 5)
	if got := s.Voxel(); got != 5 {
		t.Fatalf("got %d want 5", got)
	}
}

func TestPrefetchPagesInRegion(t *testing.T) {
	pager := newMemoryPager()
	v := smallVolume(t, pager)
	if err := v.Prefetch(context.Background(), geom.NewRegion(0, 0, 0, 23, 15, 7)); err != nil {
		t.Fatalf("prefetch: %v", err)
	}
	if n := v.ResidentChunks(); n != 6 {
		t.Fatalf("resident: got %d want 6", n)
	}
}

func TestPrefetchStopsAtLimit(t *testing.T) {
	v := smallVolume(t, nil)
	if err := v.Prefetch(context.Background(), geom.NewRegion(0, 0, 0, 8*64-1, 7, 7)); err != nil {
		t.Fatalf("prefetch: %v", err)
	}
	if n := v.ResidentChunks(); n != v.ChunkCountLimit() {
		t.Fatalf("resident: got %d want %d", n, v.ChunkCountLimit())
	}
}

func TestPrefetchReturnsPagerError(t *testing.T) {
	pager := newMemoryPager()
	pager.failIn = errors.New("boom")
	v := smallVolume(t, pager)
	err := v.Prefetch(context.Background(), geom.NewRegion(0, 0, 0, 7, 7, 7))
	var pe *PagerError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v want *PagerError", err)
	}
}

func TestChunkRegionAndMorton(t *testing.T) {
	c := newChunk[voxel.Material](geom.Vec3i{X: -1, Y: 0, Z: 2}, 3)
	if got := c.Region(); got != geom.NewRegion(-8, 0, 16, -1, 7, 23) {
		t.Fatalf("region: got %v", got)
	}
	c.SetVoxel(5, 6, 7, 3)
	seen := 0
	c.ForEachLocal(func(x, y, z int, m voxel.Material) {
		if m == 3 {
			seen++
			if x != 5 || y != 6 || z != 7 {
				t.Fatalf("decoded %d,%d,%d", x, y, z)
			}
		}
	})
	if seen != 1 || !c.IsModified() {
		t.Fatalf("seen %d modified %v", seen, c.IsModified())
	}
}
