package sqlitepager

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/volume"
	"voxelterrain/internal/voxel"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func open(t *testing.T, path, compression string, fallback volume.Pager[voxel.Material]) *Pager[voxel.Material] {
	t.Helper()
	comp, err := codec.NewCompressor(compression)
	if err != nil {
		t.Fatalf("compressor: %v", err)
	}
	p, err := Open(Config[voxel.Material]{
		Path:     path,
		Codec:    codec.Chunk[voxel.Material]{Words: codec.MaterialWords, Compressor: comp},
		Fallback: fallback,
		Logger:   quiet(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return p
}

func newVolume(t *testing.T, p volume.Pager[voxel.Material]) *volume.PagedVolume[voxel.Material] {
	t.Helper()
	v, err := volume.New(volume.Config[voxel.Material]{ChunkSideLength: 16, Pager: p, Logger: quiet()})
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	return v
}

type constantPager struct{ m voxel.Material }

func (c constantPager) PageIn(r geom.Region, ch *volume.Chunk[voxel.Material]) (bool, error) {
	ch.Fill(c.m)
	return true, nil
}

func (constantPager) PageOut(geom.Region, *volume.Chunk[voxel.Material]) error { return nil }

func TestRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.sqlite")

	p := open(t, path, "zstd", nil)
	v := newVolume(t, p)
	v.SetVoxel(1, 2, 3, 7)
	v.SetVoxel(-20, 40, -5, 300)
	if err := v.Close(); err != nil {
		t.Fatalf("volume close: %v", err)
	}
	if err := p.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n, err := p.Count(context.Background()); err != nil || n != 2 {
		t.Fatalf("count: got %d, %v want 2", n, err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p = open(t, path, "zstd", nil)
	defer p.Close()
	v = newVolume(t, p)
	if got := v.Voxel(1, 2, 3); got != 7 {
		t.Fatalf("got %d want 7", got)
	}
	if got := v.Voxel(-20, 40, -5); got != 300 {
		t.Fatalf("got %d want 300", got)
	}
	st := p.Stats()
	if st.Loaded != 2 || st.Queued != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestQueuedBlobServedBeforeCommit(t *testing.T) {
	p := open(t, filepath.Join(t.TempDir(), "c.sqlite"), "zstd", nil)
	defer p.Close()
	v := newVolume(t, p)
	v.SetVoxel(5, 5, 5, 9)
	if err := v.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	// Whether or not the writer got to it yet, the value must come back.
	if got := v.Voxel(5, 5, 5); got != 9 {
		t.Fatalf("got %d want 9", got)
	}
}

func TestMissingChunksUseFallback(t *testing.T) {
	p := open(t, filepath.Join(t.TempDir(), "c.sqlite"), "zstd", constantPager{m: 4})
	defer p.Close()
	created := 0
	v, err := volume.New(volume.Config[voxel.Material]{
		ChunkSideLength: 16,
		Pager:           p,
		Logger:          quiet(),
		OnPageIn: func(r geom.Region, fresh bool) {
			if fresh {
				created++
			}
		},
	})
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	if got := v.Voxel(100, 0, 0); got != 4 {
		t.Fatalf("got %d want 4", got)
	}
	if created != 1 || p.Stats().Generated != 1 {
		t.Fatalf("created %d stats %+v", created, p.Stats())
	}
}

func TestCompressionChangeBetweenRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.sqlite")
	p := open(t, path, "zlib", nil)
	v := newVolume(t, p)
	v.SetVoxel(0, 0, 0, 11)
	if err := v.Close(); err != nil {
		t.Fatalf("volume close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p = open(t, path, "zstd", nil)
	defer p.Close()
	if got := newVolume(t, p).Voxel(0, 0, 0); got != 11 {
		t.Fatalf("got %d want 11", got)
	}
}

func TestVoxelKindIsPinned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.sqlite")
	p := open(t, path, "zstd", nil)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	comp, _ := codec.NewCompressor("zstd")
	_, err := Open(Config[voxel.MaterialDensity]{
		Path:   path,
		Codec:  codec.Chunk[voxel.MaterialDensity]{Words: codec.MaterialDensityWords, Compressor: comp},
		Logger: quiet(),
	})
	if err == nil {
		t.Fatalf("expected voxel kind mismatch")
	}
}

func TestPageOutAfterClose(t *testing.T) {
	p := open(t, filepath.Join(t.TempDir(), "c.sqlite"), "none", nil)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Sync(); err != ErrClosed {
		t.Fatalf("sync after close: got %v want ErrClosed", err)
	}
}

// chunkGrabber hands out empty chunks and remembers the last one.
type chunkGrabber struct{ c *volume.Chunk[voxel.Material] }

func (g *chunkGrabber) PageIn(r geom.Region, c *volume.Chunk[voxel.Material]) (bool, error) {
	g.c = c
	return true, nil
}
func (g *chunkGrabber) PageOut(geom.Region, *volume.Chunk[voxel.Material]) error { return nil }

func TestCloseWhileWritersRun(t *testing.T) {
	g := &chunkGrabber{}
	newVolume(t, g).Voxel(0, 0, 0)
	c := g.c

	p := open(t, filepath.Join(t.TempDir(), "c.sqlite"), "none", nil)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				var err error
				if i%2 == 0 {
					err = p.PageOut(c.Region(), c)
				} else {
					err = p.Sync()
				}
				if err == ErrClosed {
					return
				}
				if err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("writer: %v", err)
	}
}
