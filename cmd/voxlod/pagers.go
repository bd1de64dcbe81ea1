package main

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/persistence/filepager"
	"voxelterrain/internal/persistence/mempager"
	"voxelterrain/internal/persistence/sqlitepager"
	"voxelterrain/internal/terrain/gen"
	"voxelterrain/internal/tuning"
	"voxelterrain/internal/volume"
)

// pagerStack is the pager handed to the volume plus whatever must be shut down
// after the volume has flushed into it.
type pagerStack[V comparable] struct {
	pager   volume.Pager[V]
	close   func() error
	summary func() string
}

func openPager[V comparable](cfg tuning.PagerSection, f flavour[V], logger *log.Logger) (pagerStack[V], error) {
	g := gen.New(gen.Config{Seed: cfg.Seed})
	var fallback volume.Pager[V]
	if cfg.GenerateMissing || cfg.Kind == "procedural" {
		fallback = f.generator(g)
	}
	nop := func() error { return nil }

	comp, err := codec.NewCompressor(cfg.Compression)
	if err != nil {
		return pagerStack[V]{}, err
	}
	chunkCodec := codec.Chunk[V]{Words: f.words, Compressor: comp}

	switch cfg.Kind {
	case "procedural":
		// Generated chunks are recomputed on page-in; edited ones are kept as
		// blobs so they survive eviction.
		p := mempager.New(chunkCodec, fallback)
		return pagerStack[V]{
			pager: p,
			close: nop,
			summary: func() string {
				return fmt.Sprintf("procedural seed=%d edited=%d", cfg.Seed, p.Len())
			},
		}, nil
	case "memory", "":
		p := mempager.New(chunkCodec, fallback)
		return pagerStack[V]{
			pager: p,
			close: nop,
			summary: func() string {
				return fmt.Sprintf("memory chunks=%d stored=%s", p.Len(), humanize.IBytes(uint64(p.Bytes())))
			},
		}, nil
	case "sqlite":
		p, err := sqlitepager.Open(sqlitepager.Config[V]{
			Path:     cfg.Path,
			Codec:    chunkCodec,
			Fallback: fallback,
			Logger:   logger,
		})
		if err != nil {
			return pagerStack[V]{}, err
		}
		return pagerStack[V]{
			pager: p,
			close: p.Close,
			summary: func() string {
				st := p.Stats()
				return fmt.Sprintf("sqlite %s loaded=%d stored=%d generated=%d", cfg.Path, st.Loaded, st.Stored, st.Generated)
			},
		}, nil
	case "files":
		p, err := filepager.New(filepager.Config[V]{Dir: cfg.Path, Codec: chunkCodec, Fallback: fallback})
		if err != nil {
			return pagerStack[V]{}, err
		}
		return pagerStack[V]{
			pager: p,
			close: nop,
			summary: func() string {
				loaded, stored, generated := p.Counts()
				return fmt.Sprintf("files %s loaded=%d stored=%d generated=%d", cfg.Path, loaded, stored, generated)
			},
		}, nil
	}
	return pagerStack[V]{}, fmt.Errorf("unknown pager kind %q", cfg.Kind)
}
