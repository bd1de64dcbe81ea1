package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/terrain/gen"
	"voxelterrain/internal/tuning"
	"voxelterrain/internal/voxel"
	"voxelterrain/internal/volume"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: ./configs/tuning.yaml if present)")
		dataDir    = flag.String("data", "./data", "runtime data directory; relative pager paths resolve here")
		frames     = flag.Int("frames", -1, "number of frames to run (0 runs until interrupted; overrides tuning)")
		workers    = flag.Int("workers", -1, "background extraction workers (overrides tuning)")
		seed       = flag.Int64("seed", 0, "terrain seed (overrides tuning when non-zero)")
		realtime   = flag.Bool("realtime", false, "sleep to hold frame_ms per frame")
		noJournal  = flag.Bool("no_journal", false, "disable the frame and paging journal")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[voxlod] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		if _, err := os.Stat(filepath.Join("configs", "tuning.yaml")); err == nil {
			tp = filepath.Join("configs", "tuning.yaml")
		}
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *frames >= 0 {
		tune.Run.Frames = *frames
	}
	if *workers >= 0 {
		tune.Volume.BackgroundWorkers = *workers
	}
	if *seed != 0 {
		tune.Pager.Seed = *seed
	}
	if *noJournal {
		tune.Journal.Disabled = true
	}
	if p := tune.Pager.Path; p != "" && !filepath.IsAbs(p) {
		tune.Pager.Path = filepath.Join(*dataDir, p)
	}
	if tp == "" {
		logger.Printf("no tuning file; using defaults")
	} else {
		logger.Printf("tuning: %s", tp)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{Tuning: tune, Realtime: *realtime, Logger: logger}
	switch tune.Pager.Voxel {
	case "material_density":
		err = run(ctx, opts, densityFlavour)
	default:
		err = run(ctx, opts, materialFlavour)
	}
	if err != nil {
		logger.Fatalf("run: %v", err)
	}
}

// flavour binds one voxel type to its codec, generator and edit values.
type flavour[V comparable] struct {
	words     codec.Words[V]
	empty     V
	solid     V
	generator func(*gen.Generator) volume.Pager[V]
}

var materialFlavour = flavour[voxel.Material]{
	words: codec.MaterialWords,
	empty: gen.DefaultPalette.Air,
	solid: gen.DefaultPalette.Stone,
	generator: func(g *gen.Generator) volume.Pager[voxel.Material] {
		return gen.NewMaterialPager(g)
	},
}

var densityFlavour = flavour[voxel.MaterialDensity]{
	words: codec.MaterialDensityWords,
	empty: voxel.MaterialDensity{},
	solid: voxel.MaterialDensity{Material: uint16(gen.DefaultPalette.Stone), Density: 255},
	generator: func(g *gen.Generator) volume.Pager[voxel.MaterialDensity] {
		return gen.NewDensityPager(g)
	},
}
