package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/mesh"
	"voxelterrain/internal/octree"
	persistlog "voxelterrain/internal/persistence/log"
	"voxelterrain/internal/terrain/gen"
	"voxelterrain/internal/tuning"
	"voxelterrain/internal/volume"
)

type runOptions struct {
	Tuning   tuning.Tuning
	Realtime bool
	Logger   *log.Logger
}

func run[V comparable](ctx context.Context, opts runOptions, f flavour[V]) (err error) {
	tune, logger := opts.Tuning, opts.Logger

	stack, err := openPager(tune.Pager, f, logger)
	if err != nil {
		return fmt.Errorf("open pager: %w", err)
	}
	defer func() {
		if cerr := stack.close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close pager: %w", cerr))
		}
		logger.Printf("pager: %s", stack.summary())
	}()

	var pages *persistlog.PageLogger
	var frames *persistlog.FrameLogger
	if !tune.Journal.Disabled && tune.Journal.Dir != "" {
		pages = persistlog.NewPageLogger(tune.Journal.Dir)
		frames = persistlog.NewFrameLogger(tune.Journal.Dir)
		defer frames.Close()
		defer pages.Close()
	}

	vol, err := volume.New(volume.Config[V]{
		ChunkSideLength:   tune.Volume.ChunkSideLength,
		MemoryBudgetBytes: int(tune.Volume.MemoryBudget),
		Pager:             stack.pager,
		BackgroundWorkers: tune.Volume.BackgroundWorkers,
		OnPageIn: func(r geom.Region, created bool) {
			if pages == nil {
				return
			}
			_ = pages.WritePage(persistlog.PageEvent{
				At:      time.Now().UTC().Format(time.RFC3339Nano),
				Lower:   [3]int{r.Min.X, r.Min.Y, r.Min.Z},
				Side:    r.Width(),
				Created: created,
			})
		},
		Logger: log.New(logger.Writer(), "[volume] ", logger.Flags()),
	})
	if err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	defer func() {
		if cerr := vol.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("flush volume: %w", cerr))
		}
	}()
	logger.Printf("volume: chunks=%d³ limit=%d budget=%s workers=%d",
		vol.ChunkSideLength(), vol.ChunkCountLimit(), tune.Volume.MemoryBudget, vol.Background().Workers())

	mode := octree.BoundVoxels
	if tune.Octree.ConstructionMode == "cells" {
		mode = octree.BoundCells
	}
	region := tune.Octree.Region.Region()
	tree, err := octree.New(octree.Config[V]{
		Region:       region,
		BaseNodeSize: tune.Octree.BaseNodeSize,
		Mode:         mode,
		Volume:       vol,
		Traits:       octree.Traits[V]{Empty: f.empty, Extract: mesh.ExtractCubic[V]},
		Logger:       log.New(logger.Writer(), "[octree] ", logger.Flags()),
	})
	if err != nil {
		return fmt.Errorf("octree: %w", err)
	}
	defer tree.Close()

	minimum := tree.RootNode().Height()
	if tune.Octree.LOD.Minimum != nil && *tune.Octree.LOD.Minimum < minimum {
		minimum = *tune.Octree.LOD.Minimum
	}
	maximum := min(tune.Octree.LOD.Maximum, minimum)
	tree.SetLODRange(minimum, maximum)
	logger.Printf("octree: region=%v nodes=%d lod=[%d,%d] threshold=%.2f",
		region, tree.NodeCount(), minimum, maximum, tune.Octree.LOD.Threshold)

	if err := vol.Prefetch(ctx, cameraBox(region, cameraPosition(region, 0), vol.ChunkSideLength())); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("prefetch: %v", err)
	}

	g := gen.New(gen.Config{Seed: tune.Pager.Seed})
	editor := octree.NewEditor(tree)
	rng := rand.New(rand.NewPCG(uint64(tune.Pager.Seed), 0x766f786c6f64))

	dt := time.Duration(tune.Run.FrameMS) * time.Millisecond
	var ticker *time.Ticker
	if opts.Realtime {
		ticker = time.NewTicker(dt)
		defer ticker.Stop()
	}

	var last octree.UpdateStats
	frame := 0
	for tune.Run.Frames == 0 || frame < tune.Run.Frames {
		if ctx.Err() != nil {
			logger.Printf("interrupted at frame %d", frame)
			break
		}
		start := time.Now()
		view := cameraPosition(region, tree.Time()*float64(tune.Run.Speed))

		for i := 0; i < tune.Run.EditsPerFrame; i++ {
			applyEdit(editor, g, f, rng, view, region)
		}

		last = tree.Update(dt.Seconds(), view, tune.Octree.LOD.Threshold)
		triangles := 0
		for _, n := range tree.RenderSet() {
			triangles += n.Mesh().TriangleCount()
		}

		if frames != nil {
			vs := vol.Stats()
			if werr := frames.WriteFrame(persistlog.FrameEntry{
				Frame:               frame,
				Time:                tree.Time(),
				View:                [3]float32(view),
				Duration:            time.Since(start).Microseconds(),
				ScheduledMain:       last.ScheduledMain,
				ScheduledBackground: last.ScheduledBackground,
				Completed:           last.Completed,
				Discarded:           last.Discarded,
				Pending:             last.Pending,
				ActiveNodes:         last.ActiveNodes,
				RenderedNodes:       last.RenderedNodes,
				Triangles:           triangles,
				Changed:             last.Changed,
				ResidentChunks:      vs.ResidentChunks,
				PageIns:             vs.PageIns,
				PageOuts:            vs.PageOuts,
				Evictions:           vs.Evictions,
			}); werr != nil {
				logger.Printf("journal: %v", werr)
			}
		}
		if frame%100 == 0 {
			logger.Printf("frame %d: rendered=%d active=%d pending=%d triangles=%s",
				frame, last.RenderedNodes, last.ActiveNodes, last.Pending, humanize.Comma(int64(triangles)))
		}
		frame++

		if ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tree.WaitForPendingTasks(waitCtx); err != nil {
		logger.Printf("pending tasks: %v (%d left)", err, tree.PendingTasks())
	}

	vs := vol.Stats()
	logger.Printf("done: frames=%d rendered=%d page_ins=%d page_outs=%d evictions=%d resident=%d",
		frame, last.RenderedNodes, vs.PageIns, vs.PageOuts, vs.Evictions, vs.ResidentChunks)
	return nil
}

// cameraPosition flies a circle over the middle of r; distance is the arc length
// travelled so far.
func cameraPosition(r geom.Region, distance float64) mgl32.Vec3 {
	c := r.CentreF()
	radius := 0.35 * float64(min(r.Width(), r.Depth()))
	if radius < 1 {
		return c
	}
	a := distance / radius
	return mgl32.Vec3{
		c.X() + float32(radius*math.Cos(a)),
		float32(r.Max.Y) + 8,
		c.Z() + float32(radius*math.Sin(a)),
	}
}

// cameraBox is the chunk-aligned neighbourhood around view, clipped to r.
func cameraBox(r geom.Region, view mgl32.Vec3, side int) geom.Region {
	p := geom.V(int(view.X()), int(view.Y()), int(view.Z()))
	return geom.CubeAt(p.Sub(geom.V(side, side, side)), 2*side).Intersect(r)
}

// applyEdit digs a small pit or drops a column of solid voxels near the camera's
// ground track.
func applyEdit[V comparable](e *octree.Editor[V], g *gen.Generator, f flavour[V], rng *rand.Rand, view mgl32.Vec3, r geom.Region) {
	x := int(view.X()) + rng.IntN(49) - 24
	z := int(view.Z()) + rng.IntN(49) - 24
	y := g.SurfaceHeight(x, z)
	if !r.Contains(x, y, z) {
		return
	}
	if rng.IntN(2) == 0 {
		e.FillRegion(geom.NewRegion(x-1, y-2, z-1, x+1, y, z+1).Intersect(r), f.empty)
		return
	}
	for dy := 1; dy <= 3; dy++ {
		if r.Contains(x, y+dy, z) {
			e.SetVoxel(x, y+dy, z, f.solid)
		}
	}
}
