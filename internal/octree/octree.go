// Package octree decides, frame by frame, which regions of a paged volume need a
// mesh at which level of detail, schedules the extraction work and tracks which
// nodes a renderer should draw.
package octree

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/mesh"
	"voxelterrain/internal/tasks"
	"voxelterrain/internal/volume"
)

var ErrInvalidNodeSize = errors.New("octree: base node size must be a positive power of two")

// ConstructionMode selects what the covered region bounds.
type ConstructionMode int

const (
	// BoundVoxels covers exactly the given voxels (cubic meshes).
	BoundVoxels ConstructionMode = iota
	// BoundCells grows the region by one voxel so every cell between two voxels of
	// the region is meshed (marching-cubes style extractors).
	BoundCells
)

func (m ConstructionMode) String() string {
	if m == BoundCells {
		return "cells"
	}
	return "voxels"
}

// Traits describes a voxel flavour to the octree.
type Traits[V comparable] struct {
	Empty   V
	Extract mesh.ExtractFunc[V]
}

type Config[V comparable] struct {
	Region       geom.Region
	BaseNodeSize int
	Mode         ConstructionMode
	Volume       *volume.PagedVolume[V]
	Traits       Traits[V]

	// Main runs extraction for nodes that were drawn last frame. Defaults to a
	// private MainThreadProcessor.
	Main tasks.Processor
	// Background runs everything else. Defaults to the volume's processor.
	Background tasks.Processor

	Logger *log.Logger
}

// UpdateStats describes one Update call.
type UpdateStats struct {
	ScheduledMain       int
	ScheduledBackground int
	Completed           int
	Discarded           int
	Pending             int
	ActiveNodes         int
	RenderedNodes       int
	Changed             bool
}

// Octree is a flat array of nodes over a volume. Every method must be called from
// the goroutine that owns the octree; only SurfaceExtractionTask.Process runs
// elsewhere.
type Octree[V comparable] struct {
	nodes   []Node[V]
	root    NodeIndex
	covered geom.Region
	base    int
	mode    ConstructionMode

	vol    *volume.PagedVolume[V]
	traits Traits[V]

	main       tasks.Processor
	background tasks.Processor
	completed  *tasks.Queue[*SurfaceExtractionTask[V]]
	pending    int

	clock   tasks.Clock
	elapsed float64

	// minimumLOD is the coarsest height that gets meshes, maximumLOD the finest.
	minimumLOD uint
	maximumLOD uint

	lastSeen tasks.Timestamp
	logger   *log.Logger
}

func New[V comparable](cfg Config[V]) (*Octree[V], error) {
	if cfg.Volume == nil {
		return nil, errors.New("octree: nil volume")
	}
	if cfg.Traits.Extract == nil {
		return nil, errors.New("octree: nil extract function")
	}
	if !geom.IsPowerOfTwo(cfg.BaseNodeSize) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNodeSize, cfg.BaseNodeSize)
	}
	if !cfg.Region.IsValid() {
		return nil, fmt.Errorf("octree: invalid region %v", cfg.Region)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[octree] ", log.LstdFlags)
	}
	if cfg.Main == nil {
		cfg.Main = tasks.NewMainThreadProcessor()
	}
	if cfg.Background == nil {
		cfg.Background = cfg.Volume.Background()
	}

	covered := cfg.Region
	if cfg.Mode == BoundCells {
		covered = covered.Grow(1)
	}
	d := covered.Dimensions()
	side := geom.UpperPowerOfTwo(max(d.X, d.Y, d.Z))
	side = max(side, cfg.BaseNodeSize)
	height := geom.Log2(side / cfg.BaseNodeSize)

	o := &Octree[V]{
		covered:    covered,
		base:       cfg.BaseNodeSize,
		mode:       cfg.Mode,
		vol:        cfg.Volume,
		traits:     cfg.Traits,
		main:       cfg.Main,
		background: cfg.Background,
		completed:  tasks.NewQueue[*SurfaceExtractionTask[V]](),
		minimumLOD: height,
		maximumLOD: 0,
		logger:     logger,
	}
	o.root = o.build(geom.CubeAt(covered.Min, side), InvalidNodeIndex, height)
	logger.Printf("octree over %v (%s): %d nodes, root height %d, base node %d",
		covered, cfg.Mode, len(o.nodes), height, cfg.BaseNodeSize)
	return o, nil
}

func (o *Octree[V]) build(r geom.Region, parent NodeIndex, height uint) NodeIndex {
	idx := NodeIndex(len(o.nodes))
	o.nodes = append(o.nodes, Node[V]{
		region:           r,
		height:           height,
		index:            idx,
		parent:           parent,
		children:         [8]NodeIndex{InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex, InvalidNodeIndex},
		dataLastModified: o.clock.Next(),
	})
	if height == 0 {
		return idx
	}
	half := r.Width() / 2
	for i := 0; i < 8; i++ {
		lower := r.Min.Add(geom.Vec3i{X: i & 1, Y: i >> 1 & 1, Z: i >> 2 & 1}.Scale(half))
		cr := geom.CubeAt(lower, half)
		if !cr.Intersects(o.covered) {
			continue
		}
		child := o.build(cr, idx, height-1)
		o.nodes[idx].children[i] = child
	}
	return idx
}

// Node returns the node at idx. It panics on an invalid index.
func (o *Octree[V]) Node(idx NodeIndex) *Node[V] {
	if int(idx) >= len(o.nodes) {
		panic(fmt.Sprintf("octree: node index %d out of range [0,%d)", idx, len(o.nodes)))
	}
	return &o.nodes[idx]
}

func (o *Octree[V]) RootIndex() NodeIndex { return o.root }
func (o *Octree[V]) RootNode() *Node[V]   { return &o.nodes[o.root] }
func (o *Octree[V]) NodeCount() int       { return len(o.nodes) }
func (o *Octree[V]) BaseNodeSize() int    { return o.base }

// Region is the covered region, including the cell border in BoundCells mode.
func (o *Octree[V]) Region() geom.Region           { return o.covered }
func (o *Octree[V]) Volume() *volume.PagedVolume[V] { return o.vol }

// Time is the sum of the dt values passed to Update.
func (o *Octree[V]) Time() float64 { return o.elapsed }

// Now is the octree's logical clock.
func (o *Octree[V]) Now() tasks.Timestamp { return o.clock.Now() }

// PendingTasks counts scheduled tasks whose results have not been folded back.
func (o *Octree[V]) PendingTasks() int { return o.pending }

// SetLODRange limits which heights get meshes. Note the naming: minimum is the
// coarsest height allowed and maximum the finest, so minimum >= maximum. Heights
// above minimum stay active so their descendants can be reached.
func (o *Octree[V]) SetLODRange(minimum, maximum uint) {
	if minimum < maximum {
		panic(fmt.Sprintf("octree: minimum LOD %d is finer than maximum LOD %d", minimum, maximum))
	}
	o.minimumLOD = minimum
	o.maximumLOD = maximum
}

func (o *Octree[V]) LODRange() (minimum, maximum uint) { return o.minimumLOD, o.maximumLOD }

// MarkDataAsModified stamps every node whose halo contains (x,y,z). Call it after
// writing the voxel.
func (o *Octree[V]) MarkDataAsModified(x, y, z int) {
	o.markPoint(o.root, x, y, z, o.clock.Next())
}

func (o *Octree[V]) markPoint(idx NodeIndex, x, y, z int, ts tasks.Timestamp) {
	n := &o.nodes[idx]
	if !n.halo().Contains(x, y, z) {
		return
	}
	n.dataLastModified = ts
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			o.markPoint(c, x, y, z, ts)
		}
	}
}

// MarkRegionAsModified stamps every node whose halo intersects r.
func (o *Octree[V]) MarkRegionAsModified(r geom.Region) {
	if !r.IsValid() {
		return
	}
	o.markRegion(o.root, r, o.clock.Next())
}

func (o *Octree[V]) markRegion(idx NodeIndex, r geom.Region, ts tasks.Timestamp) {
	n := &o.nodes[idx]
	if !n.halo().Intersects(r) {
		return
	}
	n.dataLastModified = ts
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			o.markRegion(c, r, ts)
		}
	}
}

// Update advances elapsed time by dt and runs one frame: activity, scheduling, the
// main-thread tasks, draining finished tasks, render selection and timestamp
// propagation, in that order.
func (o *Octree[V]) Update(dt float64, view mgl32.Vec3, lodThreshold float32) UpdateStats {
	o.elapsed += dt
	var st UpdateStats

	o.determineActiveNodes(o.root, view, lodThreshold)
	o.scheduleUpdates(o.root, view, &st)

	o.main.ProcessAllTasks()
	o.background.ProcessAllTasks()

	for {
		t, ok := o.completed.TryPop()
		if !ok {
			break
		}
		if o.fold(t) {
			st.Completed++
		} else {
			st.Discarded++
		}
	}

	o.determineWhetherToRender(o.root)
	changed := o.propagateTimestamps(o.root)
	st.Changed = changed > o.lastSeen
	o.lastSeen = changed

	o.VisitActive(func(n *Node[V]) {
		st.ActiveNodes++
		if n.renderThis {
			st.RenderedNodes++
		}
	})
	st.Pending = o.pending
	return st
}

// WaitForPendingTasks runs and folds tasks until none are outstanding. Render flags
// are refreshed by the next Update. Tasks dropped by a closed processor never
// complete, so the wait then ends only with ctx.
func (o *Octree[V]) WaitForPendingTasks(ctx context.Context) error {
	for o.pending > 0 {
		o.main.ProcessAllTasks()
		o.background.ProcessAllTasks()
		t, err := o.completed.WaitAndPop(ctx)
		if err != nil {
			return err
		}
		o.fold(t)
	}
	return nil
}

// Close wakes anything blocked on the completion queue.
func (o *Octree[V]) Close() {
	o.completed.Abort()
}

func (o *Octree[V]) setActive(n *Node[V], active bool) {
	if n.active == active {
		return
	}
	n.active = active
	if n.parent != InvalidNodeIndex {
		o.nodes[n.parent].structureLastChanged = o.clock.Next()
	}
}

func (o *Octree[V]) setRenderThisNode(n *Node[V], render bool) {
	if n.renderThis == render {
		return
	}
	n.renderThis = render
	n.propertiesLastChanged = o.clock.Next()
}

func (o *Octree[V]) determineActiveNodes(idx NodeIndex, view mgl32.Vec3, threshold float32) {
	n := &o.nodes[idx]
	if n.parent == InvalidNodeIndex {
		o.setActive(n, true)
	} else {
		p := &o.nodes[n.parent]
		active := false
		if p.active && n.height >= o.maximumLOD {
			distance := view.Sub(p.region.CentreF()).Len()
			projected := p.region.DiagonalLength() / distance
			active = projected > threshold || p.height > o.minimumLOD
		}
		o.setActive(n, active)
	}
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			o.determineActiveNodes(c, view, threshold)
		}
	}
}

func (o *Octree[V]) scheduleUpdates(idx NodeIndex, view mgl32.Vec3, st *UpdateStats) {
	n := &o.nodes[idx]
	if !n.active {
		return
	}
	if o.needsScheduling(n) {
		n.lastScheduledForUpdate = o.clock.Next()
		t := &SurfaceExtractionTask[V]{
			node:      idx,
			region:    n.region,
			height:    n.height,
			vol:       o.vol,
			traits:    o.traits,
			clock:     &o.clock,
			completed: o.completed,
		}
		n.task = t
		o.pending++
		if n.renderThis {
			t.priority = tasks.MaxPriority
			o.main.AddTask(t)
			st.ScheduledMain++
		} else {
			t.priority = distancePriority(view.Sub(n.region.CentreF()).Len())
			o.background.AddTask(t)
			st.ScheduledBackground++
		}
	}
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			o.scheduleUpdates(c, view, st)
		}
	}
}

func (o *Octree[V]) needsScheduling(n *Node[V]) bool {
	if n.IsMeshUpToDate() || n.IsScheduled() {
		return false
	}
	// A queued task that has not started will read the newest voxels anyway.
	if n.task != nil && n.task.ProcessingStarted() == 0 {
		return false
	}
	return n.height >= o.maximumLOD && n.height <= o.minimumLOD
}

// distancePriority favours nearer nodes. It stays below MaxPriority.
func distancePriority(distance float32) uint32 {
	if distance < 1 {
		distance = 1
	}
	if distance >= math.MaxUint32 {
		return 0
	}
	return math.MaxUint32 - uint32(distance)
}

// fold installs a finished task's mesh. It reports false when a newer mesh is
// already in place and the result was dropped.
func (o *Octree[V]) fold(t *SurfaceExtractionTask[V]) bool {
	o.pending--
	n := &o.nodes[t.node]
	if n.task == t {
		n.task = nil
	}
	started := t.ProcessingStarted()
	if started < n.meshStarted {
		return false
	}
	n.mesh = t.mesh
	n.meshStarted = started
	n.meshLastChanged = o.clock.Next()
	if started < n.dataLastModified && n.task == nil {
		// The voxels changed while the task was reading them and no newer task was
		// scheduled to pick the change up.
		n.dataLastModified = o.clock.Next()
	}
	return true
}

// determineWhetherToRender reports whether the node or its subtree can be drawn.
func (o *Octree[V]) determineWhetherToRender(idx NodeIndex) bool {
	n := &o.nodes[idx]
	if !n.active {
		o.clearRenderFlags(idx)
		return false
	}

	hasActive, all := false, true
	for _, c := range n.children {
		if c == InvalidNodeIndex {
			continue
		}
		if !o.nodes[c].active {
			o.clearRenderFlags(c)
			continue
		}
		hasActive = true
		if !o.determineWhetherToRender(c) {
			all = false
		}
	}

	if hasActive && all {
		o.setRenderThisNode(n, false)
		return true
	}
	if hasActive {
		for _, c := range n.children {
			if c != InvalidNodeIndex {
				o.clearRenderFlags(c)
			}
		}
	}
	up := n.IsMeshUpToDate()
	o.setRenderThisNode(n, up)
	return up
}

func (o *Octree[V]) clearRenderFlags(idx NodeIndex) {
	n := &o.nodes[idx]
	o.setRenderThisNode(n, false)
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			o.clearRenderFlags(c)
		}
	}
}

func (o *Octree[V]) propagateTimestamps(idx NodeIndex) tasks.Timestamp {
	n := &o.nodes[idx]
	latest := max(n.meshLastChanged, n.structureLastChanged, n.propertiesLastChanged)
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			latest = max(latest, o.propagateTimestamps(c))
		}
	}
	n.nodeOrChildrenLastChanged = latest
	return latest
}
