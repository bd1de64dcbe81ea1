package octree

import (
	"math"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/mesh"
	"voxelterrain/internal/tasks"
)

// NodeIndex addresses a node in its octree's node array.
type NodeIndex uint32

// InvalidNodeIndex marks a missing parent or child.
const InvalidNodeIndex NodeIndex = math.MaxUint32

// NodeState summarises where a node is in the extraction cycle.
type NodeState int

const (
	Inactive NodeState = iota
	ActiveStale
	ActiveScheduled
	ActiveCurrent
)

func (s NodeState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case ActiveStale:
		return "stale"
	case ActiveScheduled:
		return "scheduled"
	case ActiveCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// Node is one cubic region of the octree. Height 0 is the finest level; the root
// has the largest height.
//
// Nodes are owned by the goroutine that calls Octree.Update. Renderers may read
// them from that goroutine between updates.
type Node[V comparable] struct {
	region   geom.Region
	height   uint
	index    NodeIndex
	parent   NodeIndex
	children [8]NodeIndex

	active     bool
	renderThis bool

	dataLastModified          tasks.Timestamp
	meshLastChanged           tasks.Timestamp
	structureLastChanged      tasks.Timestamp
	propertiesLastChanged     tasks.Timestamp
	nodeOrChildrenLastChanged tasks.Timestamp
	lastScheduledForUpdate    tasks.Timestamp

	// processingStarted of the task whose mesh is installed.
	meshStarted tasks.Timestamp

	mesh *mesh.Mesh[V]
	task *SurfaceExtractionTask[V]
}

func (n *Node[V]) Region() geom.Region { return n.region }
func (n *Node[V]) Height() uint        { return n.height }

// halo is the region a node's extraction reads: one coarse cell (2^height voxels)
// beyond its own region. Height 0 nodes read one voxel.
func (n *Node[V]) halo() geom.Region { return n.region.Grow(1 << n.height) }
func (n *Node[V]) Index() NodeIndex    { return n.index }
func (n *Node[V]) Parent() NodeIndex   { return n.parent }

// Child returns the i-th child (0..7, x bit first), or InvalidNodeIndex.
func (n *Node[V]) Child(i int) NodeIndex { return n.children[i] }

func (n *Node[V]) IsRoot() bool { return n.parent == InvalidNodeIndex }

func (n *Node[V]) IsLeaf() bool {
	for _, c := range n.children {
		if c != InvalidNodeIndex {
			return false
		}
	}
	return true
}

// Mesh is the last installed mesh; nil until the first extraction finishes.
func (n *Node[V]) Mesh() *mesh.Mesh[V] { return n.mesh }

func (n *Node[V]) RenderThisNode() bool { return n.renderThis }
func (n *Node[V]) IsActive() bool       { return n.active }

func (n *Node[V]) IsMeshUpToDate() bool { return n.meshLastChanged > n.dataLastModified }

// IsScheduled reports a request for extraction newer than both the data and the
// installed mesh.
func (n *Node[V]) IsScheduled() bool {
	return n.lastScheduledForUpdate > n.dataLastModified && n.lastScheduledForUpdate > n.meshLastChanged
}

// HasPendingTask reports whether the most recently scheduled task has not been
// folded back yet.
func (n *Node[V]) HasPendingTask() bool { return n.task != nil }

func (n *Node[V]) State() NodeState {
	switch {
	case !n.active:
		return Inactive
	case n.IsMeshUpToDate():
		return ActiveCurrent
	case n.task != nil || n.IsScheduled():
		return ActiveScheduled
	default:
		return ActiveStale
	}
}

func (n *Node[V]) DataLastModified() tasks.Timestamp      { return n.dataLastModified }
func (n *Node[V]) MeshLastChanged() tasks.Timestamp       { return n.meshLastChanged }
func (n *Node[V]) StructureLastChanged() tasks.Timestamp  { return n.structureLastChanged }
func (n *Node[V]) PropertiesLastChanged() tasks.Timestamp { return n.propertiesLastChanged }

// NodeOrChildrenLastChanged is the latest mesh, structure or property change in
// this subtree as of the last Update.
func (n *Node[V]) NodeOrChildrenLastChanged() tasks.Timestamp { return n.nodeOrChildrenLastChanged }

func (n *Node[V]) LastScheduledForUpdate() tasks.Timestamp { return n.lastScheduledForUpdate }
