package octree

// Traverse walks the tree depth first. pre runs before a node's children and may
// return false to skip them; post runs after. Either may be nil.
func (o *Octree[V]) Traverse(pre func(n *Node[V]) bool, post func(n *Node[V])) {
	o.traverse(o.root, pre, post)
}

func (o *Octree[V]) traverse(idx NodeIndex, pre func(*Node[V]) bool, post func(*Node[V])) {
	n := &o.nodes[idx]
	descend := true
	if pre != nil {
		descend = pre(n)
	}
	if descend {
		for _, c := range n.children {
			if c != InvalidNodeIndex {
				o.traverse(c, pre, post)
			}
		}
	}
	if post != nil {
		post(n)
	}
}

// Visit calls fn for every node in pre-order.
func (o *Octree[V]) Visit(fn func(n *Node[V])) {
	o.Traverse(func(n *Node[V]) bool {
		fn(n)
		return true
	}, nil)
}

// VisitActive calls fn in pre-order for active nodes. Children of an inactive node
// are never active, so the walk stops there.
func (o *Octree[V]) VisitActive(fn func(n *Node[V])) {
	o.Traverse(func(n *Node[V]) bool {
		if !n.active {
			return false
		}
		fn(n)
		return true
	}, nil)
}

// RenderSet lists the nodes currently flagged for drawing, in pre-order.
func (o *Octree[V]) RenderSet() []*Node[V] {
	var out []*Node[V]
	o.VisitActive(func(n *Node[V]) {
		if n.renderThis {
			out = append(out, n)
		}
	})
	return out
}
