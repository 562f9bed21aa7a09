// Package spatial provides a loose octree over movable bounded objects.
//
// The tree stores integer ids, never pointers. Bounds are owned by the
// caller and read through a Source callback: callers update an entity's
// bound themselves after calling Update.
package spatial

import (
	"lodmesh/internal/geom"
	"lodmesh/internal/pool"
	"lodmesh/internal/sparse"
)

// Source returns the current bound of an indexed id.
type Source func(id int) geom.Bound

// Config tunes node splitting.
type Config struct {
	MaxItemsPerNode int     // Leaf item count that triggers a split
	MinNodeSize     float64 // Nodes at or below this extent never split
	InitialNodes    int     // Node pool capacity before it grows
}

// DefaultConfig returns the tuning used by the chunk and field indexes.
func DefaultConfig() Config {
	return Config{
		MaxItemsPerNode: 8,
		MinNodeSize:     1,
		InitialNodes:    512,
	}
}

type node struct {
	box         geom.Box
	items       []int
	children    [8]int
	hasChildren bool
	total       int // logical item references at and below this node
}

// Octree is a loose octree keyed by pool id.
//
// An item whose diameter exceeds half a node's extent is stored in that
// node's list instead of being pushed into children. Small items are
// duplicated across every sibling leaf they overlap.
type Octree struct {
	cfg     Config
	root    int
	nodes   *pool.Pool[node]
	bounds  Source
	members sparse.Set
}

// NewOctree creates an octree covering world.
func NewOctree(world geom.Box, bounds Source, cfg Config) *Octree {
	if cfg.MaxItemsPerNode < 1 {
		cfg.MaxItemsPerNode = 1
	}
	if cfg.MinNodeSize <= 0 {
		cfg.MinNodeSize = world.Size() / (1 << 16)
	}
	maxItems := cfg.MaxItemsPerNode
	nodes := pool.New("octree-nodes", cfg.InitialNodes,
		func(int) *node { return &node{items: make([]int, 0, maxItems)} },
		func(n *node) {
			n.items = n.items[:0]
			n.hasChildren = false
			n.total = 0
		})

	t := &Octree{cfg: cfg, nodes: nodes, bounds: bounds}
	var root *node
	t.root, root = nodes.Acquire()
	root.box = world
	return t
}

// World returns the root box.
func (t *Octree) World() geom.Box {
	return t.node(t.root).box
}

// Len returns the number of indexed ids.
func (t *Octree) Len() int { return t.members.Len() }

// Contains reports whether id is indexed.
func (t *Octree) Contains(id int) bool { return t.members.Has(id) }

func (t *Octree) node(id int) *node {
	n, _ := t.nodes.Get(id)
	return n
}

// Insert indexes id under its current bound. Inserting an indexed id is a
// no-op that returns false.
func (t *Octree) Insert(id int) bool {
	if !t.members.Add(id) {
		return false
	}
	t.insert(t.root, id, t.bounds(id))
	return true
}

// Remove drops id using its current bound. Removing an absent id is a no-op
// that returns false.
func (t *Octree) Remove(id int) bool {
	if !t.members.Remove(id) {
		return false
	}
	t.remove(t.root, id, t.bounds(id))
	return true
}

// Update moves id from its current bound to next. The caller commits next
// as the id's bound after Update returns.
func (t *Octree) Update(id int, next geom.Bound) bool {
	if !t.members.Has(id) {
		return false
	}
	t.update(t.root, id, t.bounds(id), next)
	return true
}

// storesHere decides whether b belongs in n's own list.
func (t *Octree) storesHere(nid int, n *node, b geom.Bound) bool {
	size := n.box.Size()
	if b.Size() > size/2 {
		return true
	}
	// The root keeps anything that falls outside the world.
	if nid == t.root && !b.OverlapsBox(n.box) {
		return true
	}
	if n.hasChildren {
		return false
	}
	return !(len(n.items) >= t.cfg.MaxItemsPerNode && size > t.cfg.MinNodeSize)
}

func (t *Octree) insert(nid, id int, b geom.Bound) {
	n := t.node(nid)
	if nid != t.root && !b.OverlapsBox(n.box) {
		return
	}
	n.total++

	if t.storesHere(nid, n, b) {
		n.items = append(n.items, id)
		return
	}
	if !n.hasChildren {
		t.subdivide(nid, n)
	}
	for _, c := range n.children {
		t.insert(c, id, b)
	}
}

// subdivide creates the 8 children and pushes down stored items that fit.
func (t *Octree) subdivide(nid int, n *node) {
	for i := range n.children {
		cid, c := t.nodes.Acquire()
		c.box = n.box.Octant(i)
		n.children[i] = cid
	}
	n.hasChildren = true

	half := n.box.Size() / 2
	kept := n.items[:0]
	for _, id := range n.items {
		b := t.bounds(id)
		if b.Size() > half || (nid == t.root && !b.OverlapsBox(n.box)) {
			kept = append(kept, id)
			continue
		}
		for _, c := range n.children {
			t.insert(c, id, b)
		}
	}
	n.items = kept
}

func (t *Octree) remove(nid, id int, b geom.Bound) bool {
	n := t.node(nid)
	if n.total == 0 {
		return false
	}
	if nid != t.root && !b.OverlapsBox(n.box) {
		return false
	}

	removed := removeItem(n, id)
	if !removed && n.hasChildren {
		for _, c := range n.children {
			if t.remove(c, id, b) {
				removed = true
			}
		}
	}
	if !removed {
		return false
	}

	n.total--
	if n.total == 0 && n.hasChildren {
		t.releaseChildren(n)
	}
	return true
}

func (t *Octree) update(nid, id int, old, next geom.Bound) {
	n := t.node(nid)
	isRoot := nid == t.root
	was := isRoot || old.OverlapsBox(n.box)
	now := isRoot || next.OverlapsBox(n.box)

	switch {
	case !was && !now:
		return
	case !was && now:
		t.insert(nid, id, next)
		return
	case was && !now:
		t.remove(nid, id, old)
		return
	}

	isHere := indexOf(n.items, id) >= 0
	shouldBeHere := !n.hasChildren || next.Size() > n.box.Size()/2 ||
		(isRoot && !next.OverlapsBox(n.box))

	switch {
	case isHere && shouldBeHere:
	case isHere && !shouldBeHere:
		removeItem(n, id)
		for _, c := range n.children {
			t.insert(c, id, next)
		}
	case !isHere && shouldBeHere:
		if n.hasChildren {
			for _, c := range n.children {
				t.remove(c, id, old)
			}
		}
		n.items = append(n.items, id)
	default:
		for _, c := range n.children {
			t.update(c, id, old, next)
		}
	}
}

func (t *Octree) releaseChildren(n *node) {
	for _, c := range n.children {
		cn := t.node(c)
		if cn.hasChildren {
			t.releaseChildren(cn)
		}
		t.nodes.Release(c)
	}
	n.hasChildren = false
}

// QueryBox adds to out every indexed id whose bound overlaps box.
// out is not cleared first.
func (t *Octree) QueryBox(box geom.Box, out *sparse.Set) {
	t.queryBox(t.root, box, out)
}

func (t *Octree) queryBox(nid int, box geom.Box, out *sparse.Set) {
	n := t.node(nid)
	if n.total == 0 {
		return
	}
	if nid != t.root && !n.box.Overlaps(box) {
		return
	}
	for _, id := range n.items {
		if !out.Has(id) && t.bounds(id).OverlapsBox(box) {
			out.Add(id)
		}
	}
	if n.hasChildren {
		for _, c := range n.children {
			t.queryBox(c, box, out)
		}
	}
}

// QuerySphere adds to out every indexed id whose bound overlaps the sphere.
// out is not cleared first.
func (t *Octree) QuerySphere(center geom.Vec3, radius float64, out *sparse.Set) {
	t.querySphere(t.root, geom.Sphere(center, radius), out)
}

func (t *Octree) querySphere(nid int, s geom.Bound, out *sparse.Set) {
	n := t.node(nid)
	if n.total == 0 {
		return
	}
	if nid != t.root && !n.box.OverlapsSphere(s.Center, s.RadiusSq) {
		return
	}
	for _, id := range n.items {
		if !out.Has(id) && t.bounds(id).Overlaps(s) {
			out.Add(id)
		}
	}
	if n.hasChildren {
		for _, c := range n.children {
			t.querySphere(c, s, out)
		}
	}
}

// Stats describes the tree shape.
type Stats struct {
	Items     int `json:"items"`
	Nodes     int `json:"nodes"`
	Depth     int `json:"depth"`
	RootItems int `json:"rootItems"`
}

// Stats walks the tree and reports its shape.
func (t *Octree) Stats() Stats {
	root := t.node(t.root)
	return Stats{
		Items:     t.members.Len(),
		Nodes:     t.nodes.Len(),
		Depth:     t.depth(root),
		RootItems: len(root.items),
	}
}

func (t *Octree) depth(n *node) int {
	if !n.hasChildren {
		return 0
	}
	d := 0
	for _, c := range n.children {
		if cd := t.depth(t.node(c)); cd > d {
			d = cd
		}
	}
	return d + 1
}

func indexOf(items []int, id int) int {
	for i, v := range items {
		if v == id {
			return i
		}
	}
	return -1
}

func removeItem(n *node, id int) bool {
	i := indexOf(n.items, id)
	if i < 0 {
		return false
	}
	last := len(n.items) - 1
	n.items[i] = n.items[last]
	n.items = n.items[:last]
	return true
}
