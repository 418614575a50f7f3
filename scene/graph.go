package scene

import "fmt"

// Graph is an arena of nodes forming a tree. Node IDs are indices into the
// arena and stay valid for the lifetime of the graph.
type Graph struct {
	nodes []*Node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Add stores n under parent (NoNode for a root) and returns its ID.
func (g *Graph) Add(n *Node, parent ID) ID {
	if parent != NoNode && g.Node(parent) == nil {
		panic(fmt.Sprintf("scene.Graph.Add: unknown parent %v for %q", parent, n.Name))
	}
	n.ID = ID(len(g.nodes))
	n.Parent = parent
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	g.nodes = append(g.nodes, n)
	g.UpdateWorld(n)
	return n.ID
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id ID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// visible reports whether n and all of its ancestors are visible.
func (g *Graph) visible(n *Node) bool {
	for ; n != nil; n = g.Node(n.Parent) {
		if !n.Visible {
			return false
		}
	}
	return true
}

// Discover returns, in ID order, the visible nodes for which pred is true.
func (g *Graph) Discover(pred func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if g.visible(n) && pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// ActiveCamera returns the first active camera, or nil.
func (g *Graph) ActiveCamera() *Node {
	for _, n := range g.nodes {
		if n.IsCamera() && n.Camera.Active {
			return n
		}
	}
	return nil
}

// UpdateWorld recomputes the world transform of n from its ancestors.
func (g *Graph) UpdateWorld(n *Node) {
	local := n.LocalMatrix()
	if p := g.Node(n.Parent); p != nil {
		g.UpdateWorld(p)
		n.World = p.World.Mul4(local)
		return
	}
	n.World = local
}

// UpdateAll recomputes every world transform.
func (g *Graph) UpdateAll() {
	for _, n := range g.nodes {
		local := n.LocalMatrix()
		if p := g.Node(n.Parent); p != nil {
			// parents precede children in the arena
			n.World = p.World.Mul4(local)
			continue
		}
		n.World = local
	}
}
