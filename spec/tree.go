package spec

import (
	"encoding/binary"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jacentio/lattice/internal/cellkey"
)

// nodeID addresses a node within a controller's arena.
type nodeID int

// rootID is the controller's own node.
const rootID nodeID = 0

// specImpl is implemented by every concrete spec type.
type specImpl interface {
	Spec

	// validate is called once, immediately before the node is marked FROZEN.
	validate() error

	// headline is the one-line title of the node.
	headline() string

	// render appends the node's content (after the headline) in the given format.
	render(b *strings.Builder, f Format)

	// hashParts returns the identity-bearing content of the node, excluding children.
	hashParts() [][]byte
}

// node is one arena slot. Parent and children are indices, never pointers.
type node struct {
	parent   nodeID
	children []nodeID
	depth    int
	state    State
	impl     specImpl

	strRep map[Format]string
	hash   uint64
	hashOK bool
}

// tree is the arena owned by a Controller.
type tree struct {
	// mu guards the representation caches, which may be filled lazily after freeze by
	// concurrent readers.
	mu     sync.Mutex
	nodes  []*node
	logger *zap.SugaredLogger
}

func newTree(logger *zap.SugaredLogger) *tree {
	return &tree{
		nodes:  []*node{{parent: -1, strRep: make(map[Format]string)}},
		logger: logger,
	}
}

// add appends impl as the last child of parent and returns its id.
func (t *tree) add(parent nodeID, impl specImpl) nodeID {
	p := t.nodes[parent]
	id := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, &node{
		parent: parent,
		depth:  p.depth + 1,
		state:  Fluid,
		impl:   impl,
		strRep: make(map[Format]string),
	})
	p.children = append(p.children, id)
	t.invalidate(parent)
	return id
}

// invalidate clears cached representations of id and all its ancestors, since a node's
// rendering includes its subordinates.
func (t *tree) invalidate(id nodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for cur := id; cur >= 0; cur = t.nodes[cur].parent {
		n := t.nodes[cur]
		clear(n.strRep)
		n.hashOK = false
	}
}

// freeze performs the cascading breadth-first freeze starting at start.
// It stops at the first validation failure; nodes frozen before it stay frozen.
func (t *tree) freeze(start nodeID) error {
	queue := []nodeID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.nodes[id]

		if id == rootID {
			queue = append(queue, n.children...)
			continue
		}
		if n.state == Frozen {
			continue
		}
		if err := n.impl.validate(); err != nil {
			t.logger.Debugw("spec validation failed",
				"spec", n.impl.headline(),
				"depth", n.depth,
				"error", err,
			)
			return err
		}
		t.logger.Debugw("setting spec state",
			"spec", n.impl.headline(),
			"from", n.state,
			"to", Frozen,
		)
		n.state = Frozen
		queue = append(queue, n.children...)
	}
	return nil
}

// format returns the cached rendering of id, computing it if needed.
// The lock is not held while rendering because rendering recurses into subordinates.
func (t *tree) format(id nodeID, f Format) string {
	t.mu.Lock()
	n := t.nodes[id]
	if s, ok := n.strRep[f]; ok {
		t.mu.Unlock()
		return s
	}
	t.mu.Unlock()

	var b strings.Builder
	switch f {
	case Structured:
		writeIndented(&b, n.depth, n.impl.headline())
		b.WriteString("\n")
	default:
		b.WriteString(n.impl.headline())
	}
	n.impl.render(&b, f)
	s := b.String()

	t.mu.Lock()
	n.strRep[f] = s
	t.mu.Unlock()
	return s
}

// hashOf returns the cached hash of id, computing it if needed.
func (t *tree) hashOf(id nodeID) uint64 {
	t.mu.Lock()
	n := t.nodes[id]
	if n.hashOK {
		h := n.hash
		t.mu.Unlock()
		return h
	}
	children := append([]nodeID(nil), n.children...)
	t.mu.Unlock()

	parts := n.impl.hashParts()
	for _, c := range children {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], t.hashOf(c))
		parts = append(parts, buf[:])
	}
	h := cellkey.Hash(parts...)

	t.mu.Lock()
	n.hash = h
	n.hashOK = true
	t.mu.Unlock()
	return h
}

// subordinates returns the specs directly below id in construction order.
func (t *tree) subordinates(id nodeID) []Spec {
	n := t.nodes[id]
	out := make([]Spec, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, t.nodes[c].impl)
	}
	return out
}

func writeIndented(b *strings.Builder, depth int, s string) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(s)
}
