package spec

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a spec node.
type State int

const (
	// Fluid specs accept mutation.
	Fluid State = iota
	// Frozen specs have been validated and are immutable.
	Frozen
)

func (s State) String() string {
	switch s {
	case Fluid:
		return "FLUID"
	case Frozen:
		return "FROZEN"
	default:
		return "UNKNOWN"
	}
}

// Format selects a string rendering of a spec.
type Format int

const (
	// Inline renders a spec and its subordinates on one line.
	Inline Format = iota
	// Structured renders one node per line, indented by depth.
	Structured
)

// Spec is the behaviour shared by every node of a specification tree.
type Spec interface {
	// State returns the node's lifecycle phase.
	State() State
	// Depth returns the distance from the controller.
	Depth() int
	// Freeze validates and freezes the subtree rooted at this node, breadth-first.
	Freeze() error
	// Format renders the node in the given format. The result is cached until mutation.
	Format(f Format) string
	// Hash returns a content hash of the subtree. The result is cached until mutation.
	Hash() uint64
	String() string
}

// base is embedded by every concrete spec and binds it to its arena slot.
type base struct {
	tree *tree
	id   nodeID
	cfg  *Config
}

// State returns the node's lifecycle phase.
func (b *base) State() State {
	return b.tree.nodes[b.id].state
}

// IsFrozen reports whether the node has been frozen.
func (b *base) IsFrozen() bool {
	return b.State() == Frozen
}

// Depth returns the distance from the controller.
func (b *base) Depth() int {
	return b.tree.nodes[b.id].depth
}

// Freeze validates and freezes the subtree rooted at this node.
// Freezing an already frozen subtree is a no-op.
func (b *base) Freeze() error {
	return b.tree.freeze(b.id)
}

// Format renders the node in the given format.
func (b *base) Format(f Format) string {
	return b.tree.format(b.id, f)
}

func (b *base) String() string {
	return b.tree.format(b.id, Inline)
}

// Hash returns a content hash of the subtree.
func (b *base) Hash() uint64 {
	return b.tree.hashOf(b.id)
}

// prepMutation rejects mutation of frozen specs and clears cached representations.
// Every mutator calls it after argument checks and before changing any field.
func (b *base) prepMutation() error {
	if b.IsFrozen() {
		return illegalState("cannot mutate post-freeze: %s", b.tree.nodes[b.id].impl.headline())
	}
	b.tree.invalidate(b.id)
	return nil
}

// prepPostFreezeOp rejects operations that are meaningless before validation.
func (b *base) prepPostFreezeOp(op string) error {
	if !b.IsFrozen() {
		return illegalState("operation %q not supported until spec is frozen: %s", op, b.tree.nodes[b.id].impl.headline())
	}
	return nil
}

// exactlyOnce rejects a second assignment of a field.
func exactlyOnce(field string, alreadySet bool) error {
	if alreadySet {
		return illegalState("%s may only be specified once", field)
	}
	return nil
}

// child registers impl under the receiver and returns the new node's base.
func (b *base) child(impl specImpl) base {
	c := base{tree: b.tree, cfg: b.cfg}
	c.id = b.tree.add(b.id, impl)
	return c
}

// subordinates returns the specs directly below this node.
func (b *base) subordinates() []Spec {
	return b.tree.subordinates(b.id)
}

// checkHandle rejects handles that cannot be used as map keys.
func checkHandle(handle any, what string) error {
	if handle == nil {
		return illegalArgument("%s must be specified with a non-nil handle", what)
	}
	if !reflect.ValueOf(handle).Comparable() {
		return illegalArgument("%s handle of type %T is not comparable", what, handle)
	}
	return nil
}

// columnHandle returns handle, or a generated one when handle is nil.
func columnHandle(handle any) (any, error) {
	if handle == nil {
		return AnonymousHandle(uuid.NewString()), nil
	}
	if err := checkHandle(handle, "column"); err != nil {
		return nil, err
	}
	return handle, nil
}

// AnonymousHandle is assigned to columns created without a caller-supplied handle.
type AnonymousHandle string

func handleBytes(h any) []byte {
	return []byte(fmt.Sprintf("%T:%v", h, h))
}

func intBytes(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}
