package spec

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ControllerState is the lifecycle phase of a Controller.
type ControllerState int

const (
	// Accepting controllers register new operations.
	Accepting ControllerState = iota
	// Executing controllers have been handed to an engine and accept nothing further.
	Executing
)

func (s ControllerState) String() string {
	switch s {
	case Accepting:
		return "ACCEPTING"
	case Executing:
		return "EXECUTING"
	default:
		return "UNKNOWN"
	}
}

// Controller is the root of a specification tree. It registers read and write operations
// under unique handles, freezes them, and hands them to an Engine.
//
// Construction is single-writer. Once frozen, the operations and their Frozen views may
// be read from any goroutine.
type Controller struct {
	base
	id     string
	engine Engine
	state  ControllerState
	ops    map[any]Operation
	order  []any
}

// NewController creates a controller that executes through engine. engine may be nil for
// controllers that are only frozen and inspected.
func NewController(engine Engine, cfg Config) *Controller {
	cfg.validate()
	c := &Controller{
		id:     uuid.NewString(),
		engine: engine,
		state:  Accepting,
		ops:    make(map[any]Operation),
	}
	t := newTree(cfg.Logger.With("controller", c.id))
	t.nodes[rootID].impl = c
	c.base = base{tree: t, id: rootID, cfg: &cfg}
	return c
}

// ID returns the controller's generated identifier.
func (c *Controller) ID() string { return c.id }

// ControllerState returns the controller's lifecycle phase.
func (c *Controller) ControllerState() ControllerState { return c.state }

// Read registers a new read operation under handle.
func (c *Controller) Read(handle any) (*ReadOp, error) {
	if err := c.register(handle, "read"); err != nil {
		return nil, err
	}
	op := &ReadOp{handle: handle}
	op.base = c.child(op)
	c.ops[handle] = op
	c.order = append(c.order, handle)
	return op, nil
}

// Write registers a new write operation under handle.
func (c *Controller) Write(handle any) (*WriteOp, error) {
	if err := c.register(handle, "write"); err != nil {
		return nil, err
	}
	op := &WriteOp{handle: handle}
	op.base = c.child(op)
	c.ops[handle] = op
	c.order = append(c.order, handle)
	return op, nil
}

func (c *Controller) register(handle any, what string) error {
	if c.state != Accepting {
		return illegalState("cannot add %s operation while %s", what, c.state)
	}
	if err := checkHandle(handle, what+" operation"); err != nil {
		return err
	}
	if _, dup := c.ops[handle]; dup {
		return illegalArgument("operation handle %v is already registered", handle)
	}
	return nil
}

// Operation returns the operation registered under handle.
func (c *Controller) Operation(handle any) (Operation, bool) {
	op, ok := c.ops[handle]
	return op, ok
}

// Operations returns the registered operations in insertion order.
func (c *Controller) Operations() []Operation {
	out := make([]Operation, 0, len(c.order))
	for _, h := range c.order {
		out = append(out, c.ops[h])
	}
	return out
}

// Freeze validates and freezes every registered operation, breadth-first. It stops at the
// first validation failure; operations frozen before it stay frozen.
func (c *Controller) Freeze() error {
	return c.tree.freeze(rootID)
}

// Exec freezes the tree and executes it through the engine. The controller leaves
// Accepting even when freezing or execution fails.
func (c *Controller) Exec(ctx context.Context) (*ResultSet, error) {
	if c.state != Accepting {
		return nil, illegalState("controller %s already %s", c.id, c.state)
	}
	c.state = Executing
	logger := c.tree.logger

	if err := c.Freeze(); err != nil {
		logger.Warnw("freeze failed", "error", err)
		return nil, err
	}
	if c.engine == nil {
		return nil, ErrNoEngine
	}

	ops := c.Operations()
	start := time.Now()
	results, err := c.engine.Execute(ctx, ops)
	if err != nil {
		logger.Errorw("execution failed", "operations", len(ops), "error", err)
		return nil, errors.Wrapf(err, "controller %s", c.id)
	}
	logger.Debugw("executed operations",
		"operations", len(ops),
		"duration", time.Since(start),
	)
	return results, nil
}

// Show returns a structured dump of the whole tree, one node per line.
func (c *Controller) Show() string {
	return c.Format(Structured)
}

func (c *Controller) validate() error { return nil }

func (c *Controller) headline() string {
	return "[<<Controller>>:" + c.id + "]"
}

func (c *Controller) render(b *strings.Builder, f Format) {
	if f == Structured {
		for _, op := range c.Operations() {
			b.WriteString(op.Format(f))
		}
		return
	}
	parts := make([]string, 0, len(c.order))
	for _, op := range c.Operations() {
		parts = append(parts, op.String())
	}
	b.WriteString("{" + strings.Join(parts, ",") + "}")
}

func (c *Controller) hashParts() [][]byte {
	return [][]byte{[]byte(c.id)}
}
