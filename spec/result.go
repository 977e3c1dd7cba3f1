package spec

import (
	"context"
	"sync"

	"github.com/jacentio/lattice/model"
)

// OpKind distinguishes reads from writes.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Operation is a top-level spec registered with a Controller: a *ReadOp or a *WriteOp.
type Operation interface {
	Spec
	Handle() any
	Kind() OpKind
}

// Engine executes frozen operations against a store.
type Engine interface {
	// Execute runs ops, all of which are frozen, and returns one result per operation.
	Execute(ctx context.Context, ops []Operation) (*ResultSet, error)
}

// Cell is one versioned value of a column.
type Cell struct {
	Family    []byte
	Qualifier []byte
	Value     []byte
	Timestamp int64
}

// Pair returns the cell's coordinate.
func (c Cell) Pair() model.FamilyQualifierPair {
	return model.NewFamilyQualifierPair(c.Family, c.Qualifier)
}

// OpResult holds the cells produced for one operation, grouped by column handle.
type OpResult struct {
	handle  any
	kind    OpKind
	handles []any
	cells   map[any][]Cell
}

func newOpResult(handle any, kind OpKind) *OpResult {
	return &OpResult{
		handle: handle,
		kind:   kind,
		cells:  make(map[any][]Cell),
	}
}

// NewWriteResult returns an empty result for a write operation, for engines to return
// once the write has been applied.
func NewWriteResult(handle any) *OpResult {
	return newOpResult(handle, OpWrite)
}

func (r *OpResult) declare(colHandle any) {
	if _, ok := r.cells[colHandle]; ok {
		return
	}
	r.handles = append(r.handles, colHandle)
	r.cells[colHandle] = nil
}

func (r *OpResult) add(colHandle any, c Cell) {
	r.declare(colHandle)
	r.cells[colHandle] = append(r.cells[colHandle], c)
}

// Handle returns the operation handle.
func (r *OpResult) Handle() any { return r.handle }

// Kind returns the operation kind.
func (r *OpResult) Kind() OpKind { return r.kind }

// Cells returns the cells routed to the given column handle, newest first per coordinate.
func (r *OpResult) Cells(colHandle any) []Cell {
	return append([]Cell(nil), r.cells[colHandle]...)
}

// Latest returns the first cell routed to the column, if any.
func (r *OpResult) Latest(colHandle any) (Cell, bool) {
	cells := r.cells[colHandle]
	if len(cells) == 0 {
		return Cell{}, false
	}
	return cells[0], true
}

// Handles returns the column handles in declaration order.
func (r *OpResult) Handles() []any {
	return append([]any(nil), r.handles...)
}

// ResultSet maps operation handles to their results. It is safe for concurrent use.
type ResultSet struct {
	mu      sync.RWMutex
	order   []any
	results map[any]*OpResult
}

// NewResultSet returns an empty set sized for ops.
func NewResultSet(ops []Operation) *ResultSet {
	return &ResultSet{
		order:   make([]any, 0, len(ops)),
		results: make(map[any]*OpResult, len(ops)),
	}
}

// Put stores a result under its operation handle.
func (s *ResultSet) Put(r *OpResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.handle]; !ok {
		s.order = append(s.order, r.handle)
	}
	s.results[r.handle] = r
}

// Get returns the result for an operation handle.
func (s *ResultSet) Get(handle any) (*OpResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[handle]
	return r, ok
}

// All returns every result in the order they were stored.
func (s *ResultSet) All() []*OpResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*OpResult, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.results[h])
	}
	return out
}

// Len returns the number of results.
func (s *ResultSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
