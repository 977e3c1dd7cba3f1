package spec

import (
	"fmt"
	"strings"

	"github.com/jacentio/lattice/model"
)

// RowRef identifies the table and row an operation targets.
type RowRef struct {
	base
	table *model.Table
	key   []byte
}

func newRowRef(parent *base) *RowRef {
	r := &RowRef{}
	r.base = parent.child(r)
	return r
}

// Table sets the target table.
func (r *RowRef) Table(t model.Table) error {
	if t.Name() == "" {
		return illegalArgument("table name must not be empty")
	}
	if err := r.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("table", r.table != nil); err != nil {
		return err
	}
	r.table = &t
	return nil
}

// Key sets the target row key.
func (r *RowRef) Key(key []byte) error {
	if key == nil {
		return illegalArgument("row key must not be nil")
	}
	if err := r.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("row key", r.key != nil); err != nil {
		return err
	}
	r.key = r.cfg.CopyStrategy.OnSet(key)
	return nil
}

// TableModel returns the target table, if set.
func (r *RowRef) TableModel() (model.Table, bool) {
	if r.table == nil {
		return model.Table{}, false
	}
	return *r.table, true
}

// RowKey returns the target row key, or nil if unset.
func (r *RowRef) RowKey() []byte {
	return r.cfg.CopyStrategy.OnGet(r.key)
}

func (r *RowRef) validate() error {
	if r.table == nil {
		return invalid(r, "table is required")
	}
	if r.key == nil {
		return invalid(r, "row key is required")
	}
	return nil
}

func (r *RowRef) headline() string {
	return "[ROW]"
}

func (r *RowRef) render(b *strings.Builder, f Format) {
	var desc string
	if r.table != nil {
		desc = r.table.Name()
	}
	desc += fmt.Sprintf("/%q", r.key)
	if f == Structured {
		writeIndented(b, r.Depth()+1, desc)
		b.WriteString("\n")
		return
	}
	b.WriteString("{" + desc + "}")
}

func (r *RowRef) hashParts() [][]byte {
	var name []byte
	if r.table != nil {
		name = []byte(r.table.Name())
	}
	return [][]byte{name, r.key}
}
