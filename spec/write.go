package spec

import (
	"fmt"
	"strings"

	"github.com/jacentio/lattice/model"
)

// WriteOp specifies a mutation of one row. Build it through Controller.Write, then freeze.
type WriteOp struct {
	base
	handle  any
	row     *RowRef
	columns []*WriteColumn

	// Populated by validate.
	columnAssoc assocIndex[model.PairKey, *WriteColumn]
}

// Handle returns the caller-supplied handle.
func (w *WriteOp) Handle() any { return w.handle }

// Kind returns OpWrite.
func (w *WriteOp) Kind() OpKind { return OpWrite }

// From creates the row target. It may be called once.
func (w *WriteOp) From() (*RowRef, error) {
	if err := w.prepMutation(); err != nil {
		return nil, err
	}
	if err := exactlyOnce("from", w.row != nil); err != nil {
		return nil, err
	}
	w.row = newRowRef(&w.base)
	return w.row, nil
}

// With adds a cell to write. A nil handle is replaced by a generated AnonymousHandle.
func (w *WriteOp) With(handle any) (*WriteColumn, error) {
	h, err := columnHandle(handle)
	if err != nil {
		return nil, err
	}
	if err := w.prepMutation(); err != nil {
		return nil, err
	}
	return w.addColumn(h), nil
}

func (w *WriteOp) addColumn(handle any) *WriteColumn {
	col := &WriteColumn{op: w, handle: handle}
	col.base = w.child(col)
	w.columns = append(w.columns, col)
	return col
}

// WriteAllOf adds one column per element of source, as ReadAllOf does for reads.
func WriteAllOf[X any](w *WriteOp, source []X, gen func(X, *WriteColumn) (any, error)) error {
	if gen == nil {
		return illegalArgument("column generator must not be nil")
	}
	if err := w.prepMutation(); err != nil {
		return err
	}
	for _, elem := range source {
		placeholder, _ := columnHandle(nil)
		col := w.addColumn(placeholder)
		handle, err := gen(elem, col)
		if err != nil {
			return err
		}
		if err := col.setHandle(handle); err != nil {
			return err
		}
	}
	return nil
}

// Row returns the row target, or nil if From has not been called.
func (w *WriteOp) Row() *RowRef { return w.row }

// Columns returns the columns in the order they were added.
func (w *WriteOp) Columns() []*WriteColumn {
	return append([]*WriteColumn(nil), w.columns...)
}

// Frozen returns the post-freeze view of the operation.
func (w *WriteOp) Frozen() (*FrozenWrite, error) {
	if err := w.prepPostFreezeOp("Frozen"); err != nil {
		return nil, err
	}
	return &FrozenWrite{op: w}, nil
}

func (w *WriteOp) validate() error {
	if w.row == nil {
		return invalid(w, "write %v requires a row target (from)", w.handle)
	}
	if len(w.columns) == 0 {
		return invalid(w, "write %v requires at least one column (with)", w.handle)
	}
	w.columnAssoc = make(assocIndex[model.PairKey, *WriteColumn])
	for _, c := range w.columns {
		if c.family == nil || c.qualifier == nil {
			continue
		}
		w.columnAssoc.add(c.Pair().Key(), c)
	}
	w.tree.invalidate(w.id)
	return nil
}

func (w *WriteOp) headline() string {
	return "[<<Operation>>:WRITE]"
}

func (w *WriteOp) render(b *strings.Builder, f Format) {
	if f == Structured {
		if w.row != nil {
			writeIndented(b, w.Depth()+1, "to table/row:\n")
			b.WriteString(w.row.Format(f))
		}
		if len(w.columns) > 0 {
			writeIndented(b, w.Depth()+1, "with column(s):\n")
			for _, c := range w.columns {
				b.WriteString(c.Format(f))
			}
		}
		return
	}

	var parts []string
	if w.row != nil {
		parts = append(parts, "to="+w.row.String())
	}
	if len(w.columns) > 0 {
		cols := make([]string, len(w.columns))
		for i, c := range w.columns {
			cols[i] = c.String()
		}
		parts = append(parts, "col=["+strings.Join(cols, ",")+"]")
	}
	b.WriteString("{" + strings.Join(parts, ",") + "}")
}

func (w *WriteOp) hashParts() [][]byte {
	return [][]byte{[]byte("write"), handleBytes(w.handle)}
}

// WriteColumn specifies one cell to write. A nil value deletes the cell.
type WriteColumn struct {
	base
	op        *WriteOp
	handle    any
	family    *model.Family
	qualifier []byte
	value     []byte
	valueSet  bool
	version   *LongValue
}

// Handle returns the column's handle.
func (c *WriteColumn) Handle() any { return c.handle }

func (c *WriteColumn) setHandle(handle any) error {
	h, err := columnHandle(handle)
	if err != nil {
		return err
	}
	if err := c.prepMutation(); err != nil {
		return err
	}
	c.handle = h
	return nil
}

// Fam sets the column family. It may be called once.
func (c *WriteColumn) Fam(f model.Family) error {
	if f.Name() == nil {
		return illegalArgument("family name must not be nil")
	}
	if err := c.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("family", c.family != nil); err != nil {
		return err
	}
	c.family = &f
	return nil
}

// Qual sets the qualifier. It may be called once.
func (c *WriteColumn) Qual(qualifier []byte) error {
	if qualifier == nil {
		return illegalArgument("qualifier must not be nil")
	}
	if err := c.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("qualifier", c.qualifier != nil); err != nil {
		return err
	}
	c.qualifier = c.cfg.CopyStrategy.OnSet(qualifier)
	return nil
}

// Value sets the cell value. A nil value deletes the cell. It may be called once.
func (c *WriteColumn) Value(value []byte) error {
	if err := c.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("value", c.valueSet); err != nil {
		return err
	}
	c.value = c.cfg.CopyStrategy.OnSet(value)
	c.valueSet = true
	return nil
}

// Version creates the timestamp to write the cell at. It may be called once; without it the
// engine assigns the current time.
func (c *WriteColumn) Version() (*LongValue, error) {
	if err := c.prepMutation(); err != nil {
		return nil, err
	}
	if err := exactlyOnce("version", c.version != nil); err != nil {
		return nil, err
	}
	c.version = newLongValue(&c.base, "version")
	return c.version, nil
}

// And returns the owning operation, for continuing a chain.
func (c *WriteColumn) And() *WriteOp { return c.op }

// Family returns the column family model, if set.
func (c *WriteColumn) Family() (model.Family, bool) {
	if c.family == nil {
		return model.Family{}, false
	}
	return *c.family, true
}

// Qualifier returns the qualifier, or nil.
func (c *WriteColumn) Qualifier() []byte {
	return c.cfg.CopyStrategy.OnGet(c.qualifier)
}

// Pair returns the cell coordinate. Family and qualifier must be set.
func (c *WriteColumn) Pair() model.FamilyQualifierPair {
	var fam []byte
	if c.family != nil {
		fam = c.family.Name()
	}
	return model.NewFamilyQualifierPair(fam, c.qualifier)
}

// CellValue returns the value to write; nil means delete.
func (c *WriteColumn) CellValue() []byte {
	return c.cfg.CopyStrategy.OnGet(c.value)
}

// IsDelete reports whether the column deletes its cell.
func (c *WriteColumn) IsDelete() bool {
	return c.valueSet && c.value == nil
}

// Timestamp returns the explicit write timestamp, if set.
func (c *WriteColumn) Timestamp() (int64, bool) {
	if s := spanOf(c.version); s != nil {
		return s.Value(), true
	}
	return 0, false
}

func (c *WriteColumn) validate() error {
	if c.family == nil {
		return invalid(c, "column %v requires a family", c.handle)
	}
	if c.qualifier == nil {
		return invalid(c, "column %v requires a qualifier", c.handle)
	}
	if !c.valueSet {
		return invalid(c, "column %v requires a value", c.handle)
	}
	if c.family.IsClosed() {
		if _, ok := c.family.Qualifier(c.qualifier); !ok {
			return invalid(c, "column %v: qualifier %q is not declared by closed family %q", c.handle, c.qualifier, c.family.Name())
		}
	}
	if s := spanOf(c.version); s != nil && !s.Exact() {
		return invalid(c, "column %v: write version must be a single timestamp, got %s", c.handle, s)
	}
	return nil
}

func (c *WriteColumn) headline() string {
	return fmt.Sprintf("[COL:%v]", c.handle)
}

func (c *WriteColumn) describe() string {
	var fam []byte
	if c.family != nil {
		fam = c.family.Name()
	}
	desc := fmt.Sprintf("fam=%q,qual=%q", fam, c.qualifier)
	switch {
	case !c.valueSet:
	case c.value == nil:
		desc += ",delete"
	default:
		desc += fmt.Sprintf(",value=%d bytes", len(c.value))
	}
	return desc
}

func (c *WriteColumn) render(b *strings.Builder, f Format) {
	if f == Structured {
		writeIndented(b, c.Depth()+1, c.describe()+"\n")
		if c.version != nil {
			b.WriteString(c.version.Format(f))
		}
		return
	}
	b.WriteString("{" + c.describe())
	if c.version != nil {
		b.WriteString(",ver" + c.version.String())
	}
	b.WriteString("}")
}

func (c *WriteColumn) hashParts() [][]byte {
	var fam []byte
	if c.family != nil {
		fam = c.family.Name()
	}
	parts := [][]byte{handleBytes(c.handle), fam, c.qualifier, c.value}
	if c.IsDelete() {
		parts = append(parts, []byte("delete"))
	}
	return parts
}
