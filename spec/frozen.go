package spec

import (
	"github.com/jacentio/lattice/model"
)

// FrozenRead is the post-freeze view of a ReadOp. It exposes the resolved versioning and
// the association indices used to route store cells back to the columns that requested
// them. All methods are safe for concurrent use.
type FrozenRead struct {
	op *ReadOp
}

// Op returns the underlying operation.
func (f *FrozenRead) Op() *ReadOp { return f.op }

// Handle returns the operation's handle.
func (f *FrozenRead) Handle() any { return f.op.handle }

// Table returns the target table model.
func (f *FrozenRead) Table() model.Table {
	t, _ := f.op.row.TableModel()
	return t
}

// RowKey returns the target row key.
func (f *FrozenRead) RowKey() []byte { return f.op.row.RowKey() }

// Columns returns the columns in the order they were added.
func (f *FrozenRead) Columns() []*ReadColumn { return f.op.Columns() }

// AtTime returns the operation's timestamp constraint, if any.
func (f *FrozenRead) AtTime() (Span, bool) {
	if s := spanOf(f.op.atTime); s != nil {
		return *s, true
	}
	return Span{}, false
}

// MaxEntriesPerFamily returns the AtMost limit, if set.
func (f *FrozenRead) MaxEntriesPerFamily() (int, bool) { return f.op.MaxEntriesPerFamily() }

// CommonVersioning returns the versioning model shared by the columns.
// When no column is timestamp-based this is the first column's model.
func (f *FrozenRead) CommonVersioning() model.Versioning { return f.op.commonVersioning }

// CommonVersion returns the version shared by the columns, if any.
func (f *FrozenRead) CommonVersion() (Span, bool) {
	if f.op.commonVersion == nil {
		return Span{}, false
	}
	return *f.op.commonVersion, true
}

// ColumnAssoc returns the columns that requested exactly the given pair.
func (f *FrozenRead) ColumnAssoc(pair model.FamilyQualifierPair) []*ReadColumn {
	return f.op.columnAssoc.get(pair.Key())
}

// FamilyAssoc returns the columns that requested the whole family.
func (f *FrozenRead) FamilyAssoc(family []byte) []*ReadColumn {
	return f.op.familyAssoc.get(model.FamilyKey(family))
}

// ColumnRangeAssoc returns the columns whose qualifier range, within the pair's family,
// contains the pair's qualifier. Only ranges registered for that family are scanned.
func (f *FrozenRead) ColumnRangeAssoc(pair model.FamilyQualifierPair) []*ReadColumn {
	var out columnSet[*ReadColumn]
	for _, rng := range f.op.rangesByFamily[pair.FamilyKey()] {
		if !rng.Contains(pair.Qualifier()) {
			continue
		}
		for _, c := range f.op.rangeAssoc.get(rng.Key()) {
			out.add(c)
		}
	}
	return out.items()
}

// Route returns every column that requested the given coordinate, by exact pair, whole
// family or containing range, without duplicates.
func (f *FrozenRead) Route(pair model.FamilyQualifierPair) []*ReadColumn {
	var out columnSet[*ReadColumn]
	for _, c := range f.ColumnAssoc(pair) {
		out.add(c)
	}
	for _, c := range f.FamilyAssoc(pair.Family()) {
		out.add(c)
	}
	for _, c := range f.ColumnRangeAssoc(pair) {
		out.add(c)
	}
	return out.items()
}

// Assimilate routes raw cells to the columns that requested them and builds the
// operation's result. Cells for one coordinate must arrive newest first. Cells outside the
// operation's time constraint or a column's version constraint are dropped; columns using
// latest versioning keep only the newest cell per coordinate; AtMost caps cells per family.
func (f *FrozenRead) Assimilate(cells []Cell) *OpResult {
	res := newOpResult(f.op.handle, OpRead)
	for _, c := range f.op.columns {
		res.declare(c.handle)
	}

	atTime, hasAtTime := f.AtTime()
	maxEntries, hasMax := f.MaxEntriesPerFamily()
	perFamily := make(map[model.FamilyKey]int)
	type colPair struct {
		col  *ReadColumn
		pair model.PairKey
	}
	seenLatest := make(map[colPair]struct{})

	for _, cell := range cells {
		if hasAtTime && !atTime.Contains(cell.Timestamp) {
			continue
		}
		pair := cell.Pair()
		if hasMax && perFamily[pair.FamilyKey()] >= maxEntries {
			continue
		}
		accepted := false
		for _, col := range f.Route(pair) {
			if span, ok := col.VersionSpan(); ok && !span.Contains(cell.Timestamp) {
				continue
			}
			if col.ResolvedVersioning() == model.VersioningLatest {
				k := colPair{col: col, pair: pair.Key()}
				if _, dup := seenLatest[k]; dup {
					continue
				}
				seenLatest[k] = struct{}{}
			}
			res.add(col.handle, cell)
			accepted = true
		}
		if accepted {
			perFamily[pair.FamilyKey()]++
		}
	}
	return res
}

// FrozenWrite is the post-freeze view of a WriteOp.
type FrozenWrite struct {
	op *WriteOp
}

// Op returns the underlying operation.
func (f *FrozenWrite) Op() *WriteOp { return f.op }

// Handle returns the operation's handle.
func (f *FrozenWrite) Handle() any { return f.op.handle }

// Table returns the target table model.
func (f *FrozenWrite) Table() model.Table {
	t, _ := f.op.row.TableModel()
	return t
}

// RowKey returns the target row key.
func (f *FrozenWrite) RowKey() []byte { return f.op.row.RowKey() }

// Columns returns the columns in the order they were added.
func (f *FrozenWrite) Columns() []*WriteColumn { return f.op.Columns() }

// ColumnAssoc returns the write columns targeting the given pair.
func (f *FrozenWrite) ColumnAssoc(pair model.FamilyQualifierPair) []*WriteColumn {
	return f.op.columnAssoc.get(pair.Key())
}
