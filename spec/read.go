package spec

import (
	"fmt"
	"strings"

	"github.com/jacentio/lattice/model"
)

// ReadOp specifies a read of one row. Build it through Controller.Read, then freeze.
type ReadOp struct {
	base
	handle     any
	row        *RowRef
	atTime     *LongValue
	maxEntries *int
	columns    []*ReadColumn

	// Populated by validate.
	commonVersioning model.Versioning
	commonVersion    *Span
	columnAssoc      assocIndex[model.PairKey, *ReadColumn]
	familyAssoc      assocIndex[model.FamilyKey, *ReadColumn]
	rangeAssoc       assocIndex[model.RangeKey, *ReadColumn]
	rangesByFamily   map[model.FamilyKey][]model.ColumnRange
}

// Handle returns the caller-supplied handle.
func (r *ReadOp) Handle() any { return r.handle }

// Kind returns OpRead.
func (r *ReadOp) Kind() OpKind { return OpRead }

// From creates the row target. It may be called once.
func (r *ReadOp) From() (*RowRef, error) {
	if err := r.prepMutation(); err != nil {
		return nil, err
	}
	if err := exactlyOnce("from", r.row != nil); err != nil {
		return nil, err
	}
	r.row = newRowRef(&r.base)
	return r.row, nil
}

// AtTime creates the timestamp constraint for all cells read. It may be called once.
func (r *ReadOp) AtTime() (*LongValue, error) {
	if err := r.prepMutation(); err != nil {
		return nil, err
	}
	if err := exactlyOnce("atTime", r.atTime != nil); err != nil {
		return nil, err
	}
	r.atTime = newLongValue(&r.base, "atTime")
	return r.atTime, nil
}

// AtMost limits the number of cells returned per family. It may be called once.
func (r *ReadOp) AtMost(maxEntriesPerFamily int) error {
	if maxEntriesPerFamily < 0 {
		return illegalArgument("maximum number of entries per family must be >= 0; specified: %d", maxEntriesPerFamily)
	}
	if err := r.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("atMost", r.maxEntries != nil); err != nil {
		return err
	}
	r.maxEntries = &maxEntriesPerFamily
	return nil
}

// With adds a column to read. A nil handle is replaced by a generated AnonymousHandle.
func (r *ReadOp) With(handle any) (*ReadColumn, error) {
	h, err := columnHandle(handle)
	if err != nil {
		return nil, err
	}
	if err := r.prepMutation(); err != nil {
		return nil, err
	}
	return r.addColumn(h), nil
}

func (r *ReadOp) addColumn(handle any) *ReadColumn {
	col := &ReadColumn{op: r, handle: handle}
	col.base = r.child(col)
	r.columns = append(r.columns, col)
	return col
}

// ReadAllOf adds one column per element of source. gen configures the column and returns
// its handle; a nil handle is replaced by a generated AnonymousHandle. The first error
// returned by gen stops the loop; columns already added remain.
func ReadAllOf[X any](r *ReadOp, source []X, gen func(X, *ReadColumn) (any, error)) error {
	if gen == nil {
		return illegalArgument("column generator must not be nil")
	}
	if err := r.prepMutation(); err != nil {
		return err
	}
	for _, elem := range source {
		placeholder, _ := columnHandle(nil)
		col := r.addColumn(placeholder)
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
func (r *ReadOp) Row() *RowRef { return r.row }

// Time returns the timestamp constraint, or nil.
func (r *ReadOp) Time() *LongValue { return r.atTime }

// MaxEntriesPerFamily returns the AtMost limit, if set.
func (r *ReadOp) MaxEntriesPerFamily() (int, bool) {
	if r.maxEntries == nil {
		return 0, false
	}
	return *r.maxEntries, true
}

// Columns returns the columns in the order they were added.
func (r *ReadOp) Columns() []*ReadColumn {
	return append([]*ReadColumn(nil), r.columns...)
}

// Frozen returns the post-freeze view of the operation.
func (r *ReadOp) Frozen() (*FrozenRead, error) {
	if err := r.prepPostFreezeOp("Frozen"); err != nil {
		return nil, err
	}
	return &FrozenRead{op: r}, nil
}

func (r *ReadOp) validate() error {
	if r.row == nil {
		return invalid(r, "read %v requires a row target (from)", r.handle)
	}
	if len(r.columns) == 0 {
		return invalid(r, "read %v requires at least one column (with)", r.handle)
	}
	if err := r.reconcileVersioning(); err != nil {
		return err
	}
	r.buildAssociations()
	r.tree.invalidate(r.id)
	return nil
}

// reconcileVersioning enforces that when any column uses timestamp-based versioning, all
// columns share one versioning configuration and version value, because a single read
// carries a single time constraint.
func (r *ReadOp) reconcileVersioning() error {
	var cols []*ReadColumn
	for _, s := range r.subordinates() {
		if c, ok := s.(*ReadColumn); ok {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil
	}

	refConfig := cols[0].ResolvedVersioning()
	refVersion := spanOf(cols[0].version)
	for _, c := range cols[1:] {
		curConfig := c.ResolvedVersioning()
		curVersion := spanOf(c.version)
		if !refConfig.IsTimestampBased() && !curConfig.IsTimestampBased() {
			continue
		}
		if refConfig != curConfig || !sameSpan(refVersion, curVersion) {
			return invalid(r,
				"read %v: if multiple columns are specified and any uses timestamp-based versioning, all columns must specify an identical versioning configuration and version; "+
					"first-column={config:%s,version:%s}, column %v={config:%s,version:%s}",
				r.handle, refConfig, fmtSpan(refVersion), c.handle, curConfig, fmtSpan(curVersion))
		}
	}
	r.commonVersioning = refConfig
	r.commonVersion = refVersion
	return nil
}

func (r *ReadOp) buildAssociations() {
	r.columnAssoc = make(assocIndex[model.PairKey, *ReadColumn])
	r.familyAssoc = make(assocIndex[model.FamilyKey, *ReadColumn])
	r.rangeAssoc = make(assocIndex[model.RangeKey, *ReadColumn])
	r.rangesByFamily = make(map[model.FamilyKey][]model.ColumnRange)

	for _, c := range r.columns {
		if c.family == nil {
			continue
		}
		switch c.Target() {
		case TargetQualifier:
			r.columnAssoc.add(model.NewFamilyQualifierPair(c.family.Name(), c.qualifier).Key(), c)
		case TargetRange:
			rng := c.columnRange()
			if _, seen := r.rangeAssoc[rng.Key()]; !seen {
				r.rangesByFamily[rng.FamilyKey()] = append(r.rangesByFamily[rng.FamilyKey()], rng)
			}
			r.rangeAssoc.add(rng.Key(), c)
		default:
			r.familyAssoc.add(c.family.Key(), c)
		}
	}
}

func (r *ReadOp) headline() string {
	return "[<<Operation>>:READ]"
}

func (r *ReadOp) render(b *strings.Builder, f Format) {
	if f == Structured {
		if r.row != nil {
			writeIndented(b, r.Depth()+1, "from table/row:\n")
			b.WriteString(r.row.Format(f))
		}
		if r.atTime != nil {
			writeIndented(b, r.Depth()+1, "at (timestamp):\n")
			b.WriteString(r.atTime.Format(f))
		}
		if r.maxEntries != nil {
			writeIndented(b, r.Depth()+1, fmt.Sprintf("at most %d per family\n", *r.maxEntries))
		}
		if len(r.columns) > 0 {
			writeIndented(b, r.Depth()+1, "with column(s):\n")
			for _, c := range r.columns {
				b.WriteString(c.Format(f))
			}
		}
		return
	}

	var parts []string
	if r.row != nil {
		parts = append(parts, "from="+r.row.String())
	}
	if r.atTime != nil {
		parts = append(parts, "@ts="+r.atTime.String())
	}
	if r.maxEntries != nil {
		parts = append(parts, fmt.Sprintf("max=%d", *r.maxEntries))
	}
	if len(r.columns) > 0 {
		cols := make([]string, len(r.columns))
		for i, c := range r.columns {
			cols[i] = c.String()
		}
		parts = append(parts, "col=["+strings.Join(cols, ",")+"]")
	}
	b.WriteString("{" + strings.Join(parts, ",") + "}")
}

func (r *ReadOp) hashParts() [][]byte {
	parts := [][]byte{[]byte("read"), handleBytes(r.handle)}
	if r.maxEntries != nil {
		parts = append(parts, intBytes(int64(*r.maxEntries)))
	}
	return parts
}

// TargetKind says what a read column addresses.
type TargetKind int

const (
	// TargetFamily reads every qualifier of a family.
	TargetFamily TargetKind = iota
	// TargetQualifier reads a single qualifier.
	TargetQualifier
	// TargetRange reads a range of qualifiers.
	TargetRange
)

func (k TargetKind) String() string {
	switch k {
	case TargetFamily:
		return "FAMILY"
	case TargetQualifier:
		return "QUALIFIER"
	case TargetRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

// ReadColumn specifies one column, whole family, or qualifier range to read.
type ReadColumn struct {
	base
	op         *ReadOp
	handle     any
	family     *model.Family
	qualifier  []byte
	hasRange   bool
	lower      []byte
	upper      []byte
	versioning model.Versioning
	version    *LongValue
	optional   bool
}

// Handle returns the column's handle.
func (c *ReadColumn) Handle() any { return c.handle }

func (c *ReadColumn) setHandle(handle any) error {
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
func (c *ReadColumn) Fam(f model.Family) error {
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

// Qual restricts the column to a single qualifier. It may be called once.
func (c *ReadColumn) Qual(qualifier []byte) error {
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

// QualRange restricts the column to the inclusive qualifier range [lower, upper].
// A nil bound is unbounded. It may be called once.
func (c *ReadColumn) QualRange(lower, upper []byte) error {
	if !model.NewColumnRange(nil, lower, upper).Valid() {
		return illegalArgument("qualifier range lower bound %q exceeds upper bound %q", lower, upper)
	}
	if err := c.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("qualifier range", c.hasRange); err != nil {
		return err
	}
	c.hasRange = true
	c.lower = c.cfg.CopyStrategy.OnSet(lower)
	c.upper = c.cfg.CopyStrategy.OnSet(upper)
	return nil
}

// VersionedBy overrides the versioning model derived from the family and qualifier models.
func (c *ReadColumn) VersionedBy(v model.Versioning) error {
	if err := c.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce("versioning", c.versioning != model.VersioningUnspecified); err != nil {
		return err
	}
	c.versioning = v
	return nil
}

// Version creates the version constraint for this column. It may be called once.
func (c *ReadColumn) Version() (*LongValue, error) {
	if err := c.prepMutation(); err != nil {
		return nil, err
	}
	if err := exactlyOnce("version", c.version != nil); err != nil {
		return nil, err
	}
	c.version = newLongValue(&c.base, "version")
	return c.version, nil
}

// Optional marks the column as not required to be present in results.
func (c *ReadColumn) Optional() error {
	if err := c.prepMutation(); err != nil {
		return err
	}
	c.optional = true
	return nil
}

// And returns the owning operation, for continuing a chain.
func (c *ReadColumn) And() *ReadOp { return c.op }

// Family returns the column family model, if set.
func (c *ReadColumn) Family() (model.Family, bool) {
	if c.family == nil {
		return model.Family{}, false
	}
	return *c.family, true
}

// Qualifier returns the single qualifier, or nil.
func (c *ReadColumn) Qualifier() []byte {
	return c.cfg.CopyStrategy.OnGet(c.qualifier)
}

// Range returns the qualifier range, if the column targets one.
func (c *ReadColumn) Range() (model.ColumnRange, bool) {
	if !c.hasRange || c.family == nil {
		return model.ColumnRange{}, false
	}
	return c.columnRange(), true
}

func (c *ReadColumn) columnRange() model.ColumnRange {
	return model.NewColumnRange(c.family.Name(), c.lower, c.upper)
}

// Target reports what the column addresses.
func (c *ReadColumn) Target() TargetKind {
	switch {
	case c.qualifier != nil:
		return TargetQualifier
	case c.hasRange:
		return TargetRange
	default:
		return TargetFamily
	}
}

// IsOptional reports whether the column was marked optional.
func (c *ReadColumn) IsOptional() bool { return c.optional }

// VersionSpan returns the column's version constraint, if set.
func (c *ReadColumn) VersionSpan() (Span, bool) {
	if s := spanOf(c.version); s != nil {
		return *s, true
	}
	return Span{}, false
}

// ResolvedVersioning determines the column's versioning model: an explicit VersionedBy
// override, then the qualifier model, then the family model, then timestamp-based if a
// version is given, otherwise latest.
func (c *ReadColumn) ResolvedVersioning() model.Versioning {
	if c.versioning != model.VersioningUnspecified {
		return c.versioning
	}
	if c.family != nil {
		if c.qualifier != nil {
			if q, ok := c.family.Qualifier(c.qualifier); ok && q.Versioning() != model.VersioningUnspecified {
				return q.Versioning()
			}
		}
		if v := c.family.Versioning(); v != model.VersioningUnspecified {
			return v
		}
	}
	if c.version != nil {
		return model.VersioningTimestamp
	}
	return model.VersioningLatest
}

func (c *ReadColumn) validate() error {
	if c.family == nil {
		return invalid(c, "column %v requires a family", c.handle)
	}
	if c.qualifier != nil && c.hasRange {
		return invalid(c, "column %v specifies both a qualifier and a qualifier range", c.handle)
	}
	if c.qualifier != nil && c.family.IsClosed() {
		if _, ok := c.family.Qualifier(c.qualifier); !ok {
			return invalid(c, "column %v: qualifier %q is not declared by closed family %q", c.handle, c.qualifier, c.family.Name())
		}
	}
	return nil
}

func (c *ReadColumn) headline() string {
	return fmt.Sprintf("[COL:%v]", c.handle)
}

func (c *ReadColumn) describe() string {
	var fam []byte
	if c.family != nil {
		fam = c.family.Name()
	}
	desc := fmt.Sprintf("fam=%q", fam)
	switch c.Target() {
	case TargetQualifier:
		desc += fmt.Sprintf(",qual=%q", c.qualifier)
	case TargetRange:
		desc += fmt.Sprintf(",range=[%q..%q]", c.lower, c.upper)
	}
	if c.versioning != model.VersioningUnspecified {
		desc += ",versioning=" + c.versioning.String()
	}
	if c.optional {
		desc += ",optional"
	}
	return desc
}

func (c *ReadColumn) render(b *strings.Builder, f Format) {
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

func (c *ReadColumn) hashParts() [][]byte {
	var fam []byte
	if c.family != nil {
		fam = c.family.Name()
	}
	parts := [][]byte{handleBytes(c.handle), fam, c.qualifier, c.lower, c.upper, intBytes(int64(c.versioning))}
	if c.optional {
		parts = append(parts, []byte("optional"))
	}
	return parts
}

func fmtSpan(s *Span) string {
	if s == nil {
		return "none"
	}
	return s.String()
}
