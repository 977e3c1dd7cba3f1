package model

import (
	"bytes"
	"fmt"
)

// Qualifier describes a column qualifier declared on a family.
type Qualifier struct {
	name       []byte
	versioning Versioning
}

// NewQualifier creates a qualifier model.
func NewQualifier(name []byte) Qualifier {
	return Qualifier{name: clone(name)}
}

// WithVersioning returns a copy of q using the given versioning model.
func (q Qualifier) WithVersioning(v Versioning) Qualifier {
	q.versioning = v
	return q
}

// Name returns the qualifier bytes. Callers must not modify the result.
func (q Qualifier) Name() []byte { return q.name }

// Versioning returns the declared versioning model.
func (q Qualifier) Versioning() Versioning { return q.versioning }

func (q Qualifier) String() string {
	return fmt.Sprintf("[QUAL]%q", q.name)
}

// Family describes a column family.
type Family struct {
	name       []byte
	versioning Versioning
	quals      []Qualifier
	closed     bool
}

// NewFamily creates a family model with no declared qualifiers.
func NewFamily(name []byte) Family {
	return Family{name: clone(name)}
}

// WithVersioning returns a copy of f using the given versioning model.
func (f Family) WithVersioning(v Versioning) Family {
	f.versioning = v
	return f
}

// WithQualifiers returns a copy of f declaring the given qualifiers in addition to any
// already declared.
func (f Family) WithQualifiers(quals ...Qualifier) Family {
	merged := make([]Qualifier, 0, len(f.quals)+len(quals))
	merged = append(merged, f.quals...)
	merged = append(merged, quals...)
	f.quals = merged
	return f
}

// Closed returns a copy of f whose qualifier set is closed: only declared qualifiers may be
// addressed.
func (f Family) Closed() Family {
	f.closed = true
	return f
}

// Name returns the family bytes. Callers must not modify the result.
func (f Family) Name() []byte { return f.name }

// Key returns the comparable identity of the family.
func (f Family) Key() FamilyKey { return FamilyKey(f.name) }

// Versioning returns the declared versioning model.
func (f Family) Versioning() Versioning { return f.versioning }

// IsClosed reports whether the qualifier set is closed.
func (f Family) IsClosed() bool { return f.closed }

// Qualifiers returns the declared qualifiers in declaration order.
func (f Family) Qualifiers() []Qualifier {
	out := make([]Qualifier, len(f.quals))
	copy(out, f.quals)
	return out
}

// Qualifier returns the declared qualifier with the given name.
func (f Family) Qualifier(name []byte) (Qualifier, bool) {
	for _, q := range f.quals {
		if bytes.Equal(q.name, name) {
			return q, true
		}
	}
	return Qualifier{}, false
}

func (f Family) String() string {
	return fmt.Sprintf("[FAM]%q", f.name)
}

// Table describes a logical table. The physical name is derived by a naming strategy.
type Table struct {
	name     string
	families []Family
}

// NewTable creates a table model.
func NewTable(name string, families ...Family) Table {
	fams := make([]Family, len(families))
	copy(fams, families)
	return Table{name: name, families: fams}
}

// Name returns the logical table name.
func (t Table) Name() string { return t.name }

// Families returns the declared families in declaration order.
func (t Table) Families() []Family {
	out := make([]Family, len(t.families))
	copy(out, t.families)
	return out
}

// Family returns the declared family with the given name.
func (t Table) Family(name []byte) (Family, bool) {
	for _, f := range t.families {
		if bytes.Equal(f.name, name) {
			return f, true
		}
	}
	return Family{}, false
}

func (t Table) String() string {
	return "[TBL]" + t.name
}
