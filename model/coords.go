package model

import (
	"bytes"
	"fmt"

	"github.com/jacentio/lattice/internal/cellkey"
)

// PairKey is the comparable identity of a FamilyQualifierPair.
type PairKey struct {
	family    string
	qualifier string
}

// FamilyQualifierPair is an immutable physical column coordinate.
// Description and Optional are metadata and take no part in equality or hashing.
type FamilyQualifierPair struct {
	family      []byte
	qualifier   []byte
	description string
	optional    bool
}

// NewFamilyQualifierPair copies family and qualifier into a new pair.
func NewFamilyQualifierPair(family, qualifier []byte) FamilyQualifierPair {
	return FamilyQualifierPair{
		family:    clone(family),
		qualifier: clone(qualifier),
	}
}

// Described returns a copy of p carrying the given description.
func (p FamilyQualifierPair) Described(description string) FamilyQualifierPair {
	p.description = description
	return p
}

// AsOptional returns a copy of p flagged optional.
func (p FamilyQualifierPair) AsOptional() FamilyQualifierPair {
	p.optional = true
	return p
}

// Family returns the family bytes. Callers must not modify the result.
func (p FamilyQualifierPair) Family() []byte { return p.family }

// Qualifier returns the qualifier bytes. Callers must not modify the result.
func (p FamilyQualifierPair) Qualifier() []byte { return p.qualifier }

// Description returns the optional description.
func (p FamilyQualifierPair) Description() string { return p.description }

// Optional reports whether the coordinate is optional.
func (p FamilyQualifierPair) Optional() bool { return p.optional }

// Key returns the comparable identity of p for use as a map key.
func (p FamilyQualifierPair) Key() PairKey {
	return PairKey{family: string(p.family), qualifier: string(p.qualifier)}
}

// FamilyKey returns the comparable identity of the pair's family.
func (p FamilyQualifierPair) FamilyKey() FamilyKey {
	return FamilyKey(p.family)
}

// Equal compares family and qualifier bytes only.
func (p FamilyQualifierPair) Equal(o FamilyQualifierPair) bool {
	return bytes.Equal(p.family, o.family) && bytes.Equal(p.qualifier, o.qualifier)
}

// Hash is consistent with Equal.
func (p FamilyQualifierPair) Hash() uint64 {
	return cellkey.Hash(p.family, p.qualifier)
}

func (p FamilyQualifierPair) String() string {
	req := "REQ"
	if p.optional {
		req = "OPT"
	}
	if p.description != "" {
		return fmt.Sprintf("FamilyQualifierPair(family=%q,qual=%q,description=%q::%s)", p.family, p.qualifier, p.description, req)
	}
	return fmt.Sprintf("FamilyQualifierPair(family=%q,qual=%q::%s)", p.family, p.qualifier, req)
}

// FamilyKey is the comparable identity of a column family.
type FamilyKey string

// RangeKey is the comparable identity of a ColumnRange.
type RangeKey struct {
	family string
	lower  string
	upper  string
	hasLo  bool
	hasHi  bool
}

// ColumnRange is an immutable interval of qualifiers within one family.
// Both bounds are inclusive; a nil bound is unbounded on that side.
type ColumnRange struct {
	family []byte
	lower  []byte
	upper  []byte
}

// NewColumnRange copies its arguments into a new range.
func NewColumnRange(family, lower, upper []byte) ColumnRange {
	return ColumnRange{
		family: clone(family),
		lower:  clone(lower),
		upper:  clone(upper),
	}
}

// Family returns the family bytes. Callers must not modify the result.
func (r ColumnRange) Family() []byte { return r.family }

// Lower returns the inclusive lower bound, or nil if unbounded.
func (r ColumnRange) Lower() []byte { return r.lower }

// Upper returns the inclusive upper bound, or nil if unbounded.
func (r ColumnRange) Upper() []byte { return r.upper }

// FamilyKey returns the comparable identity of the range's family.
func (r ColumnRange) FamilyKey() FamilyKey { return FamilyKey(r.family) }

// Key returns the comparable identity of r for use as a map key.
func (r ColumnRange) Key() RangeKey {
	return RangeKey{
		family: string(r.family),
		lower:  string(r.lower),
		upper:  string(r.upper),
		hasLo:  r.lower != nil,
		hasHi:  r.upper != nil,
	}
}

// Contains reports whether qualifier lies within the range.
func (r ColumnRange) Contains(qualifier []byte) bool {
	if r.lower != nil && bytes.Compare(qualifier, r.lower) < 0 {
		return false
	}
	if r.upper != nil && bytes.Compare(qualifier, r.upper) > 0 {
		return false
	}
	return true
}

// Valid reports whether the lower bound does not exceed the upper bound.
func (r ColumnRange) Valid() bool {
	return r.lower == nil || r.upper == nil || bytes.Compare(r.lower, r.upper) <= 0
}

func (r ColumnRange) String() string {
	return fmt.Sprintf("ColumnRange(family=%q,[%q..%q])", r.family, r.lower, r.upper)
}
