package spec

import (
	"fmt"
	"strings"
)

// Span is the resolved value of a LongValue: a single point when Lower == Upper, otherwise
// an inclusive interval.
type Span struct {
	Lower int64
	Upper int64
}

// Exact reports whether the span is a single value.
func (s Span) Exact() bool { return s.Lower == s.Upper }

// Value returns the single value of an exact span.
func (s Span) Value() int64 { return s.Lower }

// Contains reports whether v lies within the span.
func (s Span) Contains(v int64) bool { return v >= s.Lower && v <= s.Upper }

func (s Span) String() string {
	if s.Exact() {
		return fmt.Sprintf("%d", s.Lower)
	}
	return fmt.Sprintf("[%d..%d]", s.Lower, s.Upper)
}

// LongValue is a timestamp or version specification attached to an operation or column.
type LongValue struct {
	base
	kind string
	span *Span
}

func newLongValue(parent *base, kind string) *LongValue {
	v := &LongValue{kind: kind}
	v.base = parent.child(v)
	return v
}

// Exactly sets a single value.
func (v *LongValue) Exactly(value int64) error {
	return v.set(Span{Lower: value, Upper: value})
}

// Between sets an inclusive interval.
func (v *LongValue) Between(lower, upper int64) error {
	if lower > upper {
		return illegalArgument("%s lower bound %d exceeds upper bound %d", v.kind, lower, upper)
	}
	return v.set(Span{Lower: lower, Upper: upper})
}

func (v *LongValue) set(s Span) error {
	if err := v.prepMutation(); err != nil {
		return err
	}
	if err := exactlyOnce(v.kind, v.span != nil); err != nil {
		return err
	}
	v.span = &s
	return nil
}

// Span returns the configured value, if any.
func (v *LongValue) Span() (Span, bool) {
	if v.span == nil {
		return Span{}, false
	}
	return *v.span, true
}

func (v *LongValue) validate() error {
	if v.span == nil {
		return invalid(v, "%s requires a value", v.kind)
	}
	return nil
}

func (v *LongValue) headline() string {
	return "[" + v.kind + "]"
}

func (v *LongValue) render(b *strings.Builder, f Format) {
	if v.span == nil {
		return
	}
	if f == Structured {
		writeIndented(b, v.Depth()+1, v.span.String())
		b.WriteString("\n")
		return
	}
	b.WriteString("=" + v.span.String())
}

func (v *LongValue) hashParts() [][]byte {
	if v.span == nil {
		return [][]byte{[]byte(v.kind)}
	}
	return [][]byte{[]byte(v.kind), intBytes(v.span.Lower), intBytes(v.span.Upper)}
}

// spanOf returns the span of v, tolerating a nil LongValue.
func spanOf(v *LongValue) *Span {
	if v == nil || v.span == nil {
		return nil
	}
	s := *v.span
	return &s
}

// sameSpan compares optional spans by value.
func sameSpan(a, b *Span) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
