package spec

// columnSet is an insertion-ordered set of column specs.
type columnSet[C comparable] struct {
	order []C
	seen  map[C]struct{}
}

func (s *columnSet[C]) add(c C) {
	if s.seen == nil {
		s.seen = make(map[C]struct{})
	}
	if _, ok := s.seen[c]; ok {
		return
	}
	s.seen[c] = struct{}{}
	s.order = append(s.order, c)
}

// items returns a copy of the members in insertion order.
func (s *columnSet[C]) items() []C {
	if s == nil {
		return nil
	}
	return append([]C(nil), s.order...)
}

// assocIndex maps a physical coordinate key to the column specs that requested it.
// It is written only while its owning spec validates and is read-only afterwards, so
// concurrent lookups on a frozen spec need no locking.
type assocIndex[K comparable, C comparable] map[K]*columnSet[C]

func (a assocIndex[K, C]) add(key K, col C) {
	set, ok := a[key]
	if !ok {
		set = &columnSet[C]{}
		a[key] = set
	}
	set.add(col)
}

// get returns the (possibly empty) columns registered under key.
func (a assocIndex[K, C]) get(key K) []C {
	return a[key].items()
}
