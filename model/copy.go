package model

// CopyStrategy controls copying of byte slices passed into or out of specs.
type CopyStrategy int

// The zero value is CopyAlways.
const (
	// CopyAlways copies in both directions.
	CopyAlways CopyStrategy = iota
	// CopyNever shares caller buffers in both directions.
	CopyNever
	// CopyOnGet copies buffers handed back to callers.
	CopyOnGet
	// CopyOnSet copies buffers supplied by callers.
	CopyOnSet
)

// DefaultCopyStrategy is used when no strategy is configured.
const DefaultCopyStrategy = CopyAlways

func (s CopyStrategy) String() string {
	switch s {
	case CopyNever:
		return "NEVER"
	case CopyOnGet:
		return "GET"
	case CopyOnSet:
		return "SET"
	case CopyAlways:
		return "ALWAYS"
	default:
		return "UNKNOWN"
	}
}

// ParseCopyStrategy maps a name as produced by String back to a strategy.
func ParseCopyStrategy(name string) (CopyStrategy, bool) {
	switch name {
	case "NEVER", "never":
		return CopyNever, true
	case "GET", "get":
		return CopyOnGet, true
	case "SET", "set":
		return CopyOnSet, true
	case "ALWAYS", "always":
		return CopyAlways, true
	}
	return DefaultCopyStrategy, false
}

// OnSet returns b or a copy of it, for storing a caller-supplied buffer.
func (s CopyStrategy) OnSet(b []byte) []byte {
	if s == CopyOnSet || s == CopyAlways {
		return clone(b)
	}
	return b
}

// OnGet returns b or a copy of it, for handing an internal buffer to a caller.
func (s CopyStrategy) OnGet(b []byte) []byte {
	if s == CopyOnGet || s == CopyAlways {
		return clone(b)
	}
	return b
}

// clone copies b, preserving nil.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
