package model

// Versioning describes how cell versions are identified for a family or qualifier.
type Versioning int

const (
	// VersioningUnspecified defers to the enclosing model.
	VersioningUnspecified Versioning = iota
	// VersioningLatest reads the newest version; no version identifier is supplied.
	VersioningLatest
	// VersioningSequence identifies versions by a store-assigned sequence number.
	VersioningSequence
	// VersioningTimestamp identifies versions by a point in time.
	VersioningTimestamp
)

func (v Versioning) String() string {
	switch v {
	case VersioningUnspecified:
		return "UNSPECIFIED"
	case VersioningLatest:
		return "LATEST"
	case VersioningSequence:
		return "SEQUENCE"
	case VersioningTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// IsTimestampBased reports whether the version identifier is a point in time.
func (v Versioning) IsTimestampBased() bool {
	return v == VersioningTimestamp
}
