// Package cellkey provides key and attribute-name encodings for storing wide-column cells in
// key-value and document stores.
package cellkey

import (
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
	"strings"

	"github.com/cockroachdb/errors"
)

// AttrPrefix marks document attributes that hold cells.
const AttrPrefix = "c."

// ErrMalformed is returned when a key cannot be decoded.
var ErrMalformed = errors.New("cellkey: malformed key")

// Hash computes a deterministic 64-bit hash over the given parts.
// Part boundaries are significant: Hash([]byte("ab"), nil) != Hash([]byte("a"), []byte("b")).
func Hash(parts ...[]byte) uint64 {
	h := fnv.New64a()
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	return h.Sum64()
}

// AttrName encodes a family/qualifier coordinate as a document attribute name.
// Arbitrary bytes are hex-encoded so the name is safe for DynamoDB expressions.
func AttrName(family, qualifier []byte) string {
	return AttrPrefix + hex.EncodeToString(family) + "." + hex.EncodeToString(qualifier)
}

// ParseAttrName reverses AttrName. ok is false for attributes that are not cells.
func ParseAttrName(name string) (family, qualifier []byte, ok bool) {
	rest, found := strings.CutPrefix(name, AttrPrefix)
	if !found {
		return nil, nil, false
	}
	famHex, qualHex, found := strings.Cut(rest, ".")
	if !found {
		return nil, nil, false
	}
	family, err := hex.DecodeString(famHex)
	if err != nil {
		return nil, nil, false
	}
	qualifier, err = hex.DecodeString(qualHex)
	if err != nil {
		return nil, nil, false
	}
	return family, qualifier, true
}

// Component escaping keeps byte-wise ordering of each component intact:
// 0x00 is written as 0x00 0xFF and every component ends with 0x00 0x01.
const (
	escByte  = 0x00
	escZero  = 0xFF
	escTerm  = 0x01
	tsLength = 8
)

// appendComponent appends one order-preserving escaped component to dst.
func appendComponent(dst, c []byte) []byte {
	for _, b := range c {
		if b == escByte {
			dst = append(dst, escByte, escZero)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, escByte, escTerm)
}

// Prefix encodes leading components only, for prefix scans.
func Prefix(components ...[]byte) []byte {
	var out []byte
	for _, c := range components {
		out = appendComponent(out, c)
	}
	return out
}

// QualifierSeek encodes table, row and family followed by the raw escaped qualifier bytes
// without a terminator, so that seeking to it lands on the first qualifier >= lower.
func QualifierSeek(table, row, family, lower []byte) []byte {
	out := Prefix(table, row, family)
	for _, b := range lower {
		if b == escByte {
			out = append(out, escByte, escZero)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Encode builds the full key for one cell version. Newer timestamps sort first.
func Encode(table, row, family, qualifier []byte, ts int64) []byte {
	out := Prefix(table, row, family, qualifier)
	var tsBuf [tsLength]byte
	binary.BigEndian.PutUint64(tsBuf[:], ^uint64(ts))
	return append(out, tsBuf[:]...)
}

// Decoded is the parsed form of a key produced by Encode.
type Decoded struct {
	Table     []byte
	Row       []byte
	Family    []byte
	Qualifier []byte
	Timestamp int64
}

// Decode parses a key produced by Encode.
func Decode(key []byte) (Decoded, error) {
	var d Decoded
	var parts [4][]byte
	rest := key
	for i := range parts {
		c, n, err := readComponent(rest)
		if err != nil {
			return Decoded{}, err
		}
		parts[i] = c
		rest = rest[n:]
	}
	if len(rest) != tsLength {
		return Decoded{}, ErrMalformed
	}
	d.Table, d.Row, d.Family, d.Qualifier = parts[0], parts[1], parts[2], parts[3]
	d.Timestamp = int64(^binary.BigEndian.Uint64(rest))
	return d, nil
}

// readComponent reads one escaped component and returns it with the number of bytes consumed.
func readComponent(b []byte) ([]byte, int, error) {
	out := []byte{}
	for i := 0; i < len(b); i++ {
		if b[i] != escByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, 0, ErrMalformed
		}
		switch b[i+1] {
		case escZero:
			out = append(out, escByte)
			i++
		case escTerm:
			return out, i + 2, nil
		default:
			return nil, 0, ErrMalformed
		}
	}
	return nil, 0, ErrMalformed
}
