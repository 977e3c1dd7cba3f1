// Package model provides the immutable schema and coordinate types used to address cells in a
// wide-column store.
//
// # Schema
//
// A [Table] groups column [Family] models; a family may declare [Qualifier] models and may
// declare its qualifier set closed. Families and qualifiers may carry a [Versioning] model.
//
// # Coordinates
//
// [FamilyQualifierPair] and [ColumnRange] are physical coordinates. They are compared by
// their identifying bytes only, so a pair parsed from a store response (which carries no
// description or optional flag) matches the pair used when the request was built:
//
//	requested := model.NewFamilyQualifierPair([]byte("f"), []byte("q")).Described("name")
//	parsed := model.NewFamilyQualifierPair([]byte("f"), []byte("q"))
//	requested.Key() == parsed.Key() // true
//
// Use Key() when a coordinate is needed as a map key.
//
// # Byte buffers
//
// [CopyStrategy] decides whether byte slices crossing an API boundary are copied.
package model
