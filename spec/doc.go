// Package spec builds, validates and freezes declarative read and write operations against a
// wide-column store.
//
// A [Controller] is the root of a specification tree. Operations are registered under
// caller-chosen handles and configured through a fluent API whose mutators return errors:
//
//	ctl := spec.NewController(engine, spec.DefaultConfig())
//	op, _ := ctl.Read("user")
//	row, _ := op.From()
//	_ = row.Table(users)
//	_ = row.Key([]byte("u-1"))
//	col, _ := op.With("email")
//	_ = col.Fam(profile)
//	_ = col.Qual([]byte("email"))
//	results, err := ctl.Exec(ctx)
//
// # Lifecycle
//
// Every node starts [Fluid] and may be mutated. [Controller.Freeze] (or Exec) validates the
// tree breadth-first and marks each valid node [Frozen]. Frozen nodes reject mutation with
// [ErrIllegalState]; freezing stops at the first [*ValidationError] and nodes already
// frozen stay frozen.
//
// # Post-freeze views
//
// [ReadOp.Frozen] returns a [FrozenRead] that routes store cells back to the columns that
// requested them, by exact coordinate, whole family or qualifier range. Frozen views are
// safe for concurrent use; string and hash caches are filled lazily under a lock.
//
// # Errors
//
//   - [ErrIllegalState] - mutation after freeze, post-freeze call before freeze, setter called twice
//   - [ErrIllegalArgument] - nil, duplicate or non-comparable handle, negative count, nil input
//   - [ErrValidation] - a spec failed validation during freeze
//   - [ErrNoEngine] - Exec on a controller built without an engine
package spec
