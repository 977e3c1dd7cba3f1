// Package store provides a DynamoDB execution engine for lattice operation specs.
//
// Each model table maps to one DynamoDB table with a binary hash key ("rk") holding the row
// key. Each cell of a row is a top-level attribute named after its family and qualifier,
// whose value is a map holding the cell bytes and its timestamp:
//
//	rk            B   "u-1"
//	c.<fam>.<qual> M   {"v": B, "ts": N}
//
// Only the newest version of a cell is kept. Writing a nil value removes the attribute.
//
// # Key Features
//
//   - Implements [spec.Engine]; operations of one Execute call run concurrently
//   - Qualifier-only reads fetch just the requested attributes
//   - Absent tables are created on first use (on-demand billing)
//   - Table naming strategies for sharing an account between deployments
//   - Prometheus metrics per operation kind and outcome
//
// # Configuration
//
// Use [DefaultConfig] and adjust, or load a YAML file with [LoadConfig]:
//
//	cfg, err := store.LoadConfig("lattice.yaml")
//	client, err := store.NewClient(ctx, cfg)
//	s := store.New(client, cfg)
//	ctl := s.NewController()
//
// # Errors
//
//   - [ErrTableNotFound] - table is missing and CreateAbsentTables is off
//   - [ErrUnsupportedOperation] - an operation that is neither a read nor a write
//   - [ErrMalformedItem] - a stored cell attribute could not be decoded
package store
