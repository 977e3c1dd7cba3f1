// Package kvstore provides an embedded execution engine for lattice operation specs, backed
// by BadgerDB.
//
// Every cell version is a separate key, ordered by table, row, family, qualifier and then
// timestamp, newest first. Reads scan the key ranges their columns address; writes add a
// version per column. Unlike the DynamoDB engine, older versions are retained up to
// Config.MaxVersions.
package kvstore

import (
	"bytes"
	"context"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/internal/cellkey"
	"github.com/jacentio/lattice/spec"
)

// ErrUnsupportedOperation is returned for operations that are neither reads nor writes.
var ErrUnsupportedOperation = errors.New("lattice: unsupported operation")

// maxConflictRetries bounds how often a write transaction is replayed after losing a
// conflict to a concurrent transaction on the same cells.
const maxConflictRetries = 32

// Config holds configuration for the Store.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps all data in memory; nothing is written to disk.
	InMemory bool

	// SyncWrites fsyncs every write transaction.
	SyncWrites bool

	// MaxVersions is the number of versions kept per cell. Older versions are pruned on write.
	// Default: 0 (keep all)
	MaxVersions int

	// MaxParallelOps bounds how many operations of one Execute call run concurrently.
	// Default: 8
	MaxParallelOps int

	// Logger receives engine diagnostics and BadgerDB's own log output.
	// Default: a no-op logger
	Logger *zap.SugaredLogger
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("lattice: path is required for a persistent database")
	}
	if c.MaxVersions < 0 {
		c.MaxVersions = 0
	}
	if c.MaxParallelOps < 1 {
		c.MaxParallelOps = 8
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return nil
}

// badgerLogger adapts zap.SugaredLogger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Store executes frozen operations against an embedded BadgerDB. It implements spec.Engine.
type Store struct {
	db     *badger.DB
	config Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

var _ spec.Engine = (*Store)(nil)

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}

	return &Store{
		db:     db,
		config: cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// OpenInMemory opens an in-memory database with default settings.
func OpenInMemory(logger *zap.SugaredLogger) (*Store, error) {
	return Open(Config{InMemory: true, Logger: logger})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewController creates a controller that executes through this store.
func (s *Store) NewController(cfg spec.Config) *spec.Controller {
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	return spec.NewController(s, cfg)
}

// Execute runs ops concurrently, up to MaxParallelOps at a time. Each operation runs in its
// own transaction. The first failure cancels the remaining operations and is returned.
func (s *Store) Execute(ctx context.Context, ops []spec.Operation) (*spec.ResultSet, error) {
	results := make([]*spec.OpResult, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxParallelOps)
	for i, op := range ops {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.execute(gctx, op)
			if err != nil {
				s.logger.Errorw("operation failed", "kind", op.Kind(), "handle", op.Handle(), "error", err)
				return errors.Wrapf(err, "%s operation %v", op.Kind(), op.Handle())
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs := spec.NewResultSet(ops)
	for _, res := range results {
		rs.Put(res)
	}
	return rs, nil
}

func (s *Store) execute(ctx context.Context, op spec.Operation) (*spec.OpResult, error) {
	switch o := op.(type) {
	case *spec.ReadOp:
		frozen, err := o.Frozen()
		if err != nil {
			return nil, err
		}
		return s.Read(frozen)
	case *spec.WriteOp:
		frozen, err := o.Frozen()
		if err != nil {
			return nil, err
		}
		return s.Write(ctx, frozen)
	default:
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%T", op)
	}
}

// Read scans the key ranges addressed by the operation's columns and routes the cells found.
func (s *Store) Read(op *spec.FrozenRead) (*spec.OpResult, error) {
	table := []byte(op.Table().Name())
	row := op.RowKey()

	var cells []spec.Cell
	seen := make(map[string]struct{})
	collect := func(key, value []byte) error {
		if _, dup := seen[string(key)]; dup {
			return nil
		}
		seen[string(key)] = struct{}{}
		d, err := cellkey.Decode(key)
		if err != nil {
			return errors.Wrapf(err, "decode key %x", key)
		}
		cells = append(cells, spec.Cell{
			Family:    d.Family,
			Qualifier: d.Qualifier,
			Value:     value,
			Timestamp: d.Timestamp,
		})
		return nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		for _, c := range op.Columns() {
			fam, _ := c.Family()
			var err error
			switch c.Target() {
			case spec.TargetQualifier:
				err = scanPrefix(txn, cellkey.Prefix(table, row, fam.Name(), c.Qualifier()), collect)
			case spec.TargetRange:
				rng, _ := c.Range()
				err = scanRange(txn, table, row, fam.Name(), rng.Lower(), rng.Upper(), collect)
			default:
				err = scanPrefix(txn, cellkey.Prefix(table, row, fam.Name()), collect)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortCells(cells)
	return op.Assimilate(cells), nil
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "read value")
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}

// scanRange visits the cells of one family whose qualifier lies in the inclusive range
// [lower, upper]. A nil bound is unbounded.
func scanRange(txn *badger.Txn, table, row, family, lower, upper []byte, fn func(key, value []byte) error) error {
	prefix := cellkey.Prefix(table, row, family)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(cellkey.QualifierSeek(table, row, family, lower)); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		d, err := cellkey.Decode(key)
		if err != nil {
			return errors.Wrapf(err, "decode key %x", key)
		}
		if upper != nil && bytes.Compare(d.Qualifier, upper) > 0 {
			return nil
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "read value")
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Write stores one version per column in a single transaction. A nil value removes every
// version of the cell. Columns without an explicit version are stamped with the current
// time in milliseconds.
func (s *Store) Write(ctx context.Context, op *spec.FrozenWrite) (*spec.OpResult, error) {
	table := []byte(op.Table().Name())
	row := op.RowKey()
	now := s.now().UnixMilli()

	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, c := range op.Columns() {
			fam, _ := c.Family()
			cellPrefix := cellkey.Prefix(table, row, fam.Name(), c.Qualifier())
			if c.IsDelete() {
				if err := deleteVersions(txn, cellPrefix, 0); err != nil {
					return err
				}
				continue
			}
			ts, ok := c.Timestamp()
			if !ok {
				ts = now
			}
			key := cellkey.Encode(table, row, fam.Name(), c.Qualifier(), ts)
			if err := txn.Set(key, c.CellValue()); err != nil {
				return errors.Wrap(err, "set cell")
			}
			if s.config.MaxVersions > 0 {
				if err := deleteVersions(txn, cellPrefix, s.config.MaxVersions); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec.NewWriteResult(op.Handle()), nil
}

// update runs fn in a read-write transaction and commits it. Pruning reads the versions it
// deletes, so concurrent writes to one cell can conflict; the loser is replayed in a fresh
// transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "context cancelled")
		}

		err := s.commit(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= maxConflictRetries {
			return errors.Wrapf(err, "gave up after %d attempts", attempt)
		}
		s.logger.Debugw("write transaction conflict, retrying", "attempt", attempt)
	}
}

func (s *Store) commit(fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// deleteVersions removes all but the newest keep versions under a cell prefix.
func deleteVersions(txn *badger.Txn, cellPrefix []byte, keep int) error {
	var stale [][]byte
	it := txn.NewIterator(badger.IteratorOptions{Prefix: cellPrefix})
	n := 0
	for it.Seek(cellPrefix); it.ValidForPrefix(cellPrefix); it.Next() {
		n++
		if n > keep {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, k := range stale {
		if err := txn.Delete(k); err != nil {
			return errors.Wrap(err, "delete cell version")
		}
	}
	return nil
}

// sortCells orders cells by family and qualifier, newest first within a coordinate.
func sortCells(cells []spec.Cell) {
	slices.SortStableFunc(cells, func(a, b spec.Cell) int {
		if c := bytes.Compare(a.Family, b.Family); c != 0 {
			return c
		}
		if c := bytes.Compare(a.Qualifier, b.Qualifier); c != 0 {
			return c
		}
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
}
