package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jacentio/lattice/internal/cellkey"
	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/spec"
	"github.com/jacentio/lattice/store"
)

var (
	profile = model.NewFamily([]byte("profile"))
	users   = model.NewTable("users", profile)
)

func newStore(t *testing.T, api store.API, mutate func(*store.Config)) *store.Store {
	cfg := store.DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	if mutate != nil {
		mutate(&cfg)
	}
	return store.New(api, cfg)
}

type cellValue struct {
	qual    string
	value   []byte
	version int64
}

func write(t *testing.T, ctl *spec.Controller, handle any, row string, cells ...cellValue) {
	t.Helper()
	op, err := ctl.Write(handle)
	require.NoError(t, err)
	ref, err := op.From()
	require.NoError(t, err)
	require.NoError(t, ref.Table(users))
	require.NoError(t, ref.Key([]byte(row)))
	for _, c := range cells {
		col, err := op.With(c.qual)
		require.NoError(t, err)
		require.NoError(t, col.Fam(profile))
		require.NoError(t, col.Qual([]byte(c.qual)))
		require.NoError(t, col.Value(c.value))
		if c.version != 0 {
			v, err := col.Version()
			require.NoError(t, err)
			require.NoError(t, v.Exactly(c.version))
		}
	}
}

func read(t *testing.T, ctl *spec.Controller, handle any, row string, quals ...string) *spec.ReadOp {
	t.Helper()
	op, err := ctl.Read(handle)
	require.NoError(t, err)
	ref, err := op.From()
	require.NoError(t, err)
	require.NoError(t, ref.Table(users))
	require.NoError(t, ref.Key([]byte(row)))
	if len(quals) == 0 {
		col, err := op.With("all")
		require.NoError(t, err)
		require.NoError(t, col.Fam(profile))
		return op
	}
	for _, q := range quals {
		col, err := op.With(q)
		require.NoError(t, err)
		require.NoError(t, col.Fam(profile))
		require.NoError(t, col.Qual([]byte(q)))
	}
	return op
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestDefaultConfig(t *testing.T) {
	cfg := store.DefaultConfig()

	assert.Equal(t, "lattice", cfg.ID)
	assert.True(t, aws.ToBool(cfg.CreateAbsentTables))
	assert.Equal(t, model.CopyAlways, cfg.CopyStrategy)
	assert.Equal(t, 8, cfg.MaxParallelOps)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.TableWaitTimeout)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    store.Config
		parallel int
		table    string
	}{
		{"zero config", store.Config{}, 8, "users"},
		{"prefix selects directory naming", store.Config{TablePrefix: "prod."}, 8, "prod.users"},
		{"explicit naming wins", store.Config{TablePrefix: "prod.", NamingStrategy: store.IdentityNaming{}}, 8, "users"},
		{"parallelism clamped high", store.Config{MaxParallelOps: 1000}, 64, "users"},
		{"parallelism clamped low", store.Config{MaxParallelOps: -1}, 8, "users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New(newFakeDynamo(), tt.input)
			assert.Equal(t, tt.parallel, s.Config().MaxParallelOps)
			assert.Equal(t, tt.table, s.TableName("users"))
			assert.Equal(t, "lattice", s.Config().ID)
			assert.True(t, aws.ToBool(s.Config().CreateAbsentTables))
		})
	}
}

func TestNamingStrategies(t *testing.T) {
	assert.Equal(t, "users", store.IdentityNaming{}.TableName("users"))
	assert.Equal(t, "home/users", store.DirectoryPrefixedNaming{Prefix: "home/"}.TableName("users"))
	assert.Equal(t, "users", store.DirectoryPrefixedNaming{}.TableName("users"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: orders
table_prefix: staging-
copy_strategy: NEVER
create_absent_tables: false
table_wait_timeout: 30s
region: eu-west-1
endpoint: http://localhost:8000
max_parallel_ops: 4
`), 0o600))

	cfg, err := store.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.ID)
	assert.Equal(t, "staging-", cfg.TablePrefix)
	assert.Equal(t, model.CopyNever, cfg.CopyStrategy)
	assert.False(t, aws.ToBool(cfg.CreateAbsentTables))
	assert.Equal(t, 30*time.Second, cfg.TableWaitTimeout)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localhost:8000", cfg.Endpoint)
	assert.Equal(t, 4, cfg.MaxParallelOps)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := store.LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("copy_strategy: SOMETIMES\n"), 0o600))
	_, err = store.LoadConfig(bad)
	assert.ErrorContains(t, err, "SOMETIMES")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("id: [unterminated\n"), 0o600))
	_, err = store.LoadConfig(broken)
	assert.Error(t, err)
}

func TestStore_WriteThenRead(t *testing.T) {
	api := newFakeDynamo("users")
	s := newStore(t, api, nil)
	ctx := context.Background()

	ctl := s.NewController()
	write(t, ctl, "save", "u-1",
		cellValue{qual: "email", value: []byte("a@b.c"), version: 1700},
		cellValue{qual: "name", value: []byte("Ada")},
	)
	_, err := ctl.Exec(ctx)
	require.NoError(t, err)

	ctl = s.NewController()
	read(t, ctl, "by-qualifier", "u-1", "email")
	read(t, ctl, "whole-family", "u-1")
	results, err := ctl.Exec(ctx)
	require.NoError(t, err)

	byQual, ok := results.Get("by-qualifier")
	require.True(t, ok)
	email, ok := byQual.Latest("email")
	require.True(t, ok)
	assert.Equal(t, []byte("a@b.c"), email.Value)
	assert.Equal(t, int64(1700), email.Timestamp)

	family, ok := results.Get("whole-family")
	require.True(t, ok)
	cells := family.Cells("all")
	require.Len(t, cells, 2)
	assert.Equal(t, []byte("email"), cells[0].Qualifier)
	assert.Equal(t, []byte("name"), cells[1].Qualifier)
	assert.Positive(t, cells[1].Timestamp)
}

func TestStore_ReadProjection(t *testing.T) {
	api := newFakeDynamo("users")
	s := newStore(t, api, nil)

	ctl := s.NewController()
	read(t, ctl, "q", "u-1", "email", "name")
	_, err := ctl.Exec(context.Background())
	require.NoError(t, err)

	require.Len(t, api.gets, 1)
	in := api.gets[0]
	assert.Equal(t, "#p0, #p1", *in.ProjectionExpression)
	assert.Equal(t, cellkey.AttrName([]byte("profile"), []byte("email")), in.ExpressionAttributeNames["#p0"])
	assert.True(t, *in.ConsistentRead)

	ctl = s.NewController()
	read(t, ctl, "f", "u-1")
	_, err = ctl.Exec(context.Background())
	require.NoError(t, err)
	require.Len(t, api.gets, 2)
	assert.Nil(t, api.gets[1].ProjectionExpression)
}

func TestStore_NilValueDeletesCell(t *testing.T) {
	api := newFakeDynamo("users")
	s := newStore(t, api, nil)
	ctx := context.Background()

	ctl := s.NewController()
	write(t, ctl, "save", "u-1",
		cellValue{qual: "email", value: []byte("a@b.c")},
		cellValue{qual: "name", value: []byte("Ada")},
	)
	_, err := ctl.Exec(ctx)
	require.NoError(t, err)

	ctl = s.NewController()
	write(t, ctl, "delete", "u-1", cellValue{qual: "email", value: nil})
	_, err = ctl.Exec(ctx)
	require.NoError(t, err)

	last := api.updates[len(api.updates)-1]
	assert.Equal(t, "REMOVE #c0", *last.UpdateExpression)
	assert.Nil(t, last.ExpressionAttributeValues)

	item := api.item("users", "u-1")
	assert.NotContains(t, item, cellkey.AttrName([]byte("profile"), []byte("email")))
	assert.Contains(t, item, cellkey.AttrName([]byte("profile"), []byte("name")))
}

func TestStore_LastColumnWinsPerCell(t *testing.T) {
	api := newFakeDynamo("users")
	s := newStore(t, api, nil)

	ctl := s.NewController()
	op, err := ctl.Write("w")
	require.NoError(t, err)
	ref, _ := op.From()
	require.NoError(t, ref.Table(users))
	require.NoError(t, ref.Key([]byte("u-1")))
	for i, v := range []string{"first", "second"} {
		col, err := op.With(i)
		require.NoError(t, err)
		require.NoError(t, col.Fam(profile))
		require.NoError(t, col.Qual([]byte("email")))
		require.NoError(t, col.Value([]byte(v)))
	}
	_, err = ctl.Exec(context.Background())
	require.NoError(t, err)

	require.Len(t, api.updates, 1)
	assert.Equal(t, "SET #c0 = :c0", *api.updates[0].UpdateExpression)

	cells, err := store.DecodeItem(api.item("users", "u-1"))
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, []byte("second"), cells[0].Value)
}

func TestStore_CreatesAbsentTable(t *testing.T) {
	api := newFakeDynamo()
	reg := prometheus.NewRegistry()
	s := newStore(t, api, func(c *store.Config) {
		c.TablePrefix = "app."
		c.Metrics = store.NewMetrics(reg)
	})

	ctl := s.NewController()
	write(t, ctl, "save", "u-1", cellValue{qual: "email", value: []byte("x")})
	_, err := ctl.Exec(context.Background())
	require.NoError(t, err)

	ctl = s.NewController()
	read(t, ctl, "load", "u-1", "email")
	_, err = ctl.Exec(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"app.users"}, api.created)
	assert.Equal(t, 1.0, counterValue(t, reg, "lattice_store_tables_created_total"))
	assert.Equal(t, 2.0, counterValue(t, reg, "lattice_store_operations_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "lattice_store_cells_read_total"))
}

func TestStore_ZeroConfigCreatesAbsentTable(t *testing.T) {
	api := newFakeDynamo()
	s := store.New(api, store.Config{})

	ctl := s.NewController()
	write(t, ctl, "save", "u-1", cellValue{qual: "email", value: []byte("x")})
	_, err := ctl.Exec(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"users"}, api.created)
}

func TestStore_AbsentTableWithoutCreation(t *testing.T) {
	api := newFakeDynamo()
	s := newStore(t, api, func(c *store.Config) { c.CreateAbsentTables = aws.Bool(false) })

	ctl := s.NewController()
	read(t, ctl, "load", "u-1", "email")
	_, err := ctl.Exec(context.Background())

	require.ErrorIs(t, err, store.ErrTableNotFound)
	assert.Empty(t, api.created)
}

func TestStore_ErrorNamesOperation(t *testing.T) {
	api := newFakeDynamo("users")
	boom := errors.New("throttled")
	api.getErr = boom
	reg := prometheus.NewRegistry()
	s := newStore(t, api, func(c *store.Config) { c.Metrics = store.NewMetrics(reg) })

	ctl := s.NewController()
	read(t, ctl, "load-user", "u-1", "email")
	_, err := ctl.Exec(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "READ operation load-user")
	assert.Equal(t, 1.0, counterValue(t, reg, "lattice_store_operations_total"))
}

func TestStore_ResultsKeepOperationOrder(t *testing.T) {
	api := newFakeDynamo("users")
	s := newStore(t, api, func(c *store.Config) { c.MaxParallelOps = 3 })

	ctl := s.NewController()
	var want []any
	for i := range 12 {
		h := fmt.Sprintf("op-%02d", i)
		want = append(want, h)
		if i%2 == 0 {
			write(t, ctl, h, fmt.Sprintf("row-%d", i), cellValue{qual: "email", value: []byte(h)})
		} else {
			read(t, ctl, h, fmt.Sprintf("row-%d", i), "email")
		}
	}

	results, err := ctl.Exec(context.Background())
	require.NoError(t, err)

	var got []any
	for _, r := range results.All() {
		got = append(got, r.Handle())
	}
	assert.Equal(t, want, got)
}

func TestDecodeItem(t *testing.T) {
	good, err := store.EncodeCell([]byte("v"), 9)
	require.NoError(t, err)

	item := map[string]types.AttributeValue{
		"rk": &types.AttributeValueMemberB{Value: []byte("u-1")},
		cellkey.AttrName([]byte("f"), []byte("b")): good,
		cellkey.AttrName([]byte("f"), []byte("a")): good,
		"unrelated": &types.AttributeValueMemberS{Value: "ignored"},
	}
	cells, err := store.DecodeItem(item)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, []byte("a"), cells[0].Qualifier)
	assert.Equal(t, int64(9), cells[0].Timestamp)

	item[cellkey.AttrName([]byte("f"), []byte("c"))] = &types.AttributeValueMemberS{Value: "not a cell"}
	_, err = store.DecodeItem(item)
	assert.ErrorIs(t, err, store.ErrMalformedItem)
}
