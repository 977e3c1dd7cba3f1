//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// LATTICE_E2E_REGION selects the region and LATTICE_E2E_ENDPOINT points the client at
// another endpoint, such as DynamoDB Local.
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/spec"
	"github.com/jacentio/lattice/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "lattice-e2e-test"

var (
	testID string

	profile = model.NewFamily([]byte("profile"))
	events  = model.NewFamily([]byte("events")).WithVersioning(model.VersioningSequence)
	users   = model.NewTable("users", profile, events)
	orders  = model.NewTable("orders", profile)

	ddbClient *dynamodb.Client
	testStore *store.Store
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := store.DefaultConfig()
	cfg.ID = "e2e-" + testID
	cfg.TablePrefix = fmt.Sprintf("%s-%s-", tablePrefix, testID)
	cfg.Region = os.Getenv("LATTICE_E2E_REGION")
	cfg.Endpoint = os.Getenv("LATTICE_E2E_ENDPOINT")
	cfg.Logger = logger.Sugar()

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table prefix: %s\n", cfg.TablePrefix)

	ctx := context.Background()
	ddbClient, err = store.NewClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}

	// Tables are created on first use.
	testStore = store.New(ddbClient, cfg)

	code := m.Run()

	deleteTables(ctx)
	_ = logger.Sync()

	os.Exit(code)
}

func deleteTables(ctx context.Context) {
	fmt.Println("Deleting test tables...")

	for _, t := range []model.Table{users, orders} {
		name := testStore.TableName(t.Name())
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(name),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", name, err)
		}
	}
}

// --- Helpers ---

func target(t *testing.T, from func() (*spec.RowRef, error), table model.Table, row string) {
	t.Helper()
	ref, err := from()
	if err != nil {
		t.Fatalf("From failed: %v", err)
	}
	if err := ref.Table(table); err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if err := ref.Key([]byte(row)); err != nil {
		t.Fatalf("Key failed: %v", err)
	}
}

type cellWrite struct {
	family model.Family
	qual   string
	value  []byte
	ts     int64
}

func write(t *testing.T, table model.Table, row string, cells ...cellWrite) {
	t.Helper()
	ctl := testStore.NewController()
	op, err := ctl.Write("w")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	target(t, op.From, table, row)

	for i, c := range cells {
		col, err := op.With(i)
		if err != nil {
			t.Fatalf("With failed: %v", err)
		}
		if err := col.Fam(c.family); err != nil {
			t.Fatalf("Fam failed: %v", err)
		}
		if err := col.Qual([]byte(c.qual)); err != nil {
			t.Fatalf("Qual failed: %v", err)
		}
		if err := col.Value(c.value); err != nil {
			t.Fatalf("Value failed: %v", err)
		}
		if c.ts != 0 {
			v, err := col.Version()
			if err != nil {
				t.Fatalf("Version failed: %v", err)
			}
			if err := v.Exactly(c.ts); err != nil {
				t.Fatalf("Exactly failed: %v", err)
			}
		}
	}

	if _, err := ctl.Exec(context.Background()); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
}

func readQualifiers(t *testing.T, table model.Table, row string, family model.Family, quals ...string) *spec.OpResult {
	t.Helper()
	ctl := testStore.NewController()
	op, err := ctl.Read("r")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	target(t, op.From, table, row)

	err = spec.ReadAllOf(op, quals, func(q string, col *spec.ReadColumn) (any, error) {
		if err := col.Fam(family); err != nil {
			return nil, err
		}
		return q, col.Qual([]byte(q))
	})
	if err != nil {
		t.Fatalf("ReadAllOf failed: %v", err)
	}

	results, err := ctl.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	res, ok := results.Get("r")
	if !ok {
		t.Fatal("expected a result for handle r")
	}
	return res
}

// --- Tests ---

func TestWriteThenRead(t *testing.T) {
	row := uuid.New().String()

	write(t, users, row,
		cellWrite{family: profile, qual: "email", value: []byte("a@example.com"), ts: 100},
		cellWrite{family: profile, qual: "name", value: []byte("Ada")},
	)

	res := readQualifiers(t, users, row, profile, "email", "name", "missing")

	email, ok := res.Latest("email")
	if !ok {
		t.Fatal("expected email cell")
	}
	if string(email.Value) != "a@example.com" {
		t.Errorf("expected email 'a@example.com', got %q", email.Value)
	}
	if email.Timestamp != 100 {
		t.Errorf("expected timestamp 100, got %d", email.Timestamp)
	}

	name, ok := res.Latest("name")
	if !ok {
		t.Fatal("expected name cell")
	}
	if name.Timestamp == 0 {
		t.Error("expected a server-assigned timestamp")
	}

	if _, ok := res.Latest("missing"); ok {
		t.Error("expected no cell for an unwritten qualifier")
	}
}

func TestOverwriteKeepsLatest(t *testing.T) {
	row := uuid.New().String()

	write(t, users, row, cellWrite{family: profile, qual: "email", value: []byte("old"), ts: 1})
	write(t, users, row, cellWrite{family: profile, qual: "email", value: []byte("new"), ts: 2})

	cells := readQualifiers(t, users, row, profile, "email").Cells("email")
	if len(cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(cells))
	}
	if string(cells[0].Value) != "new" {
		t.Errorf("expected 'new', got %q", cells[0].Value)
	}
}

func TestDeleteCell(t *testing.T) {
	row := uuid.New().String()

	write(t, users, row,
		cellWrite{family: profile, qual: "email", value: []byte("x")},
		cellWrite{family: profile, qual: "name", value: []byte("y")},
	)
	write(t, users, row, cellWrite{family: profile, qual: "email", value: nil})

	res := readQualifiers(t, users, row, profile, "email", "name")
	if _, ok := res.Latest("email"); ok {
		t.Error("expected email to be deleted")
	}
	if _, ok := res.Latest("name"); !ok {
		t.Error("expected name to survive")
	}
}

func TestFamilyAndRangeRead(t *testing.T) {
	row := uuid.New().String()

	write(t, users, row,
		cellWrite{family: profile, qual: "a", value: []byte("1")},
		cellWrite{family: profile, qual: "c", value: []byte("2")},
		cellWrite{family: profile, qual: "z", value: []byte("3")},
		cellWrite{family: events, qual: "login", value: []byte("4")},
	)

	ctl := testStore.NewController()
	op, err := ctl.Read("r")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	target(t, op.From, users, row)

	all, _ := op.With("profile")
	if err := all.Fam(profile); err != nil {
		t.Fatalf("Fam failed: %v", err)
	}
	rng, _ := op.With("a-m")
	if err := rng.Fam(profile); err != nil {
		t.Fatalf("Fam failed: %v", err)
	}
	if err := rng.QualRange([]byte("a"), []byte("m")); err != nil {
		t.Fatalf("QualRange failed: %v", err)
	}

	results, err := ctl.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	res, _ := results.Get("r")

	if n := len(res.Cells("profile")); n != 3 {
		t.Errorf("expected 3 profile cells, got %d", n)
	}
	if n := len(res.Cells("a-m")); n != 2 {
		t.Errorf("expected 2 cells in a..m, got %d", n)
	}
}

func TestManyOperationsAcrossTables(t *testing.T) {
	userRow := uuid.New().String()
	orderRow := uuid.New().String()

	ctl := testStore.NewController()
	for _, w := range []struct {
		handle string
		table  model.Table
		row    string
	}{
		{"user", users, userRow},
		{"order", orders, orderRow},
	} {
		op, err := ctl.Write(w.handle)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		target(t, op.From, w.table, w.row)
		col, _ := op.With("c")
		_ = col.Fam(profile)
		_ = col.Qual([]byte("owner"))
		if err := col.Value([]byte(w.handle)); err != nil {
			t.Fatalf("Value failed: %v", err)
		}
	}

	results, err := ctl.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if results.Len() != 2 {
		t.Errorf("expected 2 results, got %d", results.Len())
	}

	owner, ok := readQualifiers(t, orders, orderRow, profile, "owner").Latest("owner")
	if !ok || string(owner.Value) != "order" {
		t.Errorf("expected owner 'order', got %q", owner.Value)
	}
}
