package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/internal/cellkey"
	"github.com/jacentio/lattice/spec"
)

// API is the subset of the DynamoDB client used by the Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Store executes frozen operations against DynamoDB. It implements spec.Engine.
type Store struct {
	client  API
	config  Config
	logger  *zap.SugaredLogger
	metrics *Metrics

	// tables caches physical table names known to exist.
	tables sync.Map
	now    func() time.Time
}

var _ spec.Engine = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client:  client,
		config:  config,
		logger:  config.Logger.With("store", config.ID),
		metrics: config.Metrics,
		now:     time.Now,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config { return s.config }

// NewController creates a controller that executes through this store.
func (s *Store) NewController() *spec.Controller {
	return spec.NewController(s, spec.Config{
		CopyStrategy: s.config.CopyStrategy,
		Logger:       s.config.Logger,
	})
}

// TableName returns the physical name of a model table.
func (s *Store) TableName(name string) string {
	return s.config.NamingStrategy.TableName(name)
}

// Execute runs ops concurrently, up to MaxParallelOps at a time. The first failure cancels
// the remaining operations and is returned. Results are stored in operation order.
func (s *Store) Execute(ctx context.Context, ops []spec.Operation) (*spec.ResultSet, error) {
	results := make([]*spec.OpResult, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxParallelOps)
	for i, op := range ops {
		g.Go(func() error {
			start := time.Now()
			res, err := s.execute(gctx, op)
			s.metrics.observe(op.Kind(), start, err)
			if err != nil {
				s.logger.Errorw("operation failed", "kind", op.Kind(), "handle", op.Handle(), "error", err)
				return errors.Wrapf(err, "%s operation %v", op.Kind(), op.Handle())
			}
			s.logger.Debugw("operation executed", "kind", op.Kind(), "handle", op.Handle(), "duration", time.Since(start))
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
		return s.Read(ctx, frozen)
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

// Read fetches the target row and routes its cells to the requesting columns.
// The DynamoDB layout keeps only the newest version of each cell.
func (s *Store) Read(ctx context.Context, op *spec.FrozenRead) (*spec.OpResult, error) {
	table := s.TableName(op.Table().Name())
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	input := &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            RowKey(op.RowKey()),
		ConsistentRead: aws.Bool(true),
	}
	if expr, names, ok := projection(op); ok {
		input.ProjectionExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
	}

	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, errors.Wrapf(err, "get row from %s", table)
	}

	cells, err := DecodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	res := op.Assimilate(cells)
	for _, h := range res.Handles() {
		s.metrics.cellsRead.Add(float64(len(res.Cells(h))))
	}
	return res, nil
}

// projection limits the fetched attributes when every column addresses a single qualifier.
// Family and range columns need the whole item.
func projection(op *spec.FrozenRead) (string, map[string]string, bool) {
	names := make(map[string]string)
	var refs []string
	seen := make(map[string]struct{})
	for _, c := range op.Columns() {
		if c.Target() != spec.TargetQualifier {
			return "", nil, false
		}
		fam, _ := c.Family()
		attr := cellkey.AttrName(fam.Name(), c.Qualifier())
		if _, dup := seen[attr]; dup {
			continue
		}
		seen[attr] = struct{}{}
		ref := fmt.Sprintf("#p%d", len(refs))
		names[ref] = attr
		refs = append(refs, ref)
	}
	return joinStrings(refs, ", "), names, len(refs) > 0
}

// Write applies every column of the operation to the target row in a single UpdateItem.
// When several columns address the same cell the last one wins. Columns without an explicit
// version are stamped with the current time in milliseconds.
func (s *Store) Write(ctx context.Context, op *spec.FrozenWrite) (*spec.OpResult, error) {
	table := s.TableName(op.Table().Name())
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	var order []string
	byAttr := make(map[string]*spec.WriteColumn)
	for _, c := range op.Columns() {
		fam, _ := c.Family()
		attr := cellkey.AttrName(fam.Name(), c.Qualifier())
		if _, ok := byAttr[attr]; !ok {
			order = append(order, attr)
		}
		byAttr[attr] = c
	}

	now := s.now().UnixMilli()
	var setClauses, removeClauses []string
	exprNames := make(map[string]string)
	exprValues := make(map[string]types.AttributeValue)
	for i, attr := range order {
		col := byAttr[attr]
		nameKey := fmt.Sprintf("#c%d", i)
		exprNames[nameKey] = attr
		if col.IsDelete() {
			removeClauses = append(removeClauses, nameKey)
			continue
		}
		ts, ok := col.Timestamp()
		if !ok {
			ts = now
		}
		av, err := EncodeCell(col.CellValue(), ts)
		if err != nil {
			return nil, err
		}
		valueKey := fmt.Sprintf(":c%d", i)
		exprValues[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	var updateExpr string
	if len(setClauses) > 0 {
		updateExpr = "SET " + joinStrings(setClauses, ", ")
	}
	if len(removeClauses) > 0 {
		if updateExpr != "" {
			updateExpr += " "
		}
		updateExpr += "REMOVE " + joinStrings(removeClauses, ", ")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(table),
		Key:                      RowKey(op.RowKey()),
		UpdateExpression:         aws.String(updateExpr),
		ExpressionAttributeNames: exprNames,
	}
	if len(exprValues) > 0 {
		input.ExpressionAttributeValues = exprValues
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return nil, errors.Wrapf(err, "update row in %s", table)
	}
	return spec.NewWriteResult(op.Handle()), nil
}

// ensureTable checks that a table exists, creating it when absent and allowed.
func (s *Store) ensureTable(ctx context.Context, table string) error {
	if _, ok := s.tables.Load(table); ok {
		return nil
	}

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		s.tables.Store(table, struct{}{})
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return errors.Wrapf(err, "describe table %s", table)
	}
	if !aws.ToBool(s.config.CreateAbsentTables) {
		return errors.Wrapf(ErrTableNotFound, "table %s", table)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(RowKeyAttr), AttributeType: types.ScalarAttributeTypeB},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(RowKeyAttr), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		// Another caller created it concurrently.
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return errors.Wrapf(err, "create table %s", table)
		}
	} else {
		s.metrics.tablesCreated.Inc()
		s.logger.Infow("created absent table", "table", table)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, s.config.TableWaitTimeout); err != nil {
		return errors.Wrapf(err, "wait for table %s", table)
	}

	s.tables.Store(table, struct{}{})
	return nil
}
