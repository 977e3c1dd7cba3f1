// Package stream delivers DynamoDB Streams changes on lattice tables to frozen read views.
//
// A view is a frozen read operation. The cells of each stream record are routed through the
// view's association indices exactly as the DynamoDB engine routes the cells of a GetItem,
// so a subscriber sees a change only when it touches a column the view reads.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/spec"
	"github.com/jacentio/lattice/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// ErrMalformedRecord is returned when a stream record cannot be decoded.
var ErrMalformedRecord = errors.New("lattice: malformed stream record")

// Change is one stream record as seen through a view.
type Change struct {
	EventID   string
	EventName string
	// Table is the physical table name.
	Table  string
	RowKey []byte
	// Result holds the new or modified cells the view reads.
	Result *spec.OpResult
	// Removed lists coordinates the view reads that the record removed.
	Removed []model.FamilyQualifierPair
}

// Subscriber receives changes for a view. A returned error fails the whole batch, so the
// stream retries it.
type Subscriber func(ctx context.Context, c Change) error

type route struct {
	view     *spec.FrozenRead
	anyRow   bool
	deliver  Subscriber
	viewName string
}

// Router fans stream records out to views.
type Router struct {
	naming      store.NamingStrategy
	logger      *zap.SugaredLogger
	maxParallel int

	mu     sync.RWMutex
	routes map[string][]route
}

// NewRouter creates a router. naming maps a view's model table to the physical table that
// emits the stream; pass the same strategy the store uses.
func NewRouter(naming store.NamingStrategy, logger *zap.SugaredLogger) *Router {
	if naming == nil {
		naming = store.IdentityNaming{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{
		naming:      naming,
		logger:      logger,
		maxParallel: 8,
		routes:      make(map[string][]route),
	}
}

// Watch delivers changes to the view's table and row.
func (r *Router) Watch(view *spec.FrozenRead, fn Subscriber) {
	r.add(view, fn, false)
}

// WatchTable delivers changes to any row of the view's table. The view's row key is ignored.
func (r *Router) WatchTable(view *spec.FrozenRead, fn Subscriber) {
	r.add(view, fn, true)
}

func (r *Router) add(view *spec.FrozenRead, fn Subscriber, anyRow bool) {
	table := r.naming.TableName(view.Table().Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[table] = append(r.routes[table], route{
		view:     view,
		anyRow:   anyRow,
		deliver:  fn,
		viewName: fmt.Sprint(view.Handle()),
	})
}

// HandleEvent processes a batch of stream records in order. It is designed to be used as
// an AWS Lambda handler. Processing stops at the first failing record.
func (r *Router) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := r.processRecord(ctx, record); err != nil {
			r.logger.Errorw("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// processRecord decodes one record and delivers it to every matching view.
func (r *Router) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch record.EventName {
	case EventInsert, EventModify, EventRemove:
	default:
		return nil
	}

	table, ok := TableFromARN(record.EventSourceArn)
	if !ok {
		return errors.Wrapf(ErrMalformedRecord, "event %s: source ARN %q names no table", record.EventID, record.EventSourceArn)
	}

	r.mu.RLock()
	routes := r.routes[table]
	r.mu.RUnlock()
	if len(routes) == 0 {
		return nil
	}

	rk, ok := record.Change.Keys[store.RowKeyAttr]
	if !ok || rk.DataType() != events.DataTypeBinary {
		return errors.Wrapf(ErrMalformedRecord, "event %s: missing binary row key", record.EventID)
	}
	rowKey := rk.Binary()

	oldCells, err := store.DecodeItem(ConvertImage(record.Change.OldImage))
	if err != nil {
		return errors.Wrapf(err, "event %s: old image", record.EventID)
	}
	newCells, err := store.DecodeItem(ConvertImage(record.Change.NewImage))
	if err != nil {
		return errors.Wrapf(err, "event %s: new image", record.EventID)
	}
	changed, removed := diffCells(oldCells, newCells)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for _, rt := range routes {
		if !rt.anyRow && string(rt.view.RowKey()) != string(rowKey) {
			continue
		}
		c := Change{
			EventID:   record.EventID,
			EventName: record.EventName,
			Table:     table,
			RowKey:    rowKey,
			Result:    rt.view.Assimilate(changed),
		}
		for _, p := range removed {
			if len(rt.view.Route(p)) > 0 {
				c.Removed = append(c.Removed, p)
			}
		}
		if !hasCells(c.Result) && len(c.Removed) == 0 {
			continue
		}
		g.Go(func() error {
			if err := rt.deliver(gctx, c); err != nil {
				r.logger.Warnw("subscriber failed",
					"view", rt.viewName,
					"eventID", c.EventID,
					"error", err,
				)
				return errors.Wrapf(err, "view %s", rt.viewName)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.logger.Debugw("stream record routed",
		"eventID", record.EventID,
		"table", table,
		"changed", len(changed),
		"removed", len(removed),
	)
	return nil
}

// diffCells returns the cells of next that are new or differ from prev, and the coordinates
// of prev that next no longer holds.
func diffCells(prev, next []spec.Cell) ([]spec.Cell, []model.FamilyQualifierPair) {
	before := make(map[model.PairKey]spec.Cell, len(prev))
	for _, c := range prev {
		before[c.Pair().Key()] = c
	}

	var changed []spec.Cell
	for _, c := range next {
		key := c.Pair().Key()
		old, ok := before[key]
		delete(before, key)
		if ok && old.Timestamp == c.Timestamp && string(old.Value) == string(c.Value) {
			continue
		}
		changed = append(changed, c)
	}

	var removed []model.FamilyQualifierPair
	for _, c := range prev {
		if _, gone := before[c.Pair().Key()]; gone {
			removed = append(removed, c.Pair())
		}
	}
	return changed, removed
}

func hasCells(res *spec.OpResult) bool {
	for _, h := range res.Handles() {
		if len(res.Cells(h)) > 0 {
			return true
		}
	}
	return false
}

// TableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:<region>:<account>:table/<name>/stream/<label>.
func TableFromARN(arn string) (string, bool) {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, "/")
	return name, name != ""
}

// ConvertStreamKey converts a DynamoDB stream key to a store.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	return store.PK(ConvertImage(streamKey))
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
