package store_test

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB API. It understands the update
// expressions the store generates ("SET #a = :a, ... REMOVE #b, ...").
type fakeDynamo struct {
	mu      sync.Mutex
	tables  map[string]map[string]map[string]types.AttributeValue
	gets    []*dynamodb.GetItemInput
	updates []*dynamodb.UpdateItemInput
	created []string
	getErr  error
}

func newFakeDynamo(tables ...string) *fakeDynamo {
	f := &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
	for _, t := range tables {
		f.tables[t] = make(map[string]map[string]types.AttributeValue)
	}
	return f
}

func rowKeyOf(key map[string]types.AttributeValue) string {
	return string(key["rk"].(*types.AttributeValueMemberB).Value)
}

func notFound(table string) error {
	return &types.ResourceNotFoundException{Message: aws.String("table not found: " + table)}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, in)
	if f.getErr != nil {
		return nil, f.getErr
	}

	rows, ok := f.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, notFound(aws.ToString(in.TableName))
	}
	stored, ok := rows[rowKeyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}

	item := make(map[string]types.AttributeValue, len(stored))
	if in.ProjectionExpression == nil {
		for k, v := range stored {
			item[k] = v
		}
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	for _, ref := range strings.Split(aws.ToString(in.ProjectionExpression), ", ") {
		name := in.ExpressionAttributeNames[ref]
		if v, ok := stored[name]; ok {
			item[name] = v
		}
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)

	rows, ok := f.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, notFound(aws.ToString(in.TableName))
	}
	rk := rowKeyOf(in.Key)
	item, ok := rows[rk]
	if !ok {
		item = map[string]types.AttributeValue{"rk": in.Key["rk"]}
		rows[rk] = item
	}

	expr := aws.ToString(in.UpdateExpression)
	var setPart, removePart string
	if i := strings.Index(expr, "REMOVE "); i >= 0 {
		setPart, removePart = expr[:i], expr[i+len("REMOVE "):]
	} else {
		setPart = expr
	}
	setPart = strings.TrimSpace(strings.TrimPrefix(setPart, "SET "))

	if setPart != "" {
		for _, clause := range strings.Split(setPart, ", ") {
			name, value, _ := strings.Cut(clause, " = ")
			item[in.ExpressionAttributeNames[name]] = in.ExpressionAttributeValues[value]
		}
	}
	if removePart != "" {
		for _, name := range strings.Split(strings.TrimSpace(removePart), ", ") {
			delete(item, in.ExpressionAttributeNames[name])
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[aws.ToString(in.TableName)]; !ok {
		return nil, notFound(aws.ToString(in.TableName))
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists: " + name)}
	}
	f.tables[name] = make(map[string]map[string]types.AttributeValue)
	f.created = append(f.created, name)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) item(table, rk string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table][rk]
}
