package store

import (
	"bytes"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"

	"github.com/jacentio/lattice/internal/cellkey"
	"github.com/jacentio/lattice/spec"
)

// RowKeyAttr is the binary hash key of every table.
const RowKeyAttr = "rk"

// cellRecord is the stored form of one cell. Each family/qualifier pair is a separate
// top-level attribute named by cellkey.AttrName.
type cellRecord struct {
	Value     []byte `dynamodbav:"v"`
	Timestamp int64  `dynamodbav:"ts"`
}

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// RowKey returns the primary key of a row.
func RowKey(key []byte) PK {
	return PK{RowKeyAttr: &types.AttributeValueMemberB{Value: key}}
}

// EncodeCell returns the attribute value stored for a cell.
func EncodeCell(value []byte, ts int64) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(cellRecord{Value: value, Timestamp: ts})
	if err != nil {
		return nil, errors.Wrap(err, "marshal cell")
	}
	return av, nil
}

// DecodeItem extracts the cells of a stored row. Attributes that are not cells are ignored.
// Cells are ordered by family, then qualifier.
func DecodeItem(item map[string]types.AttributeValue) ([]spec.Cell, error) {
	cells := make([]spec.Cell, 0, len(item))
	for name, av := range item {
		fam, qual, ok := cellkey.ParseAttrName(name)
		if !ok {
			continue
		}
		var rec cellRecord
		if err := attributevalue.Unmarshal(av, &rec); err != nil {
			return nil, errors.Wrapf(ErrMalformedItem, "attribute %s: %v", name, err)
		}
		cells = append(cells, spec.Cell{
			Family:    fam,
			Qualifier: qual,
			Value:     rec.Value,
			Timestamp: rec.Timestamp,
		})
	}
	sortCells(cells)
	return cells, nil
}

// sortCells orders cells by family and qualifier, newest first within a coordinate.
func sortCells(cells []spec.Cell) {
	slices.SortFunc(cells, func(a, b spec.Cell) int {
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

// joinStrings joins strings with a separator (avoiding strings package import).
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
