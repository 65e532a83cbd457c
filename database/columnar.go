package database

import (
	"fmt"
	"sort"
	"strconv"
)

// Columnar is the wire shape of a table description: one map per column,
// keyed by the row index rendered as a string, e.g.
//
//	{"price": {"0": 100.5, "1": 101}, "symbol": {"0": "AAA", "1": "BBB"}}
//
// Row indexes need not be dense; rows are ordered by numeric index and a
// missing cell decodes to nil.
type Columnar map[string]map[string]any

// ColumnarFromRecords builds a columnar table from row records,
// preserving record order as row indexes 0..n-1.
func ColumnarFromRecords(records []map[string]any) Columnar {
	table := Columnar{}
	for i, record := range records {
		key := strconv.Itoa(i)
		for column, value := range record {
			if table[column] == nil {
				table[column] = map[string]any{}
			}
			table[column][key] = value
		}
	}
	return table
}

// Records converts the columnar table back into row records, ordered by
// numeric row index. A non-numeric row index is an error.
func (c Columnar) Records() ([]map[string]any, error) {
	indexes := map[int]bool{}
	for column, cells := range c {
		for key := range cells {
			index, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("column %s has non-numeric row index %q", column, key)
			}
			indexes[index] = true
		}
	}

	ordered := make([]int, 0, len(indexes))
	for index := range indexes {
		ordered = append(ordered, index)
	}
	sort.Ints(ordered)

	records := make([]map[string]any, 0, len(ordered))
	for _, index := range ordered {
		key := strconv.Itoa(index)
		record := map[string]any{}
		for column, cells := range c {
			if value, ok := cells[key]; ok {
				record[column] = value
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// Len returns the number of rows described by the table.
func (c Columnar) Len() int {
	indexes := map[string]bool{}
	for _, cells := range c {
		for key := range cells {
			indexes[key] = true
		}
	}
	return len(indexes)
}

// floatCell reads a numeric cell. JSON decoding yields float64 for all
// numbers; integers stored directly (from Go producers) are handled too.
func floatCell(record map[string]any, column string) (float64, bool) {
	switch v := record[column].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func intCell(record map[string]any, column string) (int64, bool) {
	value, ok := floatCell(record, column)
	return int64(value), ok
}

func stringCell(record map[string]any, column string) (string, bool) {
	v, ok := record[column].(string)
	return v, ok
}
