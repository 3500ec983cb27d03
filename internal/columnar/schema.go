package columnar

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// kind is the physical representation chosen for one column.
type kind int

const (
	kindString kind = iota
	kindInt64
	kindFloat64
	kindBool
	// kindJSON stores mixed or nested values as their JSON encoding. Strings
	// in such a column are kept as is.
	kindJSON
)

type column struct {
	name string
	kind kind
}

func (c column) arrowType() arrow.DataType {
	switch c.kind {
	case kindInt64:
		return arrow.PrimitiveTypes.Int64
	case kindFloat64:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func declaredKind(t pipeline.FieldType) kind {
	switch t {
	case pipeline.TypeInt64:
		return kindInt64
	case pipeline.TypeFloat64:
		return kindFloat64
	case pipeline.TypeBool:
		return kindBool
	default:
		return kindString
	}
}

// inferColumns lays out declared fields first, in declared order, then every
// other field in the order it is first seen. Keys within one record are
// visited alphabetically so the layout does not depend on map iteration.
func inferColumns(declared pipeline.Schema, records []pipeline.Record) ([]column, error) {
	if err := declared.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrSchemaViolation, err)
	}

	cols := make([]column, 0, len(declared))
	seen := make(map[string]bool, len(declared))
	for _, f := range declared {
		cols = append(cols, column{name: f.Name, kind: declaredKind(f.Type)})
		seen[f.Name] = true
	}

	var extra []string
	for _, rec := range records {
		if err := declared.Check(rec); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}

	for _, name := range extra {
		cols = append(cols, column{name: name, kind: inferKind(name, records)})
	}
	return cols, nil
}

// inferKind picks the narrowest type that holds every non-null value of a
// field: bool, int64, float64, string, or JSON text as the fallback.
func inferKind(name string, records []pipeline.Record) kind {
	var bools, ints, floats, strs, others int
	for _, rec := range records {
		switch v := rec[name].(type) {
		case nil:
		case bool:
			bools++
		case string:
			strs++
		case int, int32, int64:
			ints++
		case float32, float64:
			floats++
		case json.Number:
			if _, err := v.Int64(); err == nil {
				ints++
			} else {
				floats++
			}
		default:
			others++
		}
	}

	switch {
	case others > 0:
		return kindJSON
	case bools > 0 && ints+floats+strs == 0:
		return kindBool
	case strs > 0 && bools+ints+floats == 0:
		return kindString
	case ints+floats > 0 && bools+strs == 0:
		if floats == 0 {
			return kindInt64
		}
		return kindFloat64
	case bools+ints+floats+strs == 0:
		return kindString
	default:
		return kindJSON
	}
}
