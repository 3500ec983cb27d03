package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// Default returns a registry with the built-in crm and billing rules.
func Default(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register("crm", CustomerRule{})
	r.Register("billing", InvoiceRule{})
	return r
}

// CustomerRule copies id into customer_id. A missing id yields a null
// customer_id; numeric ids are rendered as strings.
type CustomerRule struct{}

// Schema declares customer_id as a string column.
func (CustomerRule) Schema() pipeline.Schema {
	return pipeline.Schema{{Name: "customer_id", Type: pipeline.TypeString}}
}

// Normalize implements Rule.
func (CustomerRule) Normalize(r pipeline.Record) (pipeline.Record, error) {
	out := r.Clone()
	switch id := r["id"].(type) {
	case nil:
		out["customer_id"] = nil
	case string:
		out["customer_id"] = id
	case json.Number:
		out["customer_id"] = id.String()
	default:
		return nil, fmt.Errorf("%w: id has type %T", pipeline.ErrInvalidField, id)
	}
	return out, nil
}

// InvoiceRule converts amount, in integer cents, into invoice_amount_usd.
// A missing or null amount counts as zero.
type InvoiceRule struct{}

// Schema declares invoice_amount_usd as a float64 column.
func (InvoiceRule) Schema() pipeline.Schema {
	return pipeline.Schema{{Name: "invoice_amount_usd", Type: pipeline.TypeFloat64}}
}

// Normalize implements Rule.
func (InvoiceRule) Normalize(r pipeline.Record) (pipeline.Record, error) {
	cents, err := minorUnits(r["amount"])
	if err != nil {
		return nil, err
	}
	out := r.Clone()
	out["invoice_amount_usd"] = cents / 100
	return out, nil
}

func minorUnits(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q: %w", pipeline.ErrInvalidField, n, err)
		}
		return f, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q is not numeric", pipeline.ErrInvalidField, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: amount has type %T", pipeline.ErrInvalidField, v)
	}
}
