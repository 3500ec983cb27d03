// Package pipeline defines the domain types shared by the ingestion and
// transform stages, plus the two orchestrators that sequence them.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source is one external API configured for extraction.
type Source struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	AuthToken     string `mapstructure:"auth_token"`
	Path          string `mapstructure:"path"`
	LookbackHours int    `mapstructure:"lookback_hours"`
}

// URL joins the base URL and the relative path.
func (s Source) URL() string {
	return s.BaseURL + s.Path
}

// AuthorizationHeader renders the bearer header value for the source token.
func (s Source) AuthorizationHeader() string {
	return "Bearer " + s.AuthToken
}

// Checkpoint is the watermark bounding what is fetched for a source.
type Checkpoint struct {
	Source    string
	Watermark time.Time
	// Persisted is true when the watermark came from a WatermarkStore rather
	// than the relative lookback window.
	Persisted bool
}

// UpdatedSince formats the watermark for the updated_since query parameter.
func (c Checkpoint) UpdatedSince() string {
	return c.Watermark.UTC().Format(time.RFC3339)
}

// Payload is a decoded JSON response body: a []any of records, a single
// map[string]any record, or (rarely) a scalar.
type Payload = any

// Record is one logical entity extracted from a raw payload.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RawObject describes one immutable staged payload.
type RawObject struct {
	Source        string
	IngestionDate string
	FetchedAt     time.Time
	Key           string
	URI           string
	Records       int
	Bytes         int
	SHA256        string
}

// CuratedPartition describes one columnar object written for a source and
// process date.
type CuratedPartition struct {
	Source      string
	ProcessDate string
	Key         string
	URI         string
	Rows        int
	Columns     []string
	Bytes       int
	SHA256      string
	WrittenAt   time.Time
}

// FieldType enumerates the column types a declared schema can require.
type FieldType string

// Supported declared field types.
const (
	TypeString  FieldType = "string"
	TypeInt64   FieldType = "int64"
	TypeFloat64 FieldType = "float64"
	TypeBool    FieldType = "bool"
)

// Field is one entry in a declared output schema.
type Field struct {
	Name string
	Type FieldType
}

// Accepts reports whether v can be stored in a column of the field's type.
// Nil is always accepted; every column is nullable.
func (f Field) Accepts(v any) bool {
	if v == nil {
		return true
	}
	switch f.Type {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt64:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case TypeFloat64:
		switch n := v.(type) {
		case int, int32, int64, float32, float64:
			return true
		case json.Number:
			_, err := n.Float64()
			return err == nil
		}
		return false
	}
	return false
}

// Check returns ErrSchemaViolation for the first declared field whose value
// in r has the wrong type.
func (s Schema) Check(r Record) error {
	for _, f := range s {
		if v, ok := r[f.Name]; ok && !f.Accepts(v) {
			return fmt.Errorf("%w: field %q expects %s, got %T", ErrSchemaViolation, f.Name, f.Type, v)
		}
	}
	return nil
}

// Schema is an ordered list of declared output fields for a source.
type Schema []Field

// Lookup returns the declared field with the given name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks for empty or duplicated field names and unknown types.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("schema field name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema field %q declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case TypeString, TypeInt64, TypeFloat64, TypeBool:
		default:
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}
