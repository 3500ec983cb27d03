package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodePayload parses exactly one JSON value, keeping numbers as
// json.Number so integer identifiers survive a round trip unchanged.
func DecodePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}
	return payload, nil
}

// RecordCount reports how many records a payload carries: the length of a
// list, one for an object, zero for null.
func RecordCount(p Payload) int {
	switch v := p.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	default:
		return 1
	}
}
