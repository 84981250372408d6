package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"cassa/internal/core"
)

// Decode converts a gateway row into a typed record through its JSON tags.
// Every value is first checked against the table schema; any mismatch is
// reported as a *core.DecodeError naming the offending column.
func Decode[T any](table string, row Row) (T, error) {
	var out T
	t, err := Lookup(table)
	if err != nil {
		return out, err
	}
	n, err := t.Normalize(row)
	if err != nil {
		var de *core.DecodeError
		if errors.As(err, &de) {
			return out, err
		}
		return out, &core.DecodeError{Table: table, Err: err}
	}
	b, err := json.Marshal(n)
	if err != nil {
		return out, &core.DecodeError{Table: table, Err: err}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return out, &core.DecodeError{Table: table, Field: te.Field, Err: err}
		}
		return out, &core.DecodeError{Table: table, Err: err}
	}
	return out, nil
}

// DecodeAll decodes every row, stopping at the first failure.
func DecodeAll[T any](table string, rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := Decode[T](table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts a record into a row for table.
func Encode(table string, v any) (Row, error) {
	t, err := Lookup(table)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", table, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("encode %s: %w", table, err)
	}
	return t.Normalize(raw)
}
