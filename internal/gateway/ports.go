// Package gateway is the remote data boundary shared by every repository.
//
// A Gateway speaks in untyped rows keyed by column name. Rows are checked
// against the static Schema on the way in and normalized to canonical Go
// values on the way out, so repositories only ever see typed records
// produced by Decode.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"cassa/internal/core"
)

// Row is a single record keyed by column name. Values are canonical:
// string, int64, bool, decimal.Decimal, time.Time, core.Date or nil.
type Row map[string]any

// Gateway is the query-builder surface every repository consumes.
type Gateway interface {
	// Select returns the rows of q.Table matching every filter, in q's order.
	Select(ctx context.Context, q Query) ([]Row, error)
	// Insert writes all rows in one all-or-nothing call and returns them as stored.
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	// Update merges fields into the row with the given id and returns the stored row.
	// Returns ErrNotFound when no row has that id or the row fails one of conds.
	Update(ctx context.Context, table, id string, fields Row, conds ...Filter) (Row, error)
	// Delete removes the row with the given id when it satisfies every cond.
	// Deleting a missing id is not an error.
	Delete(ctx context.Context, table, id string, conds ...Filter) error
	// Upsert inserts row or, when another row shares the conflict columns,
	// overwrites that row's mutable columns. Returns the stored row.
	Upsert(ctx context.Context, table string, row Row, conflict []string) (Row, error)
	Close() error
}

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrConflict      = errors.New("unique constraint violated")
	ErrNotFound      = core.ErrNotFound
)

// Where is an equality condition for Update and Delete. A nil value matches
// only NULL.
func Where(col string, v any) Filter { return Filter{Column: col, Op: OpEq, Value: v} }

// ResolveConds checks Update and Delete conditions against the schema and
// normalizes their values. Only equality is supported.
func ResolveConds(table string, conds []Filter) ([]Filter, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	for _, c := range conds {
		if c.Op != OpEq {
			return nil, fmt.Errorf("condition %s.%s: only equality is supported", table, c.Column)
		}
	}
	_, q, err := Query{Table: table, Filters: conds}.Resolve()
	if err != nil {
		return nil, err
	}
	return q.Filters, nil
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the row's id column or "".
func (r Row) ID() string {
	s, _ := r[ColID].(string)
	return s
}

// immutable columns are never overwritten by Update or by the update half of Upsert.
func immutable(col string) bool {
	return col == ColID || col == ColCreatedAt || col == ColCreatedBy || col == ColGroupID
}

// CheckUpsert validates the arguments of an Upsert call and returns the
// normalized row.
func CheckUpsert(table string, row Row, conflict []string) (*Table, Row, error) {
	t, err := Lookup(table)
	if err != nil {
		return nil, nil, err
	}
	if len(conflict) == 0 {
		return nil, nil, fmt.Errorf("upsert %s: no conflict columns", table)
	}
	n, err := t.Normalize(row)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range conflict {
		if _, ok := t.Column(c); !ok {
			return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c)
		}
		if n[c] == nil {
			return nil, nil, fmt.Errorf("upsert %s: conflict column %s is empty", table, c)
		}
	}
	return t, n, nil
}

// UpdatableColumns lists the columns of row that an Update may write, in
// schema order.
func (t *Table) UpdatableColumns(row Row, skip ...string) []string {
	var out []string
outer:
	for _, c := range t.Columns {
		if _, ok := row[c.Name]; !ok || immutable(c.Name) {
			continue
		}
		for _, s := range skip {
			if s == c.Name {
				continue outer
			}
		}
		out = append(out, c.Name)
	}
	return out
}
