package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
)

// Op is a comparison operator used in a filter.
type Op string

const (
	OpEq  Op = "="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

type Order struct {
	Column string
	Desc   bool
}

// Query is a filtered, ordered select against one table.
type Query struct {
	Table   string
	Filters []Filter
	Orders  []Order
}

// From starts a query on table.
func From(table string) Query { return Query{Table: table} }

func (q Query) where(col string, op Op, v any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: col, Op: op, Value: v})
	return q
}

func (q Query) Eq(col string, v any) Query  { return q.where(col, OpEq, v) }
func (q Query) Gt(col string, v any) Query  { return q.where(col, OpGt, v) }
func (q Query) Gte(col string, v any) Query { return q.where(col, OpGte, v) }
func (q Query) Lt(col string, v any) Query  { return q.where(col, OpLt, v) }
func (q Query) Lte(col string, v any) Query { return q.where(col, OpLte, v) }

// OrderBy appends an ascending sort key.
func (q Query) OrderBy(col string) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: col})
	return q
}

// OrderByDesc appends a descending sort key.
func (q Query) OrderByDesc(col string) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: col, Desc: true})
	return q
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Table)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s%s%v", f.Column, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		if o.Desc {
			fmt.Fprintf(&b, " order:%s desc", o.Column)
		} else {
			fmt.Fprintf(&b, " order:%s", o.Column)
		}
	}
	return b.String()
}

// Resolve checks the query against the schema and normalizes filter values.
func (q Query) Resolve() (*Table, Query, error) {
	t, err := Lookup(q.Table)
	if err != nil {
		return nil, q, err
	}
	out := Query{Table: q.Table, Orders: q.Orders}
	for _, f := range q.Filters {
		c, ok := t.Column(f.Column)
		if !ok {
			return nil, q, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, f.Column)
		}
		switch f.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			return nil, q, fmt.Errorf("unsupported operator %q", f.Op)
		}
		v, err := c.Normalize(f.Value)
		if err != nil {
			return nil, q, fmt.Errorf("filter %s.%s: %w", q.Table, f.Column, err)
		}
		out.Filters = append(out.Filters, Filter{Column: f.Column, Op: f.Op, Value: v})
	}
	for _, o := range q.Orders {
		if _, ok := t.Column(o.Column); !ok {
			return nil, q, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, o.Column)
		}
	}
	return t, out, nil
}

// Match reports whether a normalized row satisfies every filter of a
// resolved query.
func (q Query) Match(row Row) bool {
	for _, f := range q.Filters {
		c := Compare(row[f.Column], f.Value)
		var ok bool
		switch f.Op {
		case OpEq:
			ok = c == 0
		case OpGt:
			ok = c > 0
		case OpGte:
			ok = c >= 0
		case OpLt:
			ok = c < 0
		case OpLte:
			ok = c <= 0
		}
		if !ok || (row[f.Column] == nil) != (f.Value == nil) {
			return false
		}
	}
	return true
}

// Less orders two normalized rows by the query's sort keys.
func (q Query) Less(a, b Row) bool {
	for _, o := range q.Orders {
		c := Compare(a[o.Column], b[o.Column])
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Compare orders two canonical values of the same kind. Nil sorts first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case core.Date:
		if y, ok := b.(core.Date); ok {
			return x.Compare(y.Time)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
