package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
	KindDecimal
	KindTimestamp
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Table names.
const (
	TableGroups           = "groups"
	TableMembers          = "group_members"
	TableInvites          = "group_invites"
	TableExpenses         = "expenses"
	TableIncome           = "income_entries"
	TableRecurringIncome  = "recurring_income"
	TableTasks            = "tasks"
	TableCardConfigs      = "card_configs"
	TableCardBillPayments = "card_bill_payments"
	TableInstallments     = "installments"
)

// Columns shared by every group-scoped table.
const (
	ColID        = "id"
	ColGroupID   = "group_id"
	ColCreatedBy = "created_by"
	ColCreatedAt = "created_at"
)

type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Table describes one relation. Unique lists the natural keys besides id.
type Table struct {
	Name    string
	Columns []Column
	Unique  [][]string
	index   map[string]int
}

func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func col(name string, kind Kind) Column      { return Column{Name: name, Kind: kind} }
func nullable(name string, kind Kind) Column { return Column{Name: name, Kind: kind, Nullable: true} }

func scoped(cols ...Column) []Column {
	return append([]Column{
		col(ColID, KindText),
		col(ColGroupID, KindText),
		col(ColCreatedBy, KindText),
		col(ColCreatedAt, KindTimestamp),
	}, cols...)
}

var schema = map[string]*Table{}

func register(t *Table) {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c.Name] = i
	}
	schema[t.Name] = t
}

func init() {
	register(&Table{Name: TableGroups, Columns: []Column{
		col(ColID, KindText),
		col("name", KindText),
		col(ColCreatedBy, KindText),
		col(ColCreatedAt, KindTimestamp),
	}})
	register(&Table{Name: TableMembers, Columns: scoped(
		col("user_id", KindText),
		col("display_name", KindText),
		col("email", KindText),
		col("role", KindText),
	), Unique: [][]string{{ColGroupID, "user_id"}}})
	register(&Table{Name: TableInvites, Columns: scoped(
		col("email", KindText),
		col("secret_hash", KindText),
		col("expires_at", KindTimestamp),
		nullable("accepted_at", KindTimestamp),
		nullable("accepted_by", KindText),
	)})
	register(&Table{Name: TableExpenses, Columns: scoped(
		col("description", KindText),
		col("amount", KindDecimal),
		col("category", KindText),
		col("paid_by", KindText),
		col("date", KindDate),
		nullable("card_name", KindText),
	)})
	register(&Table{Name: TableIncome, Columns: scoped(
		col("description", KindText),
		col("amount", KindDecimal),
		col("category", KindText),
		col("date", KindDate),
	)})
	register(&Table{Name: TableRecurringIncome, Columns: scoped(
		col("description", KindText),
		col("amount", KindDecimal),
		col("day_of_month", KindInt),
		col("active", KindBool),
		col("start_date", KindDate),
		nullable("end_date", KindDate),
	)})
	register(&Table{Name: TableTasks, Columns: scoped(
		col("title", KindText),
		col("description", KindText),
		nullable("assigned_to", KindText),
		nullable("due_date", KindDate),
		col("completed", KindBool),
		nullable("completed_at", KindTimestamp),
	)})
	register(&Table{Name: TableCardConfigs, Columns: scoped(
		col("card_name", KindText),
		col("closing_day", KindInt),
		col("due_day", KindInt),
		nullable("credit_limit", KindDecimal),
	), Unique: [][]string{{ColGroupID, "card_name"}}})
	register(&Table{Name: TableCardBillPayments, Columns: scoped(
		col("card_name", KindText),
		col("month", KindInt),
		col("year", KindInt),
		col("is_paid", KindBool),
		nullable("paid_at", KindTimestamp),
		nullable("paid_by", KindText),
		col("amount", KindDecimal),
	), Unique: [][]string{{ColGroupID, "card_name", "month", "year"}}})
	register(&Table{Name: TableInstallments, Columns: scoped(
		col("transaction_id", KindText),
		col("sequence_number", KindInt),
		col("total_installments", KindInt),
		col("amount", KindDecimal),
		col("due_month", KindInt),
		col("due_year", KindInt),
		col("paid", KindBool),
		nullable("paid_at", KindTimestamp),
	), Unique: [][]string{{"transaction_id", "sequence_number"}}})
}

// Lookup returns the table definition or ErrUnknownTable.
func Lookup(name string) (*Table, error) {
	t, ok := schema[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns every registered table definition.
func Tables() []*Table {
	out := make([]*Table, 0, len(schema))
	for _, t := range schema {
		out = append(out, t)
	}
	return out
}

// Normalize checks every column of row against the table and converts its
// value to the canonical representation for the column kind.
func (t *Table) Normalize(row Row) (Row, error) {
	out := make(Row, len(row))
	for name, v := range row {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, name)
		}
		nv, err := c.Normalize(v)
		if err != nil {
			return nil, &core.DecodeError{Table: t.Name, Field: name, Err: err}
		}
		out[name] = nv
	}
	return out, nil
}

// Normalize converts a driver or JSON value to the column's canonical value.
func (c Column) Normalize(v any) (any, error) {
	if v == nil {
		if !c.Nullable {
			return nil, fmt.Errorf("null in non-nullable %s column", c.Kind)
		}
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch c.Kind {
	case KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt:
		return toInt(v)
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int32:
			return x != 0, nil
		case int:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case KindDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case string:
			return decimal.NewFromString(x)
		case json.Number:
			return decimal.NewFromString(x.String())
		case float64:
			return decimal.NewFromFloat(x), nil
		case int64:
			return decimal.NewFromInt(x), nil
		case int:
			return decimal.NewFromInt(int64(x)), nil
		}
	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return parseTimestamp(x)
		}
	case KindDate:
		switch x := v.(type) {
		case core.Date:
			return x, nil
		case time.Time:
			return core.DateOf(x), nil
		case string:
			if d, err := core.ParseDate(x); err == nil {
				return d, nil
			}
			ts, err := parseTimestamp(x)
			if err != nil {
				return nil, err
			}
			return core.DateOf(ts), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, c.Kind)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral number %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as int", v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
