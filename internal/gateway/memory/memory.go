// Package memory provides an in-process gateway. It backs the memory data
// backend and serves as the injected fake in repository tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
)

// Operation names accepted by Fail.
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpsert = "upsert"
)

type table struct {
	rows  map[string]gateway.Row
	order []string // insertion order
}

type fault struct {
	table string
	op    string
	err   error
}

// Gateway is a mutex-guarded set of in-memory tables.
type Gateway struct {
	mu     sync.Mutex
	tables map[string]*table
	faults []fault
	calls  map[string]int
}

// New returns an empty in-memory gateway.
func New() *Gateway {
	return &Gateway{
		tables: make(map[string]*table),
		calls:  make(map[string]int),
	}
}

// Fail makes the next call of op on tbl return err. An empty tbl matches any table.
func (g *Gateway) Fail(tbl, op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = append(g.faults, fault{table: tbl, op: op, err: err})
}

// Calls returns how many times op was invoked on tbl, failures included.
func (g *Gateway) Calls(tbl, op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[tbl+"/"+op]
}

// Len returns the number of rows stored in tbl.
func (g *Gateway) Len(tbl string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tables[tbl]; ok {
		return len(t.rows)
	}
	return 0
}

// begin records the call and pops a matching injected fault. Callers hold g.mu.
func (g *Gateway) begin(ctx context.Context, tbl, op string) error {
	g.calls[tbl+"/"+op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, f := range g.faults {
		if f.op == op && (f.table == "" || f.table == tbl) {
			g.faults = append(g.faults[:i], g.faults[i+1:]...)
			return f.err
		}
	}
	return nil
}

func (g *Gateway) table(name string) *table {
	t, ok := g.tables[name]
	if !ok {
		t = &table{rows: make(map[string]gateway.Row)}
		g.tables[name] = t
	}
	return t
}

func (g *Gateway) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, q.Table, OpSelect); err != nil {
		return nil, err
	}
	_, rq, err := q.Resolve()
	if err != nil {
		return nil, err
	}

	t := g.table(q.Table)
	out := make([]gateway.Row, 0, len(t.rows))
	for _, id := range t.order {
		if r := t.rows[id]; rq.Match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rq.Less(out[i], out[j]) })
	return out, nil
}

func (g *Gateway) Insert(ctx context.Context, tbl string, rows []gateway.Row) ([]gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, tbl, OpInsert); err != nil {
		return nil, err
	}
	def, err := gateway.Lookup(tbl)
	if err != nil {
		return nil, err
	}

	t := g.table(tbl)
	staged := make([]gateway.Row, 0, len(rows))
	for _, r := range rows {
		n, err := def.Normalize(r)
		if err != nil {
			return nil, err
		}
		if n.ID() == "" {
			return nil, fmt.Errorf("insert %s: missing id", tbl)
		}
		if err := g.checkUnique(def, t, n, staged, ""); err != nil {
			return nil, err
		}
		staged = append(staged, fill(def, n))
	}

	out := make([]gateway.Row, 0, len(staged))
	for _, n := range staged {
		t.rows[n.ID()] = n
		t.order = append(t.order, n.ID())
		out = append(out, n.Clone())
	}
	return out, nil
}

func (g *Gateway) Update(ctx context.Context, tbl, id string, fields gateway.Row, conds ...gateway.Filter) (gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, tbl, OpUpdate); err != nil {
		return nil, err
	}
	def, err := gateway.Lookup(tbl)
	if err != nil {
		return nil, err
	}
	n, err := def.Normalize(fields)
	if err != nil {
		return nil, err
	}
	where, err := gateway.ResolveConds(tbl, conds)
	if err != nil {
		return nil, err
	}

	t := g.table(tbl)
	cur, ok := t.rows[id]
	if !ok || !(gateway.Query{Filters: where}).Match(cur) {
		return nil, fmt.Errorf("update %s %s: %w", tbl, id, gateway.ErrNotFound)
	}
	next := cur.Clone()
	for _, c := range def.UpdatableColumns(n) {
		next[c] = n[c]
	}
	if err := g.checkUnique(def, t, next, nil, id); err != nil {
		return nil, err
	}
	t.rows[id] = next
	return next.Clone(), nil
}

func (g *Gateway) Delete(ctx context.Context, tbl, id string, conds ...gateway.Filter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, tbl, OpDelete); err != nil {
		return err
	}
	if _, err := gateway.Lookup(tbl); err != nil {
		return err
	}
	where, err := gateway.ResolveConds(tbl, conds)
	if err != nil {
		return err
	}
	t := g.table(tbl)
	if cur, ok := t.rows[id]; !ok || !(gateway.Query{Filters: where}).Match(cur) {
		return nil
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (g *Gateway) Upsert(ctx context.Context, tbl string, row gateway.Row, conflict []string) (gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, tbl, OpUpsert); err != nil {
		return nil, err
	}
	def, n, err := gateway.CheckUpsert(tbl, row, conflict)
	if err != nil {
		return nil, err
	}

	t := g.table(tbl)
	for _, id := range t.order {
		cur := t.rows[id]
		if !sameKey(cur, n, conflict) {
			continue
		}
		next := cur.Clone()
		for _, c := range def.UpdatableColumns(n, conflict...) {
			next[c] = n[c]
		}
		t.rows[id] = next
		return next.Clone(), nil
	}

	if n.ID() == "" {
		return nil, fmt.Errorf("upsert %s: missing id", tbl)
	}
	if err := g.checkUnique(def, t, n, nil, ""); err != nil {
		return nil, err
	}
	n = fill(def, n)
	t.rows[n.ID()] = n
	t.order = append(t.order, n.ID())
	return n.Clone(), nil
}

func (g *Gateway) Close() error { return nil }

// checkUnique rejects r when it collides on id or any unique key with a
// stored row or a row staged in the same batch. self names the stored row r
// replaces, if any.
func (g *Gateway) checkUnique(def *gateway.Table, t *table, r gateway.Row, staged []gateway.Row, self string) error {
	check := func(o gateway.Row) error {
		if o.ID() == r.ID() {
			return fmt.Errorf("%w: %s.id=%s", gateway.ErrConflict, def.Name, r.ID())
		}
		for _, key := range def.Unique {
			if sameKey(o, r, key) {
				return fmt.Errorf("%w: %s(%s)", gateway.ErrConflict, def.Name, strings.Join(key, ","))
			}
		}
		return nil
	}
	for id, o := range t.rows {
		if id == self {
			continue
		}
		if err := check(o); err != nil {
			return err
		}
	}
	for _, o := range staged {
		if err := check(o); err != nil {
			return err
		}
	}
	return nil
}

func sameKey(a, b gateway.Row, cols []string) bool {
	for _, c := range cols {
		if a[c] == nil || b[c] == nil || gateway.Compare(a[c], b[c]) != 0 {
			return false
		}
	}
	return true
}

// fill adds explicit nils for absent columns so stored rows carry every column.
func fill(def *gateway.Table, r gateway.Row) gateway.Row {
	for _, c := range def.Columns {
		if _, ok := r[c.Name]; !ok {
			r[c.Name] = zero(c)
		}
	}
	return r
}

func zero(c gateway.Column) any {
	if c.Nullable {
		return nil
	}
	switch c.Kind {
	case gateway.KindInt:
		return int64(0)
	case gateway.KindBool:
		return false
	case gateway.KindDecimal:
		return decimal.Zero
	case gateway.KindTimestamp:
		return time.Time{}
	case gateway.KindDate:
		return core.Date{}
	}
	return ""
}
