// Package sqlgw implements the gateway on database/sql for SQLite and
// PostgreSQL.
package sqlgw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cassa/internal/gateway"
)

// Gateway runs gateway operations against a SQL database.
type Gateway struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (creating if needed) the database file at path and
// applies migrations.
func OpenSQLite(ctx context.Context, path string) (*Gateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return open(ctx, DriverSQLite, dsn, sqliteDialect{})
}

// OpenPostgres connects to the database at url and applies migrations.
func OpenPostgres(ctx context.Context, url string) (*Gateway, error) {
	return open(ctx, DriverPostgres, url, postgresDialect{})
}

func open(ctx context.Context, driver, dsn string, d dialect) (*Gateway, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time keeps SQLite from returning SQLITE_BUSY under load
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Gateway{db: db, d: d}, nil
}

func (g *Gateway) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}

// Ping checks the connection; used by readiness probes.
func (g *Gateway) Ping(ctx context.Context) error { return g.db.PingContext(ctx) }

func quote(ident string) string { return `"` + ident + `"` }

func selectList(t *gateway.Table) string {
	cols := t.ColumnNames()
	for i, c := range cols {
		cols[i] = quote(c)
	}
	return strings.Join(cols, ", ")
}

// args accumulates bound parameters and hands out placeholders.
type args struct {
	d    dialect
	vals []any
}

func (a *args) add(kind gateway.Kind, v any) string {
	a.vals = append(a.vals, a.d.bind(kind, v))
	return a.d.placeholder(len(a.vals))
}

func (g *Gateway) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	t, rq, err := q.Resolve()
	if err != nil {
		return nil, err
	}

	a := &args{d: g.d}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList(t), quote(t.Name))
	for i, f := range rq.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		c, _ := t.Column(f.Column)
		if f.Value == nil {
			if f.Op != gateway.OpEq {
				return nil, fmt.Errorf("filter %s.%s: null only supports equality", t.Name, f.Column)
			}
			fmt.Fprintf(&b, "%s IS NULL", quote(f.Column))
			continue
		}
		fmt.Fprintf(&b, "%s %s %s", quote(f.Column), f.Op, a.add(c.Kind, f.Value))
	}
	for i, o := range rq.Orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(quote(o.Column))
		if o.Desc {
			b.WriteString(" DESC")
		}
	}

	rows, err := g.db.QueryContext(ctx, b.String(), a.vals...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, translate(err))
	}
	defer rows.Close()

	var out []gateway.Row
	for rows.Next() {
		r, err := scanRow(t, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, translate(err))
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(t *gateway.Table, s scanner) (gateway.Row, error) {
	vals := make([]any, len(t.Columns))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := s.Scan(ptrs...); err != nil {
		return nil, err
	}
	raw := make(gateway.Row, len(vals))
	for i, c := range t.Columns {
		raw[c.Name] = vals[i]
	}
	return t.Normalize(raw)
}

func (g *Gateway) Insert(ctx context.Context, table string, rows []gateway.Row) ([]gateway.Row, error) {
	t, err := gateway.Lookup(table)
	if err != nil {
		return nil, err
	}
	normalized := make([]gateway.Row, 0, len(rows))
	for _, r := range rows {
		n, err := t.Normalize(r)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert %s: %w", table, err)
	}
	defer tx.Rollback()

	out := make([]gateway.Row, 0, len(normalized))
	for _, n := range normalized {
		stmt, vals := g.insertStmt(t, n)
		r, err := scanRow(t, tx.QueryRowContext(ctx, stmt+" RETURNING "+selectList(t), vals...))
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", table, translate(err))
		}
		out = append(out, r)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert %s: %w", table, translate(err))
	}
	return out, nil
}

func (g *Gateway) insertStmt(t *gateway.Table, n gateway.Row) (string, []any) {
	a := &args{d: g.d}
	var cols, ph []string
	for _, c := range t.Columns {
		v, ok := n[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, quote(c.Name))
		if v == nil {
			ph = append(ph, "NULL")
			continue
		}
		ph = append(ph, a.add(c.Kind, v))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(t.Name), strings.Join(cols, ", "), strings.Join(ph, ", "))
	return stmt, a.vals
}

func (g *Gateway) Update(ctx context.Context, table, id string, fields gateway.Row, conds ...gateway.Filter) (gateway.Row, error) {
	t, err := gateway.Lookup(table)
	if err != nil {
		return nil, err
	}
	n, err := t.Normalize(fields)
	if err != nil {
		return nil, err
	}

	where, err := gateway.ResolveConds(table, conds)
	if err != nil {
		return nil, err
	}

	cols := t.UpdatableColumns(n)
	if len(cols) == 0 {
		q := gateway.From(table).Eq(gateway.ColID, id)
		q.Filters = append(q.Filters, where...)
		rows, err := g.Select(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("update %s %s: %w", table, id, gateway.ErrNotFound)
		}
		return rows[0], nil
	}

	a := &args{d: g.d}
	sets := make([]string, 0, len(cols))
	for _, name := range cols {
		c, _ := t.Column(name)
		if n[name] == nil {
			sets = append(sets, quote(name)+" = NULL")
			continue
		}
		sets = append(sets, quote(name)+" = "+a.add(c.Kind, n[name]))
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		quote(t.Name), strings.Join(sets, ", "), whereID(t, a, id, where), selectList(t))

	r, err := scanRow(t, g.db.QueryRowContext(ctx, stmt, a.vals...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s %s: %w", table, id, gateway.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", table, id, translate(err))
	}
	return r, nil
}

func (g *Gateway) Delete(ctx context.Context, table, id string, conds ...gateway.Filter) error {
	t, err := gateway.Lookup(table)
	if err != nil {
		return err
	}
	where, err := gateway.ResolveConds(table, conds)
	if err != nil {
		return err
	}
	a := &args{d: g.d}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", quote(t.Name), whereID(t, a, id, where))
	if _, err := g.db.ExecContext(ctx, stmt, a.vals...); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, translate(err))
	}
	return nil
}

// whereID renders "id = ? AND <conds>" for a single-row statement.
func whereID(t *gateway.Table, a *args, id string, conds []gateway.Filter) string {
	parts := []string{quote(gateway.ColID) + " = " + a.add(gateway.KindText, id)}
	for _, f := range conds {
		if f.Value == nil {
			parts = append(parts, quote(f.Column)+" IS NULL")
			continue
		}
		c, _ := t.Column(f.Column)
		parts = append(parts, quote(f.Column)+" = "+a.add(c.Kind, f.Value))
	}
	return strings.Join(parts, " AND ")
}

func (g *Gateway) Upsert(ctx context.Context, table string, row gateway.Row, conflict []string) (gateway.Row, error) {
	t, n, err := gateway.CheckUpsert(table, row, conflict)
	if err != nil {
		return nil, err
	}

	stmt, vals := g.insertStmt(t, n)
	keys := make([]string, len(conflict))
	for i, c := range conflict {
		keys[i] = quote(c)
	}
	cols := t.UpdatableColumns(n, conflict...)
	action := "DO NOTHING"
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", quote(c), quote(c))
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	stmt = fmt.Sprintf("%s ON CONFLICT (%s) %s RETURNING %s", stmt, strings.Join(keys, ", "), action, selectList(t))

	r, err := scanRow(t, g.db.QueryRowContext(ctx, stmt, vals...))
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, translate(err))
	}
	return r, nil
}

// translate maps driver constraint violations onto gateway.ErrConflict.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %s", gateway.ErrConflict, pqErr.Message)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %s", gateway.ErrConflict, liteErr.Error())
	}
	return err
}
