// Package postgres provides the SQL backend driver for PostgreSQL using
// database/sql with lib/pq. Predicates, joins and ordering are pushed down
// into SQL; the adapter factory owns every name and value translation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.Driver            = (*Driver)(nil)
	_ driven.SchemaInitializer = (*Driver)(nil)
	_ driven.TxRunner          = (*Driver)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same query code
// serves plain and transaction-scoped drivers.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver is the PostgreSQL backend.
type Driver struct {
	db     *DB // nil on transaction-scoped copies
	q      querier
	tables map[string]driven.Table
}

// New creates a driver over an established connection pool.
func New(db *DB) *Driver {
	return &Driver{db: db, q: db.DB}
}

func (d *Driver) Name() string { return "postgres" }

func (d *Driver) Capabilities() driven.Capabilities {
	// Structured values travel as serialized text into JSONB columns; the
	// parameter protocol has no native representation for them.
	return driven.Capabilities{Booleans: true, Dates: true, JSON: false, Transactions: true}
}

// InitSchema records the physical schema for DDL generation.
func (d *Driver) InitSchema(_ context.Context, tables []driven.Table) error {
	d.tables = make(map[string]driven.Table, len(tables))
	for _, t := range tables {
		d.tables[t.Name] = t
	}
	return nil
}

// CreateTables creates every registered table if it does not exist yet.
// This is idempotent - safe to run multiple times.
func (d *Driver) CreateTables(ctx context.Context) error {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := d.q.ExecContext(ctx, createTableSQL(d.tables[name])); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	return nil
}

func (d *Driver) Insert(ctx context.Context, model string, values driven.Row) (driven.Row, error) {
	cols := sortedKeys(values)
	args := make([]any, 0, len(cols))
	quoted := make([]string, 0, len(cols))
	holders := make([]string, 0, len(cols))
	for i, col := range cols {
		quoted = append(quoted, pq.QuoteIdentifier(col))
		holders = append(holders, fmt.Sprintf("$%d", i+1))
		args = append(args, values[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pq.QuoteIdentifier(model), strings.Join(quoted, ", "), strings.Join(holders, ", "))

	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stored, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", model)
	}
	return stored[0], nil
}

func (d *Driver) SelectOne(ctx context.Context, q driven.Query) (driven.Row, error) {
	q.Limit = 1
	rows, err := d.SelectMany(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (d *Driver) SelectMany(ctx context.Context, q driven.Query) ([]driven.Row, error) {
	var args []any
	table := pq.QuoteIdentifier(q.Model)

	selectList := []string{table + ".*"}
	var joinSQL strings.Builder
	for _, j := range q.Joins {
		joined := pq.QuoteIdentifier(j.Model)
		kw := "LEFT JOIN"
		if j.Relation == domain.JoinInner {
			kw = "INNER JOIN"
		}
		fmt.Fprintf(&joinSQL, " %s %s ON %s.%s = %s.%s",
			kw, joined,
			table, pq.QuoteIdentifier(j.BaseField),
			joined, pq.QuoteIdentifier(j.JoinField))
		for _, col := range j.Columns {
			selectList = append(selectList,
				fmt.Sprintf("%s.%s AS %s", joined, pq.QuoteIdentifier(col.Name), pq.QuoteIdentifier(col.Alias)))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(selectList, ", "), table)
	sb.WriteString(joinSQL.String())
	if cond := whereSQL(q.Where, &args, table+"."); cond != "" {
		sb.WriteString(" WHERE " + cond)
	}
	if len(q.OrderBy) > 0 {
		terms := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, table+"."+pq.QuoteIdentifier(o.Field)+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := d.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (d *Driver) Update(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (driven.Row, error) {
	query, args := updateSQL(model, where, values)
	rows, err := d.q.QueryContext(ctx, query+" RETURNING *", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	updated, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, domain.ErrNotFound
	}
	return updated[0], nil
}

func (d *Driver) UpdateMany(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (int64, error) {
	query, args := updateSQL(model, where, values)
	res, err := d.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Driver) Delete(ctx context.Context, model string, where *driven.Predicate) error {
	_, err := d.DeleteMany(ctx, model, where)
	return err
}

func (d *Driver) DeleteMany(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	var args []any
	query := "DELETE FROM " + pq.QuoteIdentifier(model)
	if cond := whereSQL(where, &args, ""); cond != "" {
		query += " WHERE " + cond
	}
	res, err := d.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Driver) Count(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	var args []any
	query := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(model)
	if cond := whereSQL(where, &args, ""); cond != "" {
		query += " WHERE " + cond
	}
	var n int64
	if err := d.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// RunInTransaction runs fn against a driver bound to one database
// transaction; any error rolls it back.
func (d *Driver) RunInTransaction(ctx context.Context, fn func(driven.Driver) error) error {
	if d.db == nil {
		// Already transaction-scoped: join the surrounding transaction.
		return fn(d)
	}
	return d.db.Transaction(ctx, func(tx *sql.Tx) error {
		return fn(&Driver{q: tx, tables: d.tables})
	})
}

func updateSQL(model string, where *driven.Predicate, values driven.Row) (string, []any) {
	cols := sortedKeys(values)
	var args []any
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		args = append(args, values[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s", pq.QuoteIdentifier(model), strings.Join(sets, ", "))
	if cond := whereSQL(where, &args, ""); cond != "" {
		query += " WHERE " + cond
	}
	return query, args
}

// scanRows reads every row into a generic map. Text and JSONB values arrive
// as []byte and are exposed as strings.
func scanRows(rows *sql.Rows) ([]driven.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []driven.Row
	for rows.Next() {
		ptrs := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = new(any)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(driven.Row, len(cols))
		for i, col := range cols {
			v := *(ptrs[i].(*any))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sortedKeys(values driven.Row) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
