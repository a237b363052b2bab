// Package bunsql provides a SQL backend driver built on the bun ORM, serving
// SQLite, MySQL and PostgreSQL through their bun dialects. One driver
// implementation covers all three engines; capability flags tell the adapter
// factory what each dialect stores natively.
package bunsql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.Driver            = (*Driver)(nil)
	_ driven.SchemaInitializer = (*Driver)(nil)
	_ driven.TxRunner          = (*Driver)(nil)
)

// Driver is the bun-backed SQL driver.
type Driver struct {
	root   *bun.DB
	idb    bun.IDB // *bun.DB, or bun.Tx on transaction-scoped copies
	caps   driven.Capabilities
	tables map[string]driven.Table
}

func newDriver(db *bun.DB, caps driven.Capabilities) *Driver {
	return &Driver{root: db, idb: db, caps: caps}
}

// DB exposes the underlying bun handle (for pool tuning and Close).
func (d *Driver) DB() *bun.DB { return d.root }

func (d *Driver) Name() string {
	return "bun/" + d.root.Dialect().Name().String()
}

func (d *Driver) Capabilities() driven.Capabilities { return d.caps }

// InitSchema records the physical schema for DDL generation.
func (d *Driver) InitSchema(_ context.Context, tables []driven.Table) error {
	d.tables = make(map[string]driven.Table, len(tables))
	for _, t := range tables {
		d.tables[t.Name] = t
	}
	return nil
}

// CreateTables creates every registered table if it does not exist yet,
// using the column types of the active dialect.
func (d *Driver) CreateTables(ctx context.Context) error {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := d.root.ExecContext(ctx, d.createTableSQL(d.tables[name])); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	return nil
}

func (d *Driver) Insert(ctx context.Context, model string, values driven.Row) (driven.Row, error) {
	m := map[string]interface{}(values)
	q := d.idb.NewInsert().Model(&m).TableExpr("?", bun.Ident(model))

	if d.root.HasFeature(feature.InsertReturning) || d.root.HasFeature(feature.Returning) {
		var stored map[string]interface{}
		if _, err := q.Returning("*").Exec(ctx, &stored); err != nil {
			return nil, err
		}
		return stored, nil
	}

	// No RETURNING on this dialect: insert, then re-query by the inserted
	// values.
	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}
	return d.SelectOne(ctx, driven.Query{Model: model, Where: valuesPredicate(values)})
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
	sel := d.idb.NewSelect().TableExpr("?", bun.Ident(q.Model))
	sel = sel.ColumnExpr("?.*", bun.Ident(q.Model))

	for _, j := range q.Joins {
		kw := "LEFT JOIN"
		if j.Relation == domain.JoinInner {
			kw = "INNER JOIN"
		}
		sel = sel.Join(kw+" ? ON ?.? = ?.?",
			bun.Ident(j.Model),
			bun.Ident(q.Model), bun.Ident(j.BaseField),
			bun.Ident(j.Model), bun.Ident(j.JoinField))
		for _, col := range j.Columns {
			sel = sel.ColumnExpr("?.? AS ?", bun.Ident(j.Model), bun.Ident(col.Name), bun.Ident(col.Alias))
		}
	}

	and, or := compilePredicate(q.Where, q.Model)
	for _, c := range and {
		sel = sel.Where(c.expr, c.args...)
	}
	if len(or) > 0 {
		sel = sel.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, c := range or {
				sq = sq.WhereOr(c.expr, c.args...)
			}
			return sq
		})
	}

	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		sel = sel.OrderExpr("?.? "+dir, bun.Ident(q.Model), bun.Ident(o.Field))
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sel = sel.Offset(q.Offset)
	}

	var rows []map[string]interface{}
	if err := sel.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]driven.Row, len(rows))
	for i, row := range rows {
		out[i] = driven.Row(row)
	}
	return out, nil
}

func (d *Driver) Update(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (driven.Row, error) {
	q := d.updateQuery(model, where, values)

	if d.root.HasFeature(feature.Returning) {
		var updated map[string]interface{}
		res, err := q.Returning("*").Exec(ctx, &updated)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, domain.ErrNotFound
		}
		return updated, nil
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrNotFound
	}
	// Re-query with updated values patched into equality conditions, since
	// the update may have changed the very fields the predicate matched on.
	return d.SelectOne(ctx, driven.Query{Model: model, Where: patchPredicate(where, values)})
}

func (d *Driver) UpdateMany(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (int64, error) {
	res, err := d.updateQuery(model, where, values).Exec(ctx)
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
	q := d.idb.NewDelete().TableExpr("?", bun.Ident(model))
	and, or := compilePredicate(where, "")
	// Bun refuses DELETE without a WHERE clause.
	q = q.Where("1 = 1")
	for _, c := range and {
		q = q.Where(c.expr, c.args...)
	}
	if len(or) > 0 {
		q = q.WhereGroup(" AND ", func(dq *bun.DeleteQuery) *bun.DeleteQuery {
			for _, c := range or {
				dq = dq.WhereOr(c.expr, c.args...)
			}
			return dq
		})
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Driver) Count(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	sel := d.idb.NewSelect().TableExpr("?", bun.Ident(model))
	and, or := compilePredicate(where, "")
	for _, c := range and {
		sel = sel.Where(c.expr, c.args...)
	}
	if len(or) > 0 {
		sel = sel.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, c := range or {
				sq = sq.WhereOr(c.expr, c.args...)
			}
			return sq
		})
	}
	n, err := sel.Count(ctx)
	return int64(n), err
}

// RunInTransaction runs fn against a driver bound to one database
// transaction; any error rolls it back.
func (d *Driver) RunInTransaction(ctx context.Context, fn func(driven.Driver) error) error {
	if _, ok := d.idb.(bun.Tx); ok {
		// Already transaction-scoped: join the surrounding transaction.
		return fn(d)
	}
	return d.root.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&Driver{root: d.root, idb: tx, caps: d.caps, tables: d.tables})
	})
}

func (d *Driver) updateQuery(model string, where *driven.Predicate, values driven.Row) *bun.UpdateQuery {
	m := map[string]interface{}(values)
	q := d.idb.NewUpdate().Model(&m).TableExpr("?", bun.Ident(model))
	and, or := compilePredicate(where, "")
	// Bun refuses UPDATE without a WHERE clause.
	q = q.Where("1 = 1")
	for _, c := range and {
		q = q.Where(c.expr, c.args...)
	}
	if len(or) > 0 {
		q = q.WhereGroup(" AND ", func(uq *bun.UpdateQuery) *bun.UpdateQuery {
			for _, c := range or {
				uq = uq.WhereOr(c.expr, c.args...)
			}
			return uq
		})
	}
	return q
}

// valuesPredicate builds an equality predicate over scalar inserted values,
// used to re-query the stored row on dialects without RETURNING.
func valuesPredicate(values driven.Row) *driven.Predicate {
	p := &driven.Predicate{}
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if values[col] == nil {
			continue
		}
		p.And = append(p.And, driven.Condition{Field: col, Op: domain.OpEq, Value: values[col]})
	}
	return p
}

// patchPredicate replaces equality condition values for fields the update
// just rewrote.
func patchPredicate(p *driven.Predicate, values driven.Row) *driven.Predicate {
	if p == nil {
		return nil
	}
	patch := func(conds []driven.Condition) []driven.Condition {
		out := make([]driven.Condition, len(conds))
		copy(out, conds)
		for i := range out {
			if out[i].Op != domain.OpEq {
				continue
			}
			if v, ok := values[out[i].Field]; ok {
				out[i].Value = v
			}
		}
		return out
	}
	return &driven.Predicate{And: patch(p.And), Or: patch(p.Or)}
}

// cond is one rendered predicate fragment.
type cond struct {
	expr string
	args []any
}

// compilePredicate renders a compiled predicate into bun where fragments.
// table, when non-empty, qualifies columns for joined queries.
func compilePredicate(p *driven.Predicate, table string) (and, or []cond) {
	if p == nil {
		return nil, nil
	}
	for _, c := range p.And {
		and = append(and, condExpr(c, table))
	}
	for _, c := range p.Or {
		or = append(or, condExpr(c, table))
	}
	return and, or
}

func condExpr(c driven.Condition, table string) cond {
	col := "?"
	args := []any{bun.Ident(c.Field)}
	if table != "" {
		col = "?.?"
		args = []any{bun.Ident(table), bun.Ident(c.Field)}
	}

	switch c.Op {
	case domain.OpEq:
		if c.Value == nil {
			return cond{col + " IS NULL", args}
		}
		return cond{col + " = ?", append(args, c.Value)}
	case domain.OpNe:
		if c.Value == nil {
			return cond{col + " IS NOT NULL", args}
		}
		return cond{col + " <> ?", append(args, c.Value)}
	case domain.OpGt:
		return cond{col + " > ?", append(args, c.Value)}
	case domain.OpGte:
		return cond{col + " >= ?", append(args, c.Value)}
	case domain.OpLt:
		return cond{col + " < ?", append(args, c.Value)}
	case domain.OpLte:
		return cond{col + " <= ?", append(args, c.Value)}
	case domain.OpIn, domain.OpNotIn:
		items, _ := c.Value.([]any)
		if len(items) == 0 {
			if c.Op == domain.OpIn {
				return cond{"1 = 0", nil}
			}
			return cond{"1 = 1", nil}
		}
		op := " IN (?)"
		if c.Op == domain.OpNotIn {
			op = " NOT IN (?)"
		}
		return cond{col + op, append(args, bun.In(items))}
	case domain.OpContains:
		return cond{col + " LIKE ?", append(args, "%"+likeValue(c.Value)+"%")}
	case domain.OpStartsWith:
		return cond{col + " LIKE ?", append(args, likeValue(c.Value)+"%")}
	case domain.OpEndsWith:
		return cond{col + " LIKE ?", append(args, "%"+likeValue(c.Value))}
	}
	// Forward-compatibility escape hatch: hand the operator to the engine.
	return cond{col + " " + string(c.Op) + " ?", append(args, c.Value)}
}

func likeValue(v any) string {
	s := fmt.Sprint(v)
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(s)
}
