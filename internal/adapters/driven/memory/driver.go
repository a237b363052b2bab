// Package memory provides an in-memory backend driver on top of
// hashicorp/go-memdb. MVCC transactions give the memory backend real
// commit/abort semantics, which makes it the reference backend for tests.
package memory

import (
	"context"
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/driverutil"
)

// Verify interface compliance
var (
	_ driven.Driver            = (*Driver)(nil)
	_ driven.SchemaInitializer = (*Driver)(nil)
	_ driven.TxRunner          = (*Driver)(nil)
)

// pkKey is the surrogate primary key memdb indexes rows by. Records created
// with identifier generation disabled have no identifier of their own, so
// the driver keys every row by an internal surrogate instead. The key never
// leaves the driver.
const pkKey = "__pk"

// Driver is the in-memory backend.
type Driver struct {
	db     *memdb.MemDB
	tables map[string]driven.Table

	// txn is set on transaction-scoped copies and shared by all their calls
	txn *memdb.Txn

	genPK func() string
}

// New creates an empty in-memory driver. The schema arrives through
// InitSchema when the adapter factory is constructed.
func New() *Driver {
	return &Driver{genPK: newSurrogateKey}
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Capabilities() driven.Capabilities {
	return driven.Capabilities{Booleans: true, Dates: true, JSON: true, Transactions: true}
}

// InitSchema builds one memdb table per model, indexed by the surrogate key.
func (d *Driver) InitSchema(_ context.Context, tables []driven.Table) error {
	schema := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(tables))}
	d.tables = make(map[string]driven.Table, len(tables))
	for _, t := range tables {
		d.tables[t.Name] = t
		schema.Tables[t.Name] = &memdb.TableSchema{
			Name: t.Name,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: rowKeyIndexer{},
				},
			},
		}
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return fmt.Errorf("failed to build memdb schema: %w", err)
	}
	d.db = db
	return nil
}

func (d *Driver) Insert(_ context.Context, model string, values driven.Row) (driven.Row, error) {
	t, err := d.table(model)
	if err != nil {
		return nil, err
	}
	txn, done := d.writer()

	row := cloneRow(values)
	if id, ok := row[t.IDColumn].(string); ok && id != "" {
		existing, err := d.findByColumn(txn, model, t.IDColumn, id)
		if err != nil {
			return nil, done(err)
		}
		if existing != nil {
			return nil, done(fmt.Errorf("%w: %s %q", domain.ErrAlreadyExists, model, id))
		}
		row[pkKey] = id
	} else {
		row[pkKey] = d.genPK()
	}

	if err := txn.Insert(model, row); err != nil {
		return nil, done(err)
	}
	if err := done(nil); err != nil {
		return nil, err
	}
	return exportRow(row), nil
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

func (d *Driver) SelectMany(_ context.Context, q driven.Query) ([]driven.Row, error) {
	txn, release := d.reader()
	defer release()

	rows, err := d.matching(txn, q.Model, q.Where)
	if err != nil {
		return nil, err
	}
	out := make([]driven.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, exportRow(row))
	}

	if len(q.Joins) > 0 {
		out, err = driverutil.ExpandJoins(out, q.Joins, func(model string) ([]driven.Row, error) {
			related, err := d.matching(txn, model, nil)
			if err != nil {
				return nil, err
			}
			exported := make([]driven.Row, 0, len(related))
			for _, r := range related {
				exported = append(exported, exportRow(r))
			}
			return exported, nil
		})
		if err != nil {
			return nil, err
		}
	}

	driverutil.SortRows(out, q.OrderBy)
	return driverutil.Page(out, q.Limit, q.Offset), nil
}

func (d *Driver) Update(_ context.Context, model string, where *driven.Predicate, values driven.Row) (driven.Row, error) {
	txn, done := d.writer()
	rows, err := d.matching(txn, model, where)
	if err != nil {
		return nil, done(err)
	}
	if len(rows) == 0 {
		return nil, done(domain.ErrNotFound)
	}
	var first driven.Row
	for i, row := range rows {
		updated := cloneRow(row)
		for k, v := range values {
			updated[k] = v
		}
		if err := txn.Insert(model, updated); err != nil {
			return nil, done(err)
		}
		if i == 0 {
			first = exportRow(updated)
		}
	}
	if err := done(nil); err != nil {
		return nil, err
	}
	return first, nil
}

func (d *Driver) UpdateMany(_ context.Context, model string, where *driven.Predicate, values driven.Row) (int64, error) {
	txn, done := d.writer()
	rows, err := d.matching(txn, model, where)
	if err != nil {
		return 0, done(err)
	}
	for _, row := range rows {
		updated := cloneRow(row)
		for k, v := range values {
			updated[k] = v
		}
		if err := txn.Insert(model, updated); err != nil {
			return 0, done(err)
		}
	}
	if err := done(nil); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (d *Driver) Delete(ctx context.Context, model string, where *driven.Predicate) error {
	_, err := d.DeleteMany(ctx, model, where)
	return err
}

func (d *Driver) DeleteMany(_ context.Context, model string, where *driven.Predicate) (int64, error) {
	txn, done := d.writer()
	rows, err := d.matching(txn, model, where)
	if err != nil {
		return 0, done(err)
	}
	for _, row := range rows {
		if err := txn.Delete(model, row); err != nil {
			return 0, done(err)
		}
	}
	if err := done(nil); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (d *Driver) Count(_ context.Context, model string, where *driven.Predicate) (int64, error) {
	txn, release := d.reader()
	defer release()
	rows, err := d.matching(txn, model, where)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// RunInTransaction runs fn against a driver copy bound to one write
// transaction. An error aborts the whole transaction.
func (d *Driver) RunInTransaction(_ context.Context, fn func(driven.Driver) error) error {
	if d.txn != nil {
		// Already inside a transaction: join it.
		return fn(d)
	}
	txn := d.db.Txn(true)
	scoped := &Driver{db: d.db, tables: d.tables, txn: txn, genPK: d.genPK}
	if err := fn(scoped); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// matching returns the stored rows satisfying the predicate, in surrogate key
// order.
func (d *Driver) matching(txn *memdb.Txn, model string, where *driven.Predicate) ([]driven.Row, error) {
	if _, err := d.table(model); err != nil {
		return nil, err
	}
	it, err := txn.Get(model, "id")
	if err != nil {
		return nil, err
	}
	var rows []driven.Row
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(driven.Row)
		ok, err := driverutil.Match(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (d *Driver) findByColumn(txn *memdb.Txn, model, column, value string) (driven.Row, error) {
	rows, err := d.matching(txn, model, &driven.Predicate{
		And: []driven.Condition{{Field: column, Op: domain.OpEq, Value: value}},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *Driver) table(model string) (driven.Table, error) {
	t, ok := d.tables[model]
	if !ok {
		return driven.Table{}, fmt.Errorf("%w: no table %q", domain.ErrUnknownModel, model)
	}
	return t, nil
}

// reader returns the transaction to read from and a release func.
func (d *Driver) reader() (*memdb.Txn, func()) {
	if d.txn != nil {
		return d.txn, func() {}
	}
	txn := d.db.Txn(false)
	return txn, txn.Abort
}

// writer returns the transaction to write through and a completion func that
// commits on nil and aborts on error. Inside RunInTransaction the outer
// transaction stays open either way.
func (d *Driver) writer() (*memdb.Txn, func(error) error) {
	if d.txn != nil {
		return d.txn, func(err error) error { return err }
	}
	txn := d.db.Txn(true)
	return txn, func(err error) error {
		if err != nil {
			txn.Abort()
			return err
		}
		txn.Commit()
		return nil
	}
}

func cloneRow(row driven.Row) driven.Row {
	out := make(driven.Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	return out
}

// exportRow copies a stored row without the surrogate key.
func exportRow(row driven.Row) driven.Row {
	out := make(driven.Row, len(row))
	for k, v := range row {
		if k == pkKey {
			continue
		}
		out[k] = v
	}
	return out
}
