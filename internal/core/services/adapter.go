package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.Adapter = (*Adapter)(nil)

// Adapter is the storage adapter factory product: it wires name resolution,
// the transform pipeline, the where-clause compiler, the join resolver and
// the id policy around one backend driver, and exposes the uniform operation
// set the rest of the toolkit programs against.
//
// An Adapter holds no mutable state beyond the immutable registry and
// configuration, so one instance serves any number of concurrent callers.
type Adapter struct {
	reg       *domain.Registry
	driver    driven.Driver
	cfg       Config
	names     nameResolver
	transform transformer
	ids       idPolicy
	log       *slog.Logger
}

// New composes an adapter over the given driver. Drivers implementing
// driven.SchemaInitializer receive the resolved physical schema once, here.
func New(ctx context.Context, reg *domain.Registry, driver driven.Driver, cfg Config) (*Adapter, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", domain.ErrInvalidInput)
	}
	if driver == nil {
		return nil, fmt.Errorf("%w: nil driver", domain.ErrInvalidInput)
	}

	names := nameResolver{reg: reg, plural: cfg.UsePlural}
	a := &Adapter{
		reg:    reg,
		driver: driver,
		cfg:    cfg,
		names:  names,
		transform: transformer{
			caps:  driver.Capabilities(),
			cfg:   cfg,
			names: names,
		},
		ids: idPolicy{
			disabled: cfg.DisableIDGeneration,
			generate: cfg.idGenerator(),
		},
		log: cfg.logger(),
	}

	if si, ok := driver.(driven.SchemaInitializer); ok {
		if err := si.InitSchema(ctx, names.tables()); err != nil {
			return nil, fmt.Errorf("failed to initialize schema on %s: %w", driver.Name(), err)
		}
	}

	// Surface the best-effort transaction mode once, at configuration time.
	if !driver.Capabilities().Transactions {
		a.log.Warn("backend has no transaction support; Transaction degrades to sequential execution",
			"backend", driver.Name())
	}
	return a, nil
}

// scoped returns a copy of the adapter bound to a transactional driver.
func (a *Adapter) scoped(driver driven.Driver) *Adapter {
	s := *a
	s.driver = driver
	return &s
}

// Create applies the id policy and the input transform, stores the record and
// returns it in its full logical shape (or projected to selectFields).
func (a *Adapter) Create(ctx context.Context, model string, data driving.Record, selectFields ...string) (driving.Record, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return nil, err
	}
	data = a.ids.apply(m, data)
	data = fillCreateDefaults(m, data)
	row, err := a.transform.input(m, data)
	if err != nil {
		return nil, err
	}
	stored, err := a.driver.Insert(ctx, a.names.modelName(m), row)
	if err != nil {
		return nil, err
	}
	a.log.Debug("create", "model", model, "backend", a.driver.Name())
	return a.transform.output(m, stored, selectFields)
}

// FindOne returns the first matching record or domain.ErrNotFound.
func (a *Adapter) FindOne(ctx context.Context, model string, where domain.Where, opts *driving.FindOptions) (driving.Record, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return nil, err
	}
	o := normalizeOpts(opts)
	p, err := a.compileWhere(m, where)
	if err != nil {
		return nil, err
	}

	if len(o.Join) > 0 {
		joins, plans, err := a.compileJoins(m, o.Join)
		if err != nil {
			return nil, err
		}
		// One base record can span many flat rows, so fetch a page and group.
		rows, err := a.driver.SelectMany(ctx, driven.Query{
			Model: a.names.modelName(m),
			Where: p,
			Joins: joins,
			Limit: a.cfg.findLimit(),
		})
		if err != nil {
			return nil, err
		}
		records, err := a.resolveJoinRows(m, plans, rows, o.Select)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, domain.ErrNotFound
		}
		return records[0], nil
	}

	row, err := a.driver.SelectOne(ctx, driven.Query{
		Model: a.names.modelName(m),
		Where: p,
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	return a.transform.output(m, row, o.Select)
}

// FindMany returns every matching record, bounded by the default limit when
// the caller gives none. A non-zero offset with no explicit sort is ordered
// by the identifier so pagination stays stable.
func (a *Adapter) FindMany(ctx context.Context, model string, where domain.Where, opts *driving.FindOptions) ([]driving.Record, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return nil, err
	}
	o := normalizeOpts(opts)
	p, err := a.compileWhere(m, where)
	if err != nil {
		return nil, err
	}

	limit := o.Limit
	if limit <= 0 {
		limit = a.cfg.findLimit()
	}
	orderBy, err := a.compileSort(m, o.SortBy)
	if err != nil {
		return nil, err
	}
	if o.Offset > 0 && len(orderBy) == 0 {
		orderBy = []driven.Order{{Field: a.names.idColumn(m)}}
	}

	q := driven.Query{
		Model:   a.names.modelName(m),
		Where:   p,
		Limit:   limit,
		Offset:  o.Offset,
		OrderBy: orderBy,
	}

	if len(o.Join) > 0 {
		joins, plans, err := a.compileJoins(m, o.Join)
		if err != nil {
			return nil, err
		}
		q.Joins = joins
		rows, err := a.driver.SelectMany(ctx, q)
		if err != nil {
			return nil, err
		}
		return a.resolveJoinRows(m, plans, rows, o.Select)
	}

	rows, err := a.driver.SelectMany(ctx, q)
	if err != nil {
		return nil, err
	}
	records := make([]driving.Record, 0, len(rows))
	for _, row := range rows {
		record, err := a.transform.output(m, row, o.Select)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Update transforms the payload, applies it to the matching record and
// returns the updated record, or domain.ErrNotFound.
func (a *Adapter) Update(ctx context.Context, model string, where domain.Where, update driving.Record) (driving.Record, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return nil, err
	}
	p, err := a.compileWhere(m, where)
	if err != nil {
		return nil, err
	}
	row, err := a.transform.input(m, update)
	if err != nil {
		return nil, err
	}
	updated, err := a.driver.Update(ctx, a.names.modelName(m), p, row)
	if err != nil {
		return nil, err
	}
	a.log.Debug("update", "model", model, "backend", a.driver.Name())
	return a.transform.output(m, updated, nil)
}

// UpdateMany applies the payload to every matching record.
func (a *Adapter) UpdateMany(ctx context.Context, model string, where domain.Where, update driving.Record) (int64, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return 0, err
	}
	p, err := a.compileWhere(m, where)
	if err != nil {
		return 0, err
	}
	row, err := a.transform.input(m, update)
	if err != nil {
		return 0, err
	}
	return a.driver.UpdateMany(ctx, a.names.modelName(m), p, row)
}

// Delete removes the matching record. Deleting a record that is already gone
// is not an error.
func (a *Adapter) Delete(ctx context.Context, model string, where domain.Where) error {
	m, err := a.reg.Model(model)
	if err != nil {
		return err
	}
	p, err := a.compileWhere(m, where)
	if err != nil {
		return err
	}
	err = a.driver.Delete(ctx, a.names.modelName(m), p)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteMany removes every matching record and returns the count.
func (a *Adapter) DeleteMany(ctx context.Context, model string, where domain.Where) (int64, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return 0, err
	}
	p, err := a.compileWhere(m, where)
	if err != nil {
		return 0, err
	}
	n, err := a.driver.DeleteMany(ctx, a.names.modelName(m), p)
	if err != nil {
		return 0, err
	}
	a.log.Debug("delete many", "model", model, "count", n)
	return n, nil
}

// Count returns the number of matching records.
func (a *Adapter) Count(ctx context.Context, model string, where domain.Where) (int64, error) {
	m, err := a.reg.Model(model)
	if err != nil {
		return 0, err
	}
	p, err := a.compileWhere(m, where)
	if err != nil {
		return 0, err
	}
	return a.driver.Count(ctx, a.names.modelName(m), p)
}

// Transaction runs fn inside one atomic unit of work when the backend
// supports it. Every operation on the adapter passed to fn shares the same
// transactional context; an error rolls everything back. Without backend
// support, fn runs sequentially against this adapter with no atomicity.
func (a *Adapter) Transaction(ctx context.Context, fn func(driving.Adapter) error) error {
	if runner, ok := a.driver.(driven.TxRunner); ok {
		return runner.RunInTransaction(ctx, func(tx driven.Driver) error {
			return fn(a.scoped(tx))
		})
	}
	return fn(a)
}

func (a *Adapter) compileSort(m *domain.Model, sortBy []domain.SortField) ([]driven.Order, error) {
	if len(sortBy) == 0 {
		return nil, nil
	}
	orders := make([]driven.Order, 0, len(sortBy))
	for _, s := range sortBy {
		field, err := a.transform.transportKey(m, s.Field)
		if err != nil {
			return nil, err
		}
		orders = append(orders, driven.Order{Field: field, Desc: s.Desc})
	}
	return orders, nil
}

func normalizeOpts(opts *driving.FindOptions) driving.FindOptions {
	if opts == nil {
		return driving.FindOptions{}
	}
	return *opts
}
