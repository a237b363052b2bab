// Package redis provides a document-store backend driver over Redis. Each
// record lives as a JSON document at <table>:<key> with a per-table id set
// for enumeration. Redis has no multi-statement transactions in this shape,
// so the adapter's Transaction degrades to sequential execution.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/driverutil"
)

// Verify interface compliance
var (
	_ driven.Driver            = (*Driver)(nil)
	_ driven.SchemaInitializer = (*Driver)(nil)
)

// pkKey is the surrogate key a document is stored under when the record has
// no identifier of its own. It never leaves the driver.
const pkKey = "__pk"

// Driver is the Redis-backed document driver.
type Driver struct {
	client *redis.Client
	tables map[string]driven.Table
}

// New creates a driver over an existing Redis client.
func New(client *redis.Client) *Driver {
	return &Driver{client: client}
}

func (d *Driver) Name() string { return "redis" }

func (d *Driver) Capabilities() driven.Capabilities {
	// JSON documents carry booleans and structured values natively, but have
	// no timestamp type.
	return driven.Capabilities{Booleans: true, Dates: false, JSON: true, Transactions: false}
}

// InitSchema records the table metadata; Redis itself needs no setup.
func (d *Driver) InitSchema(_ context.Context, tables []driven.Table) error {
	d.tables = make(map[string]driven.Table, len(tables))
	for _, t := range tables {
		d.tables[t.Name] = t
	}
	return nil
}

func (d *Driver) Insert(ctx context.Context, model string, values driven.Row) (driven.Row, error) {
	t, err := d.table(model)
	if err != nil {
		return nil, err
	}

	row := cloneRow(values)
	key, _ := row[t.IDColumn].(string)
	if key != "" {
		exists, err := d.client.Exists(ctx, docKey(model, key)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check document: %w", err)
		}
		if exists > 0 {
			return nil, fmt.Errorf("%w: %s %q", domain.ErrAlreadyExists, model, key)
		}
	} else {
		key = uuid.NewString()
		row[pkKey] = key
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	pipe := d.client.Pipeline()
	pipe.Set(ctx, docKey(model, key), data, 0)
	pipe.SAdd(ctx, indexKey(model), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
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

func (d *Driver) SelectMany(ctx context.Context, q driven.Query) ([]driven.Row, error) {
	rows, err := d.matching(ctx, q.Model, q.Where)
	if err != nil {
		return nil, err
	}
	out := exportRows(rows)

	if len(q.Joins) > 0 {
		out, err = driverutil.ExpandJoins(out, q.Joins, func(model string) ([]driven.Row, error) {
			related, err := d.matching(ctx, model, nil)
			if err != nil {
				return nil, err
			}
			return exportRows(related), nil
		})
		if err != nil {
			return nil, err
		}
	}

	driverutil.SortRows(out, q.OrderBy)
	return driverutil.Page(out, q.Limit, q.Offset), nil
}

func (d *Driver) Update(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (driven.Row, error) {
	rows, err := d.matching(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	if err := d.writeMerged(ctx, model, rows, values); err != nil {
		return nil, err
	}
	first := cloneRow(rows[0])
	for k, v := range values {
		first[k] = v
	}
	return exportRow(first), nil
}

func (d *Driver) UpdateMany(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (int64, error) {
	rows, err := d.matching(ctx, model, where)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := d.writeMerged(ctx, model, rows, values); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (d *Driver) Delete(ctx context.Context, model string, where *driven.Predicate) error {
	_, err := d.DeleteMany(ctx, model, where)
	return err
}

func (d *Driver) DeleteMany(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	t, err := d.table(model)
	if err != nil {
		return 0, err
	}
	rows, err := d.matching(ctx, model, where)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	pipe := d.client.Pipeline()
	for _, row := range rows {
		key := storageKey(row, t)
		pipe.Del(ctx, docKey(model, key))
		pipe.SRem(ctx, indexKey(model), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return int64(len(rows)), nil
}

func (d *Driver) Count(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	rows, err := d.matching(ctx, model, where)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// matching loads every document of a table and filters in memory. Documents
// whose index entry is stale are cleaned up along the way.
func (d *Driver) matching(ctx context.Context, model string, where *driven.Predicate) ([]driven.Row, error) {
	if _, err := d.table(model); err != nil {
		return nil, err
	}
	keys, err := d.client.SMembers(ctx, indexKey(model)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	docKeys := make([]string, len(keys))
	for i, key := range keys {
		docKeys[i] = docKey(model, key)
	}
	docs, err := d.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	var (
		rows  []driven.Row
		stale []any
	)
	for i, doc := range docs {
		if doc == nil {
			stale = append(stale, keys[i])
			continue
		}
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		var row driven.Row
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", docKeys[i], err)
		}
		match, err := driverutil.Match(row, where)
		if err != nil {
			return nil, err
		}
		if match {
			rows = append(rows, row)
		}
	}
	if len(stale) > 0 {
		d.client.SRem(ctx, indexKey(model), stale...)
	}
	return rows, nil
}

func (d *Driver) writeMerged(ctx context.Context, model string, rows []driven.Row, values driven.Row) error {
	t, err := d.table(model)
	if err != nil {
		return err
	}
	pipe := d.client.Pipeline()
	for _, row := range rows {
		merged := cloneRow(row)
		for k, v := range values {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		// An identifier update moves the document: the old key and index
		// entry go away with the write.
		oldKey := storageKey(row, t)
		newKey := storageKey(merged, t)
		if newKey != oldKey {
			pipe.Del(ctx, docKey(model, oldKey))
			pipe.SRem(ctx, indexKey(model), oldKey)
			pipe.SAdd(ctx, indexKey(model), newKey)
		}
		pipe.Set(ctx, docKey(model, newKey), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update documents: %w", err)
	}
	return nil
}

func (d *Driver) table(model string) (driven.Table, error) {
	t, ok := d.tables[model]
	if !ok {
		return driven.Table{}, fmt.Errorf("%w: no table %q", domain.ErrUnknownModel, model)
	}
	return t, nil
}

// storageKey is the key a stored row lives under: its identifier, or the
// surrogate when it has none.
func storageKey(row driven.Row, t driven.Table) string {
	if id, ok := row[t.IDColumn].(string); ok && id != "" {
		return id
	}
	key, _ := row[pkKey].(string)
	return key
}

func docKey(model, key string) string { return model + ":" + key }

func indexKey(model string) string { return model + ":__ids" }

func cloneRow(row driven.Row) driven.Row {
	out := make(driven.Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	return out
}

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

func exportRows(rows []driven.Row) []driven.Row {
	out := make([]driven.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, exportRow(row))
	}
	return out
}
