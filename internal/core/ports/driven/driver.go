package driven

import (
	"context"

	"github.com/custodia-labs/authcore/internal/core/domain"
)

// Row is one flat record as the backend stores it: physical keys, wire-format
// values.
type Row = map[string]any

// Capabilities declares what a backend natively supports. The adapter factory
// compensates for everything a backend lacks.
type Capabilities struct {
	// Booleans: backend stores booleans natively. When false the adapter
	// writes 1/0 and reads them back as booleans.
	Booleans bool

	// Dates: backend stores timestamps natively. When false the adapter
	// writes RFC 3339 strings and parses them back.
	Dates bool

	// JSON: backend stores structured values natively. When false the adapter
	// serializes them to text and parses them back.
	JSON bool

	// Transactions: backend implements TxRunner. When false, Transaction on
	// the adapter degrades to best-effort sequential execution.
	Transactions bool
}

// Condition is one compiled predicate: physical field name, operator, and an
// already wire-coerced value. Operators outside the domain set are passed to
// the backend's native comparison mechanism unchanged.
type Condition struct {
	Field string
	Op    domain.Operator
	Value any
}

// Predicate is a compiled Where: two independent fragment lists, evaluated as
// (AND-group) AND (OR-group). A nil Predicate matches everything.
type Predicate struct {
	And []Condition
	Or  []Condition
}

// Order is one compiled sort term on a physical field.
type Order struct {
	Field string
	Desc  bool
}

// JoinColumn is a joined-model column selected under a collision-free alias.
type JoinColumn struct {
	Name  string
	Alias string
}

// Join instructs the backend to attach one model to a query.
type Join struct {
	// Model is the physical name of the joined table/collection
	Model string

	Relation domain.Relation

	// BaseField / JoinField are the physical on-columns of the base and
	// joined model respectively
	BaseField string
	JoinField string

	// Columns lists every field of the joined model with its namespaced alias
	Columns []JoinColumn
}

// Query is a compiled read request.
type Query struct {
	Model   string
	Where   *Predicate
	Joins   []Join
	Limit   int
	Offset  int
	OrderBy []Order
}

// Driver is the narrow contract a backend must supply. All inputs are
// physical names and wire-format values; the adapter factory owns every
// translation. Drivers must not retry and must propagate backend failures
// unchanged.
type Driver interface {
	// Name identifies the backend (for logs and diagnostics)
	Name() string

	// Capabilities reports the backend's native type support
	Capabilities() Capabilities

	// Insert stores one row and returns it as stored. Backends that cannot
	// return the inserted row directly re-query it themselves.
	Insert(ctx context.Context, model string, values Row) (Row, error)

	// SelectOne returns the first row matching the query, or
	// domain.ErrNotFound when nothing matches
	SelectOne(ctx context.Context, q Query) (Row, error)

	// SelectMany returns every row matching the query, honoring limit,
	// offset and ordering
	SelectMany(ctx context.Context, q Query) ([]Row, error)

	// Update applies values to the matching rows and returns the first
	// updated row, or domain.ErrNotFound when nothing matched
	Update(ctx context.Context, model string, where *Predicate, values Row) (Row, error)

	// UpdateMany applies values to every matching row and returns the count
	UpdateMany(ctx context.Context, model string, where *Predicate, values Row) (int64, error)

	// Delete removes the matching rows
	Delete(ctx context.Context, model string, where *Predicate) error

	// DeleteMany removes every matching row and returns the count
	DeleteMany(ctx context.Context, model string, where *Predicate) (int64, error)

	// Count returns the number of matching rows
	Count(ctx context.Context, model string, where *Predicate) (int64, error)
}

// Table describes one physical table/collection for schema initialization.
type Table struct {
	Name     string
	IDColumn string
	Columns  []Column
}

// Column describes one physical column with its semantic type.
type Column struct {
	Name   string
	Type   domain.FieldType
	Unique bool
}

// SchemaInitializer is implemented by drivers that need the physical schema
// up front (index construction, DDL generation). The adapter factory calls it
// once at construction with the resolved schema.
type SchemaInitializer interface {
	InitSchema(ctx context.Context, tables []Table) error
}

// TxRunner is implemented by drivers with atomic multi-statement support. The
// unit of work receives a driver bound to the transaction; any error aborts
// and rolls back.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(Driver) error) error
}
