package driving

import (
	"context"

	"github.com/custodia-labs/authcore/internal/core/domain"
)

// Record is one logical record: logical field names, logical value types.
// Callers never see physical names, capability flags or transform hooks.
type Record = map[string]any

// FindOptions tunes read operations. The zero value means: all fields, no
// joins, default limit, no offset, backend-default ordering.
type FindOptions struct {
	// Select restricts the output record to exactly these logical fields
	Select []string

	// Join attaches related models to the result
	Join domain.Join

	// Limit caps the number of returned records. Zero means the adapter's
	// default limit, never unbounded.
	Limit int

	// Offset skips records for pagination. A non-zero offset without an
	// explicit sort is ordered by the identifier field for stability.
	Offset int

	// SortBy orders the result set
	SortBy []domain.SortField
}

// Adapter is the uniform persistence contract the rest of the toolkit (and
// plugin-registered models) program against. All operations are parameterized
// purely by logical model and field names.
//
// FindOne and Update return domain.ErrNotFound when no record matches.
type Adapter interface {
	Create(ctx context.Context, model string, data Record, selectFields ...string) (Record, error)
	FindOne(ctx context.Context, model string, where domain.Where, opts *FindOptions) (Record, error)
	FindMany(ctx context.Context, model string, where domain.Where, opts *FindOptions) ([]Record, error)
	Update(ctx context.Context, model string, where domain.Where, update Record) (Record, error)
	UpdateMany(ctx context.Context, model string, where domain.Where, update Record) (int64, error)
	Delete(ctx context.Context, model string, where domain.Where) error
	DeleteMany(ctx context.Context, model string, where domain.Where) (int64, error)
	Count(ctx context.Context, model string, where domain.Where) (int64, error)

	// Transaction runs fn against an adapter scoped to one atomic unit of
	// work. Backends without transaction support run fn sequentially against
	// the same adapter, with no atomicity guarantee.
	Transaction(ctx context.Context, fn func(Adapter) error) error
}
