package services

import (
	"log/slog"

	"github.com/google/uuid"
)

// Direction tells a custom transform hook which way a value is moving.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// TransformContext is the per-field, per-call record handed to custom
// transform hooks. It is never persisted.
type TransformContext struct {
	Model     string
	Field     string
	Direction Direction
	Value     any
}

// TransformHook may replace the built-in coercion for one field. Returning
// handled=true short-circuits: the returned value is used as-is with no
// further implicit coercion.
type TransformHook func(TransformContext) (value any, handled bool)

// Config is the caller-side half of the adapter configuration. The backend
// side (capability flags, transaction support) comes from the driver itself.
// A Config is read for the adapter's whole lifetime and never mutated.
type Config struct {
	// UsePlural appends the conventional plural suffix to physical model
	// names that carry no explicit override
	UsePlural bool

	// DisableIDGeneration leaves the identifier absent on create unless the
	// caller supplies one
	DisableIDGeneration bool

	// GenerateID produces identifiers for created records. Nil means the
	// default generator.
	GenerateID func(model string) string

	// TransformInput / TransformOutput are optional per-field hooks running
	// before the built-in coercions
	TransformInput  TransformHook
	TransformOutput TransformHook

	// MapKeysInput renames logical keys to transport keys after input value
	// transformation (e.g. "email" -> "email_address")
	MapKeysInput map[string]string

	// MapKeysOutput renames transport keys back on every record read from
	// the backend (e.g. "_id" -> "id")
	MapKeysOutput map[string]string

	// DefaultLimit bounds FindMany when the caller gives no limit. Zero
	// means 100; reads are never unbounded.
	DefaultLimit int

	// Logger receives observational debug logs. Nil means slog.Default().
	// Logging never changes control flow.
	Logger *slog.Logger
}

const defaultFindLimit = 100

func (c Config) findLimit() int {
	if c.DefaultLimit > 0 {
		return c.DefaultLimit
	}
	return defaultFindLimit
}

func (c Config) idGenerator() func(string) string {
	if c.GenerateID != nil {
		return c.GenerateID
	}
	return func(string) string { return uuid.NewString() }
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
