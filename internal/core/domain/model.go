package domain

import "fmt"

// FieldType is the semantic type of a field, independent of how any backend
// physically stores it.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldDate      FieldType = "date"
	FieldJSON      FieldType = "json"
	FieldReference FieldType = "reference"
)

// Field describes one field of a logical model.
type Field struct {
	// Name is the logical field name callers use
	Name string

	// Type is the semantic type driving capability-based coercion
	Type FieldType

	// PhysicalName overrides the storage column/key name when non-empty
	PhysicalName string

	// Unique marks the field as unique in the backend schema. The identifier
	// field is always unique regardless of this flag.
	Unique bool

	// Default is filled into output records when the backend returned no value
	Default any

	// DefaultFunc computes a value for the field when a create omits it
	// (timestamps, generated tokens). It runs once per create, before the
	// input transform. Output default fill still uses Default.
	DefaultFunc func() any

	// References names the model a reference field points at (informational)
	References string
}

// Model is a logical entity: an ordered set of fields with one designated
// string-typed identifier field. Models are registered once at startup and
// immutable afterwards.
type Model struct {
	Name string

	// PhysicalName overrides the storage table/collection name when non-empty
	PhysicalName string

	Fields []Field

	// IDField names the designated identifier field. Empty means "id".
	IDField string
}

// ID returns the name of the identifier field.
func (m *Model) ID() string {
	if m.IDField == "" {
		return "id"
	}
	return m.IDField
}

// Field looks up a field definition by logical name.
func (m *Model) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Registry holds every registered model. It is populated once at process
// startup from static configuration and read-only afterwards, so it is safe
// for concurrent use without locking.
type Registry struct {
	models map[string]*Model
	order  []string
}

// NewRegistry validates and indexes the given models.
func NewRegistry(models ...Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for i := range models {
		m := models[i]
		if m.Name == "" {
			return nil, fmt.Errorf("%w: model with empty name", ErrInvalidInput)
		}
		if _, dup := r.models[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate model %q", ErrInvalidInput, m.Name)
		}
		// Copy the field slice so normalization never reaches back into the
		// caller's definitions.
		m.Fields = append([]Field(nil), m.Fields...)
		idField, ok := m.Field(m.ID())
		if !ok {
			return nil, fmt.Errorf("%w: model %q has no identifier field %q", ErrInvalidInput, m.Name, m.ID())
		}
		if idField.Type != FieldString {
			return nil, fmt.Errorf("%w: model %q identifier %q must be string-typed", ErrInvalidInput, m.Name, m.ID())
		}
		// The identifier is unique by construction.
		idField.Unique = true

		r.models[m.Name] = &m
		r.order = append(r.order, m.Name)
	}
	return r, nil
}

// Model returns the model registered under the given logical name.
// Referencing an unknown model is a programming error.
func (r *Registry) Model(name string) (*Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns all registered models in registration order.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}
