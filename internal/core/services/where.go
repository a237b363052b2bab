package services

import (
	"fmt"
	"reflect"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// compileWhere turns a backend-agnostic Where into predicate fragments for
// the driver. Field names are resolved to physical names and clause values
// run through the input coercion first, so the compiler itself never touches
// type conversion. AND and OR clauses land in two independent lists; an empty
// Where compiles to nil (no filtering).
func (a *Adapter) compileWhere(m *domain.Model, w domain.Where) (*driven.Predicate, error) {
	if len(w) == 0 {
		return nil, nil
	}
	p := &driven.Predicate{}
	for _, clause := range w {
		f, ok := m.Field(clause.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %q on model %q", domain.ErrUnknownField, clause.Field, m.Name)
		}
		// Filters travel under the same key writes do, remapping included.
		field, err := a.transform.transportKey(m, clause.Field)
		if err != nil {
			return nil, err
		}

		value := clause.Value
		switch clause.Op {
		case domain.OpIn, domain.OpNotIn:
			value, err = a.coerceSet(m, f, value)
		default:
			if clause.Field != m.ID() {
				value, err = a.transform.coerceIn(m, f, value)
			}
		}
		if err != nil {
			return nil, err
		}

		cond := driven.Condition{Field: field, Op: clause.Op, Value: value}
		if clause.Connector == domain.ConnectorOr {
			p.Or = append(p.Or, cond)
		} else {
			p.And = append(p.And, cond)
		}
	}
	return p, nil
}

// coerceSet normalizes an in/not_in value to a coerced []any, wrapping a
// scalar into a one-element set.
func (a *Adapter) coerceSet(m *domain.Model, f *domain.Field, value any) ([]any, error) {
	var items []any
	rv := reflect.ValueOf(value)
	if value != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	} else {
		items = []any{value}
	}
	if f.Name == m.ID() {
		return items, nil
	}
	for i, item := range items {
		coerced, err := a.transform.coerceIn(m, f, item)
		if err != nil {
			return nil, err
		}
		items[i] = coerced
	}
	return items, nil
}
