package services

import (
	"fmt"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// nameResolver computes physical model and field names from the registry and
// the naming mode. It is a pure function of immutable inputs, so it needs no
// synchronization.
type nameResolver struct {
	reg    *domain.Registry
	plural bool
}

// modelName resolves the physical table/collection name.
// Resolution order: explicit override > pluralization > logical name.
func (n nameResolver) modelName(m *domain.Model) string {
	if m.PhysicalName != "" {
		return m.PhysicalName
	}
	if n.plural {
		return m.Name + "s"
	}
	return m.Name
}

// fieldName resolves the physical column/key name of a logical field.
// Resolution order: explicit override > logical name.
func (n nameResolver) fieldName(m *domain.Model, logical string) (string, error) {
	f, ok := m.Field(logical)
	if !ok {
		return "", fmt.Errorf("%w: %q on model %q", domain.ErrUnknownField, logical, m.Name)
	}
	if f.PhysicalName != "" {
		return f.PhysicalName, nil
	}
	return f.Name, nil
}

// idColumn resolves the physical name of the identifier field.
func (n nameResolver) idColumn(m *domain.Model) string {
	// The identifier exists by registry validation.
	name, _ := n.fieldName(m, m.ID())
	return name
}

// tables renders the whole registry as physical schema descriptions for
// drivers that need it up front.
func (n nameResolver) tables() []driven.Table {
	models := n.reg.Models()
	out := make([]driven.Table, 0, len(models))
	for _, m := range models {
		t := driven.Table{Name: n.modelName(m), IDColumn: n.idColumn(m)}
		for i := range m.Fields {
			f := &m.Fields[i]
			col, _ := n.fieldName(m, f.Name)
			t.Columns = append(t.Columns, driven.Column{Name: col, Type: f.Type, Unique: f.Unique})
		}
		out = append(out, t)
	}
	return out
}
