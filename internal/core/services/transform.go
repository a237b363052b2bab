package services

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// transformer converts values between their logical representation and the
// backend-storable wire representation, both directions, driven by the
// backend's capability flags and optional user hooks. Transforms are per
// field and never depend on another field's value.
type transformer struct {
	caps  driven.Capabilities
	cfg   Config
	names nameResolver
}

// input converts a logical record into a wire row for create/update: custom
// hook first (may short-circuit the built-in coercion), then capability-based
// coercion, then key remapping, then logical->physical renaming. The
// identifier field passes through untouched: it is string-typed by
// construction.
func (t transformer) input(m *domain.Model, data map[string]any) (driven.Row, error) {
	row := make(driven.Row, len(data))
	for key, value := range data {
		f, ok := m.Field(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q on model %q", domain.ErrUnknownField, key, m.Name)
		}

		handled := false
		if t.cfg.TransformInput != nil {
			var v any
			v, handled = t.cfg.TransformInput(TransformContext{
				Model:     m.Name,
				Field:     key,
				Direction: DirectionInput,
				Value:     value,
			})
			if handled {
				value = v
			}
		}
		if !handled && key != m.ID() {
			coerced, err := t.coerceIn(m, f, value)
			if err != nil {
				return nil, err
			}
			value = coerced
		}

		transport, err := t.transportKey(m, key)
		if err != nil {
			return nil, err
		}
		row[transport] = value
	}
	return row, nil
}

// transportKey resolves a logical field name to the key it travels under:
// the physical name, overridden by a MapKeysInput entry when one exists.
func (t transformer) transportKey(m *domain.Model, key string) (string, error) {
	transport, err := t.names.fieldName(m, key)
	if err != nil {
		return "", err
	}
	if mapped, ok := t.cfg.MapKeysInput[key]; ok {
		transport = mapped
	}
	return transport, nil
}

// coerceIn converts one logical value to its wire representation.
func (t transformer) coerceIn(m *domain.Model, f *domain.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.Type {
	case domain.FieldBoolean:
		if t.caps.Booleans {
			return value, nil
		}
		b, ok := value.(bool)
		if !ok {
			return value, nil
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case domain.FieldDate:
		if t.caps.Dates {
			return value, nil
		}
		// Non-Date values pass through unchanged.
		if ts, ok := value.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano), nil
		}
		return value, nil

	case domain.FieldJSON:
		if t.caps.JSON {
			return value, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q on model %q: %v", domain.ErrTransform, f.Name, m.Name, err)
		}
		return string(raw), nil
	}
	return value, nil
}

// output converts one wire row back into a logical record: key un-remapping,
// inverse capability coercion, custom hook, then whole-record default fill so
// every record exposes the model's full logical shape. A non-empty selected
// list restricts the output keys to exactly that set instead.
func (t transformer) output(m *domain.Model, row driven.Row, selected []string) (map[string]any, error) {
	if len(t.cfg.MapKeysOutput) > 0 {
		remapped := make(driven.Row, len(row))
		for k, v := range row {
			if mapped, ok := t.cfg.MapKeysOutput[k]; ok {
				k = mapped
			}
			remapped[k] = v
		}
		row = remapped
	}

	record := make(map[string]any, len(m.Fields))
	for i := range m.Fields {
		f := &m.Fields[i]
		if len(selected) > 0 && !slices.Contains(selected, f.Name) {
			continue
		}

		transport, err := t.transportKey(m, f.Name)
		if err != nil {
			return nil, err
		}

		value, present := row[transport]
		if !present {
			// Default fill happens after per-field transforms, on output only.
			record[f.Name] = f.Default
			continue
		}

		if f.Name != m.ID() {
			value, err = t.coerceOut(m, f, value)
			if err != nil {
				return nil, err
			}
		}
		if t.cfg.TransformOutput != nil {
			if v, handled := t.cfg.TransformOutput(TransformContext{
				Model:     m.Name,
				Field:     f.Name,
				Direction: DirectionOutput,
				Value:     value,
			}); handled {
				value = v
			}
		}
		record[f.Name] = value
	}
	return record, nil
}

// coerceOut converts one wire value back to its logical representation.
func (t transformer) coerceOut(m *domain.Model, f *domain.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.Type {
	case domain.FieldBoolean:
		if t.caps.Booleans {
			return value, nil
		}
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case string:
			return v != "0" && v != "" && v != "false", nil
		}
		return value, nil

	case domain.FieldDate:
		if t.caps.Dates {
			return value, nil
		}
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q on model %q: %v", domain.ErrTransform, f.Name, m.Name, err)
			}
			return ts, nil
		}
		return value, nil

	case domain.FieldJSON:
		if t.caps.JSON {
			return value, nil
		}
		var raw []byte
		switch v := value.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return value, nil
		}
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("%w: field %q on model %q: %v", domain.ErrTransform, f.Name, m.Name, err)
		}
		return parsed, nil
	}
	return value, nil
}
