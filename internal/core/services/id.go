package services

import "github.com/custodia-labs/authcore/internal/core/domain"

// idPolicy decides whether a create receives a generated identifier. The
// generator runs exactly once per create, before the input transform, so
// downstream hooks see the identifier like any other field. It never runs
// when generation is disabled, and an identifier the caller supplied
// explicitly wins over generation.
type idPolicy struct {
	disabled bool
	generate func(model string) string
}

func (p idPolicy) apply(m *domain.Model, data map[string]any) map[string]any {
	if p.disabled {
		return data
	}
	if v, ok := data[m.ID()]; ok {
		if s, isString := v.(string); isString && s != "" {
			return data
		}
	}
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[m.ID()] = p.generate(m.Name)
	return out
}

// fillCreateDefaults computes dynamic field defaults a create omitted
// (timestamps and the like). Runs before the input transform so hooks and
// coercion see the computed values like any caller-supplied ones.
func fillCreateDefaults(m *domain.Model, data map[string]any) map[string]any {
	var out map[string]any
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.DefaultFunc == nil {
			continue
		}
		if _, present := data[f.Name]; present {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(data)+1)
			for k, v := range data {
				out[k] = v
			}
		}
		out[f.Name] = f.DefaultFunc()
	}
	if out == nil {
		return data
	}
	return out
}
