package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// joinPlan carries what the post-processing side of a join needs: which
// aliases belong to which joined model, and whether the relation nests a
// single object or a deduplicated list.
type joinPlan struct {
	name   string
	model  *domain.Model
	unique bool
	prefix string
}

// compileJoins expands a join specification into backend join instructions
// plus the matching post-processing plans. Joined columns are aliased
// joined_<model>_<field> to avoid collisions in the flat result set.
func (a *Adapter) compileJoins(base *domain.Model, join domain.Join) ([]driven.Join, []joinPlan, error) {
	names := make([]string, 0, len(join))
	for name := range join {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		joins []driven.Join
		plans []joinPlan
	)
	for _, name := range names {
		spec := join[name]
		jm, err := a.reg.Model(name)
		if err != nil {
			return nil, nil, err
		}
		baseField, err := a.names.fieldName(base, spec.On.From)
		if err != nil {
			return nil, nil, err
		}
		joinField, err := a.names.fieldName(jm, spec.On.To)
		if err != nil {
			return nil, nil, err
		}
		toField, ok := jm.Field(spec.On.To)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q on model %q", domain.ErrUnknownField, spec.On.To, jm.Name)
		}

		relation := spec.Relation
		if relation == "" {
			relation = domain.JoinLeft
		}

		prefix := "joined_" + name + "_"
		dj := driven.Join{
			Model:     a.names.modelName(jm),
			Relation:  relation,
			BaseField: baseField,
			JoinField: joinField,
		}
		for i := range jm.Fields {
			col, err := a.names.fieldName(jm, jm.Fields[i].Name)
			if err != nil {
				return nil, nil, err
			}
			dj.Columns = append(dj.Columns, driven.JoinColumn{
				Name:  col,
				Alias: prefix + jm.Fields[i].Name,
			})
		}

		joins = append(joins, dj)
		plans = append(plans, joinPlan{
			name:   name,
			model:  jm,
			unique: toField.Unique,
			prefix: prefix,
		})
	}
	return joins, plans, nil
}

// resolveJoinRows reassembles flat joined rows into nested logical records:
// one output record per distinct base identifier, with each joined model
// nested as a single object (unique cardinality) or a list deduplicated by
// the joined identifier. Rows whose joined identifier is absent contribute no
// related record (the left-join no-match case).
func (a *Adapter) resolveJoinRows(base *domain.Model, plans []joinPlan, rows []driven.Row, selected []string) ([]map[string]any, error) {
	idKey := a.names.idColumn(base)

	var order []string
	records := make(map[string]map[string]any)
	seen := make(map[string]map[string]bool)

	for _, row := range rows {
		rawID, ok := row[idKey]
		if !ok || rawID == nil {
			return nil, fmt.Errorf("%w: joined result row for model %q has no identifier", domain.ErrSchema, base.Name)
		}
		key := fmt.Sprint(rawID)

		record, exists := records[key]
		if !exists {
			baseRow := make(driven.Row, len(row))
			for k, v := range row {
				if joinAliasKey(plans, k) {
					continue
				}
				baseRow[k] = v
			}
			transformed, err := a.transform.output(base, baseRow, selected)
			if err != nil {
				return nil, err
			}
			record = transformed
			for _, plan := range plans {
				if plan.unique {
					record[plan.name] = nil
				} else {
					record[plan.name] = []map[string]any{}
				}
			}
			records[key] = record
			seen[key] = make(map[string]bool)
			order = append(order, key)
		}

		for _, plan := range plans {
			sub := make(driven.Row, len(plan.model.Fields))
			for i := range plan.model.Fields {
				logical := plan.model.Fields[i].Name
				if raw, present := row[plan.prefix+logical]; present {
					col, err := a.names.fieldName(plan.model, logical)
					if err != nil {
						return nil, err
					}
					sub[col] = raw
				}
			}
			joinedID := sub[a.names.idColumn(plan.model)]
			if joinedID == nil {
				continue
			}

			obj, err := a.transform.output(plan.model, sub, nil)
			if err != nil {
				return nil, err
			}
			if plan.unique {
				if record[plan.name] == nil {
					record[plan.name] = obj
				}
				continue
			}
			dedupKey := plan.name + "\x00" + fmt.Sprint(joinedID)
			if seen[key][dedupKey] {
				continue
			}
			seen[key][dedupKey] = true
			record[plan.name] = append(record[plan.name].([]map[string]any), obj)
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		out = append(out, records[key])
	}
	return out, nil
}

func joinAliasKey(plans []joinPlan, key string) bool {
	for _, plan := range plans {
		if strings.HasPrefix(key, plan.prefix) {
			return true
		}
	}
	return false
}
