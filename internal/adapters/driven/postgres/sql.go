package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// whereSQL renders a compiled predicate as SQL, appending parameters to
// args. The two fragment groups combine as (AND-group) AND (OR-group).
// prefix qualifies column references when the query involves joins.
func whereSQL(p *driven.Predicate, args *[]any, prefix string) string {
	if p == nil || (len(p.And) == 0 && len(p.Or) == 0) {
		return ""
	}
	var andParts, orParts []string
	for _, c := range p.And {
		andParts = append(andParts, condSQL(c, args, prefix))
	}
	for _, c := range p.Or {
		orParts = append(orParts, condSQL(c, args, prefix))
	}
	andSQL := strings.Join(andParts, " AND ")
	orSQL := strings.Join(orParts, " OR ")
	switch {
	case len(andParts) > 0 && len(orParts) > 0:
		return fmt.Sprintf("(%s) AND (%s)", andSQL, orSQL)
	case len(andParts) > 0:
		return andSQL
	default:
		return "(" + orSQL + ")"
	}
}

func condSQL(c driven.Condition, args *[]any, prefix string) string {
	col := prefix + pq.QuoteIdentifier(c.Field)

	bind := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	switch c.Op {
	case domain.OpEq:
		if c.Value == nil {
			return col + " IS NULL"
		}
		return fmt.Sprintf("%s = %s", col, bind(c.Value))
	case domain.OpNe:
		if c.Value == nil {
			return col + " IS NOT NULL"
		}
		return fmt.Sprintf("%s <> %s", col, bind(c.Value))
	case domain.OpGt:
		return fmt.Sprintf("%s > %s", col, bind(c.Value))
	case domain.OpGte:
		return fmt.Sprintf("%s >= %s", col, bind(c.Value))
	case domain.OpLt:
		return fmt.Sprintf("%s < %s", col, bind(c.Value))
	case domain.OpLte:
		return fmt.Sprintf("%s <= %s", col, bind(c.Value))
	case domain.OpIn, domain.OpNotIn:
		items := asAnySlice(c.Value)
		if len(items) == 0 {
			// IN over an empty set matches nothing; NOT IN matches all.
			if c.Op == domain.OpIn {
				return "FALSE"
			}
			return "TRUE"
		}
		holders := make([]string, 0, len(items))
		for _, item := range items {
			holders = append(holders, bind(item))
		}
		op := "IN"
		if c.Op == domain.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(holders, ", "))
	case domain.OpContains:
		return fmt.Sprintf("%s LIKE %s", col, bind("%"+likeValue(c.Value)+"%"))
	case domain.OpStartsWith:
		return fmt.Sprintf("%s LIKE %s", col, bind(likeValue(c.Value)+"%"))
	case domain.OpEndsWith:
		return fmt.Sprintf("%s LIKE %s", col, bind("%"+likeValue(c.Value)))
	}
	// Forward-compatibility escape hatch: unrecognized operators go to the
	// backend's native comparison mechanism verbatim.
	return fmt.Sprintf("%s %s %s", col, string(c.Op), bind(c.Value))
}

func likeValue(v any) string {
	s := fmt.Sprint(v)
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(s)
}

func asAnySlice(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

// createTableSQL renders one idempotent CREATE TABLE from the registered
// schema.
func createTableSQL(t driven.Table) string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := pq.QuoteIdentifier(c.Name) + " " + columnType(c.Type)
		if c.Name == t.IDColumn {
			def += " PRIMARY KEY"
		} else if c.Unique {
			def += " UNIQUE"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pq.QuoteIdentifier(t.Name), strings.Join(cols, ", "))
}

func columnType(t domain.FieldType) string {
	switch t {
	case domain.FieldNumber:
		return "DOUBLE PRECISION"
	case domain.FieldBoolean:
		return "BOOLEAN"
	case domain.FieldDate:
		return "TIMESTAMPTZ"
	case domain.FieldJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}
