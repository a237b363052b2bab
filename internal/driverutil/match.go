// Package driverutil evaluates compiled predicates, ordering and joins over
// in-memory rows. It backs the drivers whose engines have no native query
// language to push the work into (memory, redis) and the test doubles, so it
// depends only on the core types.
package driverutil

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// Match reports whether a row satisfies a compiled predicate. The two
// fragment groups combine as (AND-group) AND (OR-group); a nil predicate
// matches everything. Operators outside the domain set are rejected: an
// in-memory evaluator has no native comparison mechanism to fall back on.
func Match(row driven.Row, p *driven.Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}
	for _, cond := range p.And {
		ok, err := matchCond(row, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(p.Or) == 0 {
		return true, nil
	}
	for _, cond := range p.Or {
		ok, err := matchCond(row, cond)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchCond(row driven.Row, cond driven.Condition) (bool, error) {
	value := row[cond.Field]

	switch cond.Op {
	case domain.OpEq:
		return equalValues(value, cond.Value), nil
	case domain.OpNe:
		return !equalValues(value, cond.Value), nil
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		// Ordering against an absent value matches nothing, mirroring SQL
		// NULL comparison semantics. Nil-first ordering applies in SortRows
		// only.
		if value == nil || cond.Value == nil {
			return false, nil
		}
		c, ok := compareValues(value, cond.Value)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case domain.OpGt:
			return c > 0, nil
		case domain.OpGte:
			return c >= 0, nil
		case domain.OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case domain.OpIn, domain.OpNotIn:
		found := false
		for _, item := range asSlice(cond.Value) {
			if equalValues(value, item) {
				found = true
				break
			}
		}
		if cond.Op == domain.OpIn {
			return found, nil
		}
		return !found, nil
	case domain.OpContains:
		s, c, ok := stringPair(value, cond.Value)
		return ok && strings.Contains(s, c), nil
	case domain.OpStartsWith:
		s, c, ok := stringPair(value, cond.Value)
		return ok && strings.HasPrefix(s, c), nil
	case domain.OpEndsWith:
		s, c, ok := stringPair(value, cond.Value)
		return ok && strings.HasSuffix(s, c), nil
	}
	return false, fmt.Errorf("unsupported operator %q for in-memory evaluation", cond.Op)
}

// SortRows sorts rows in place by the given order terms. Missing values sort
// first ascending.
func SortRows(rows []driven.Row, orderBy []driven.Order) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orderBy {
			c, ok := compareValues(rows[i][o.Field], rows[j][o.Field])
			if !ok || c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies offset and limit to an already ordered row set.
func Page(rows []driven.Row, limit, offset int) []driven.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// ExpandJoins produces the flat joined row shape SQL backends return
// natively: one row per base/joined match with joined columns under their
// aliases, base rows preserved on left joins with no match, base rows
// dropped on inner joins with no match.
func ExpandJoins(base []driven.Row, joins []driven.Join, fetch func(model string) ([]driven.Row, error)) ([]driven.Row, error) {
	rows := base
	for _, join := range joins {
		related, err := fetch(join.Model)
		if err != nil {
			return nil, err
		}
		var expanded []driven.Row
		for _, row := range rows {
			baseValue := row[join.BaseField]
			var matches []driven.Row
			if baseValue != nil {
				for _, r := range related {
					if equalValues(r[join.JoinField], baseValue) {
						matches = append(matches, r)
					}
				}
			}
			if len(matches) == 0 {
				if join.Relation == domain.JoinInner {
					continue
				}
				expanded = append(expanded, row)
				continue
			}
			for _, match := range matches {
				merged := make(driven.Row, len(row)+len(join.Columns))
				for k, v := range row {
					merged[k] = v
				}
				for _, col := range join.Columns {
					merged[col.Alias] = match[col.Name]
				}
				expanded = append(expanded, merged)
			}
		}
		rows = expanded
	}
	return rows, nil
}

// equalValues compares two wire values with numeric and timestamp awareness:
// 1 == 1.0, and equal instants compare equal whether stored as time.Time or
// RFC 3339 text.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			return at.Equal(bt)
		}
	}
	if as, aok := toString(a); aok {
		if bs, bok := toString(b); bok {
			return as == bs
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two wire values; ok is false when they are not
// comparable.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		if a == nil {
			return -1, true
		}
		return 1, true
	}
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}
	as, aok := toString(a)
	bs, bok := toString(b)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toTime recognizes timestamps whether native or serialized. RFC 3339 text
// must be parsed rather than compared lexically: fractional seconds have
// variable width.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func stringPair(value, pattern any) (string, string, bool) {
	s, sok := toString(value)
	p, pok := toString(pattern)
	return s, p, sok && pok
}

func asSlice(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(v)
	if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		items := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
		return items
	}
	return []any{v}
}
