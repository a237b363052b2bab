package domain

// Operator is a backend-agnostic comparison operator. Operators outside this
// set are handed to the backend unchanged as a forward-compatibility escape
// hatch.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// Connector decides which predicate group a clause joins. AND-clauses and
// OR-clauses form two independent groups combined as (AND-group) AND (OR-group).
type Connector string

const (
	ConnectorAnd Connector = "AND"
	ConnectorOr  Connector = "OR"
)

// Clause is a single filter condition on a logical field. A zero Connector
// means AND.
type Clause struct {
	Field     string
	Op        Operator
	Value     any
	Connector Connector
}

// Where is an ordered list of filter clauses. An empty Where matches all.
type Where []Clause

// Eq builds an equality clause.
func Eq(field string, value any) Clause {
	return Clause{Field: field, Op: OpEq, Value: value}
}

// Ne builds an inequality clause.
func Ne(field string, value any) Clause {
	return Clause{Field: field, Op: OpNe, Value: value}
}

// Gt builds a greater-than clause.
func Gt(field string, value any) Clause {
	return Clause{Field: field, Op: OpGt, Value: value}
}

// Gte builds a greater-or-equal clause.
func Gte(field string, value any) Clause {
	return Clause{Field: field, Op: OpGte, Value: value}
}

// Lt builds a less-than clause.
func Lt(field string, value any) Clause {
	return Clause{Field: field, Op: OpLt, Value: value}
}

// Lte builds a less-or-equal clause.
func Lte(field string, value any) Clause {
	return Clause{Field: field, Op: OpLte, Value: value}
}

// In builds a set-membership clause. Scalar values are wrapped into a
// one-element set at compile time.
func In(field string, values any) Clause {
	return Clause{Field: field, Op: OpIn, Value: values}
}

// Contains builds a substring-match clause.
func Contains(field string, value string) Clause {
	return Clause{Field: field, Op: OpContains, Value: value}
}

// StartsWith builds a prefix-match clause.
func StartsWith(field string, value string) Clause {
	return Clause{Field: field, Op: OpStartsWith, Value: value}
}

// EndsWith builds a suffix-match clause.
func EndsWith(field string, value string) Clause {
	return Clause{Field: field, Op: OpEndsWith, Value: value}
}

// Or marks a clause as part of the OR group.
func Or(c Clause) Clause {
	c.Connector = ConnectorOr
	return c
}
