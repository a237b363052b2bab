package domain

// Relation is the join flavour attached to a joined model.
type Relation string

const (
	JoinInner Relation = "inner"
	JoinLeft  Relation = "left"
)

// JoinOn declares the field pair a join matches on: a field on the base model
// against a field on the joined model. Both are logical names.
type JoinOn struct {
	From string
	To   string
}

// JoinSpec describes how one model is attached to a query. Cardinality is not
// declared here: it is derived from whether the joined model's On.To field is
// unique in its model definition.
type JoinSpec struct {
	Relation Relation
	On       JoinOn
}

// Join maps joined-model logical names to their join specification.
type Join map[string]JoinSpec

// SortField orders a result set by one logical field.
type SortField struct {
	Field string
	Desc  bool
}
