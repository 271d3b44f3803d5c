package model

type Operator string

const OP_EQ Operator = "eq"
const OP_NEQ Operator = "neq"
const OP_CONTAINS Operator = "contains"
const OP_NOT_CONTAINS Operator = "not_contains"
const OP_EMPTY Operator = "empty"
const OP_NOT_EMPTY Operator = "not_empty"
const OP_GT Operator = "gt"
const OP_GTE Operator = "gte"
const OP_LT Operator = "lt"
const OP_LTE Operator = "lte"

var Operators = map[Operator]bool{
	OP_EQ:           true,
	OP_NEQ:          true,
	OP_CONTAINS:     true,
	OP_NOT_CONTAINS: true,
	OP_EMPTY:        true,
	OP_NOT_EMPTY:    true,
	OP_GT:           true,
	OP_GTE:          true,
	OP_LT:           true,
	OP_LTE:          true,
}

// Predicate compares one context field to a value. Field values starting
// with "$." are resolved by jsonpath against the full context map, anything
// else is a direct key lookup.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

const LOGIC_AND = "and"
const LOGIC_OR = "or"

// ConditionGroup guards a transition or flow trigger. Either Predicates is
// evaluated under Logic (and/or, and is the default), or Expression holds a
// javascript expression evaluated with $ bound to the context map. A group
// with both set is a validation error.
type ConditionGroup struct {
	Logic      string      `json:"logic,omitempty"`
	Predicates []Predicate `json:"predicates,omitempty"`
	Expression string      `json:"expression,omitempty"`
}

func (g *ConditionGroup) Empty() bool {
	return g == nil || (len(g.Predicates) == 0 && g.Expression == "")
}
