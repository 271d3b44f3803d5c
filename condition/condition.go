// Package condition evaluates the predicate descriptors used by flow
// trigger_conditions and edge guards against a run context.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/oliveagle/jsonpath"

	"github.com/a23comunicacoes/oregon-flow/model"
)

// Eval reports whether the group matches the context. A nil or empty group
// always matches. Malformed groups return an error so callers can fail closed.
func Eval(group *model.ConditionGroup, ctx map[string]any) (bool, error) {
	if group.Empty() {
		return true, nil
	}
	if group.Expression != "" {
		if len(group.Predicates) > 0 {
			return false, model.Validationf("condition group has both predicates and expression")
		}
		return evalExpression(group.Expression, ctx)
	}
	logic := group.Logic
	if logic == "" {
		logic = model.LOGIC_AND
	}
	for _, p := range group.Predicates {
		ok, err := evalPredicate(p, ctx)
		if err != nil {
			return false, err
		}
		if logic == model.LOGIC_OR && ok {
			return true, nil
		}
		if logic != model.LOGIC_OR && !ok {
			return false, nil
		}
	}
	return logic != model.LOGIC_OR, nil
}

func evalPredicate(p model.Predicate, ctx map[string]any) (bool, error) {
	if !model.Operators[p.Operator] {
		return false, model.Validationf("unknown operator %q", p.Operator)
	}
	value, found := lookup(p.Field, ctx)
	switch p.Operator {
	case model.OP_EMPTY:
		return !found || isEmpty(value), nil
	case model.OP_NOT_EMPTY:
		return found && !isEmpty(value), nil
	}
	if !found {
		return false, fmt.Errorf("field %q not present in context", p.Field)
	}
	switch p.Operator {
	case model.OP_EQ:
		return equal(value, p.Value), nil
	case model.OP_NEQ:
		return !equal(value, p.Value), nil
	case model.OP_CONTAINS:
		return contains(value, p.Value), nil
	case model.OP_NOT_CONTAINS:
		return !contains(value, p.Value), nil
	case model.OP_GT, model.OP_GTE, model.OP_LT, model.OP_LTE:
		return compareNumeric(p.Operator, value, p.Value)
	}
	return false, model.Validationf("unknown operator %q", p.Operator)
}

func lookup(field string, ctx map[string]any) (any, bool) {
	if strings.HasPrefix(field, "$") {
		value, err := jsonpath.JsonPathLookup(ctx, field)
		if err != nil {
			return nil, false
		}
		return value, true
	}
	v, ok := ctx[field]
	return v, ok
}

func evalExpression(expression string, ctx map[string]any) (bool, error) {
	vm := goja.New()
	if err := vm.Set("$", ctx); err != nil {
		return false, err
	}
	value, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("error evaluating expression: %w", err)
	}
	return value.ToBoolean(), nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func equal(a any, b any) bool {
	if fa, oka := toFloat(a); oka {
		if fb, okb := toFloat(b); okb {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contains(haystack any, needle any) bool {
	switch t := haystack.(type) {
	case string:
		return strings.Contains(strings.ToLower(t), strings.ToLower(fmt.Sprintf("%v", needle)))
	case []any:
		for _, item := range t {
			if equal(item, needle) {
				return true
			}
		}
	}
	return false
}

func compareNumeric(op model.Operator, a any, b any) (bool, error) {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if !oka || !okb {
		return false, fmt.Errorf("operator %s needs numeric operands", op)
	}
	switch op {
	case model.OP_GT:
		return fa > fb, nil
	case model.OP_GTE:
		return fa >= fb, nil
	case model.OP_LT:
		return fa < fb, nil
	case model.OP_LTE:
		return fa <= fb, nil
	}
	return false, model.Validationf("unknown operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Validate checks a group structurally without evaluating it, for use at
// graph-write time.
func Validate(group *model.ConditionGroup) error {
	if group.Empty() {
		return nil
	}
	if group.Expression != "" {
		if len(group.Predicates) > 0 {
			return model.Validationf("condition group has both predicates and expression")
		}
		if _, err := goja.Compile("condition", group.Expression, false); err != nil {
			return model.Validationf("bad condition expression: %v", err)
		}
		return nil
	}
	if group.Logic != "" && group.Logic != model.LOGIC_AND && group.Logic != model.LOGIC_OR {
		return model.Validationf("unknown condition logic %q", group.Logic)
	}
	for _, p := range group.Predicates {
		if !model.Operators[p.Operator] {
			return model.Validationf("unknown operator %q", p.Operator)
		}
		if p.Field == "" {
			return model.Validationf("condition predicate without field")
		}
	}
	return nil
}
