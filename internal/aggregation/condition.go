package aggregation

import (
	"fmt"
	"reflect"

	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// Operator is a condition comparison
type Operator string

const (
	OpEqual   Operator = "=="
	OpGreater Operator = ">"
	OpLess    Operator = "<"
	OpIn      Operator = "in"
)

// Condition is a predicate over a single record field
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Validate checks the operator and operand shape
func (c Condition) Validate() error {
	if c.Field == "" {
		return &RuleError{Field: "condition.field", Reason: "must not be empty"}
	}
	switch c.Operator {
	case OpEqual, OpGreater, OpLess:
		return nil
	case OpIn:
		if _, ok := listValues(c.Value); !ok {
			return &RuleError{Field: "condition.value", Reason: "operator \"in\" requires a list"}
		}
		return nil
	default:
		return &RuleError{Field: "condition.operator", Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
}

// Match evaluates the condition against a record. Ordering operators compare
// numerically when both sides are numeric and lexically otherwise.
func (c Condition) Match(r models.Record) bool {
	got, present := r[c.Field]
	if !present {
		return false
	}

	switch c.Operator {
	case OpEqual:
		return equal(got, c.Value)
	case OpGreater:
		return compare(got, c.Value) > 0
	case OpLess:
		return compare(got, c.Value) < 0
	case OpIn:
		list, ok := listValues(c.Value)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if equal(got, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func equal(a, b interface{}) bool {
	if fa, ok := utils.ToFloat64(a); ok {
		if fb, ok := utils.ToFloat64(b); ok {
			return fa == fb
		}
	}
	return stringify(a) == stringify(b)
}

// compare returns -1, 0 or 1
func compare(a, b interface{}) int {
	if fa, ok := utils.ToFloat64(a); ok {
		if fb, ok := utils.ToFloat64(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := stringify(a), stringify(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func stringify(v interface{}) string {
	return models.Record{"v": v}.String("v")
}

func listValues(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
