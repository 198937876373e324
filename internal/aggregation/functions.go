package aggregation

import (
	"fmt"
	"strings"
)

// Function is an aggregate function name
type Function string

const (
	FuncSum      Function = "sum"
	FuncAvg      Function = "avg"
	FuncMin      Function = "min"
	FuncMax      Function = "max"
	FuncCount    Function = "count"
	FuncDistinct Function = "distinct"
)

var validFunctions = map[Function]bool{
	FuncSum:      true,
	FuncAvg:      true,
	FuncMin:      true,
	FuncMax:      true,
	FuncCount:    true,
	FuncDistinct: true,
}

// ParseFunction parses a function name case-insensitively
func ParseFunction(s string) (Function, error) {
	fn := Function(strings.ToLower(strings.TrimSpace(s)))
	if !validFunctions[fn] {
		return "", &RuleError{Field: "function", Reason: fmt.Sprintf("unknown aggregate function %q", s)}
	}
	return fn, nil
}

// Valid reports whether fn is a known function
func (fn Function) Valid() bool {
	return validFunctions[fn]
}

// Apply computes fn over values. Empty input yields 0 for every function.
func Apply(fn Function, values []float64) float64 {
	fs := NewFieldStats()
	for _, v := range values {
		fs.AddValue(v)
	}
	return fs.Value(fn)
}

// ResultField names the output column for a field/function pair
func ResultField(field string, fn Function) string {
	return field + "_" + string(fn)
}
