// Package condition implements C9: safe evaluation of gating conditions
// over a context map, in two construction forms — a simple comparator and
// a restricted boolean expression language. Neither form allows arbitrary
// code execution or attribute access beyond context lookup.
package condition

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// Operator is one of the six comparators the simple form supports.
type Operator string

const (
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Condition is evaluated against a context map to produce a gating bool.
type Condition interface {
	Evaluate(ctx map[string]any) (bool, error)
}

// Simple is the (variable, operator, literal) comparator form.
type Simple struct {
	Variable string
	Operator Operator
	Literal  any
}

// NewSimple constructs a Simple condition.
func NewSimple(variable string, op Operator, literal any) Simple {
	return Simple{Variable: variable, Operator: op, Literal: literal}
}

// Evaluate reads Variable from ctx and compares it against Literal.
// Numeric operands compare numerically; strings compare lexically;
// everything else compares by strict equality (only == and != are
// meaningful there).
func (s Simple) Evaluate(ctx map[string]any) (bool, error) {
	left, ok := ctx[s.Variable]
	if !ok {
		left = nil
	}
	return compare(left, s.Operator, s.Literal)
}

func compare(left any, op Operator, right any) (bool, error) {
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return compareOrdered(lf, rf, op)
		}
	}
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			return compareOrdered(ls, rs, op)
		}
	}
	switch op {
	case OpEQ:
		return left == right, nil
	case OpNE:
		return left != right, nil
	default:
		return false, fmt.Errorf("condition: operator %q not defined for non-comparable operands", op)
	}
}

type ordered interface {
	~float64 | ~string
}

func compareOrdered[T ordered](left, right T, op Operator) (bool, error) {
	switch op {
	case OpGT:
		return left > right, nil
	case OpLT:
		return left < right, nil
	case OpGE:
		return left >= right, nil
	case OpLE:
		return left <= right, nil
	case OpEQ:
		return left == right, nil
	case OpNE:
		return left != right, nil
	default:
		return false, fmt.Errorf("condition: unknown operator %q", op)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Expression is the restricted boolean-expression form: AND/OR/NOT plus
// comparators and literals over context variables, compiled with
// expr-lang/expr's safe evaluator (no arbitrary statements, no attribute
// access beyond map lookups).
type Expression struct {
	Source string

	program *expr.Program
}

// NewExpression compiles source once. Compilation failures surface here,
// not at Evaluate time.
func NewExpression(source string) (*Expression, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("condition: invalid expression: %w", err)
	}
	return &Expression{Source: source, program: program}, nil
}

// Evaluate runs the compiled expression against ctx.
func (e *Expression) Evaluate(ctx map[string]any) (bool, error) {
	out, err := expr.Run(e.program, ctx)
	if err != nil {
		return false, fmt.Errorf("condition: evaluation failed: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition: expression did not produce a bool, got %T", out)
	}
	return b, nil
}

// EvaluateAll reports whether every gating condition is true against ctx.
// An empty list is vacuously true (no gate).
func EvaluateAll(conds []Condition, ctx map[string]any) (bool, error) {
	for _, c := range conds {
		ok, err := c.Evaluate(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
