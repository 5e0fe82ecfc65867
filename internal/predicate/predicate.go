// Package predicate is the minimal built-in expression evaluator
// wired into cmd/sortkit for --where/--stopWhen. pkg/input's
// Evaluator interface treats the full expression engine as a
// swappable collaborator; this package is one concrete, narrow
// implementation covering "recordnumber" comparisons.
package predicate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sortkit/sortkit/pkg/input"
)

var exprPattern = regexp.MustCompile(`^recordnumber\s*(%|==|>=|<=|>|<|!=)\s*(-?\d+)\s*(?:==\s*(-?\d+))?$`)

// RecordNumberExpr evaluates equations of the shape
// "recordnumber>=10" or "recordnumber%2==0" against Context.RecordNumber.
type RecordNumberExpr struct {
	op       string
	operand  int64
	modEqual int64
	isMod    bool
}

// Parse compiles one WHERE/STOP equation. It never returns Null itself
// (Null is reserved for equations that legitimately can't be
// evaluated, e.g. a missing field); a record-number comparison is
// always defined.
func Parse(equ string) (*RecordNumberExpr, error) {
	m := exprPattern.FindStringSubmatch(equ)
	if m == nil {
		return nil, fmt.Errorf("predicate: unsupported equation %q", equ)
	}

	op := m[1]
	operand, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("predicate: bad operand in %q: %w", equ, err)
	}

	e := &RecordNumberExpr{op: op, operand: operand}
	if op == "%" {
		if m[3] == "" {
			return nil, fmt.Errorf("predicate: %%  requires ==N in %q", equ)
		}
		eq, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate: bad modulus target in %q: %w", equ, err)
		}
		e.isMod = true
		e.modEqual = eq
	}
	return e, nil
}

func (e *RecordNumberExpr) Evaluate(ctx input.Context) (value bool, isNull bool, err error) {
	n := ctx.ContinuousNum

	if e.isMod {
		return n%e.operand == e.modEqual, false, nil
	}

	switch e.op {
	case "==":
		return n == e.operand, false, nil
	case "!=":
		return n != e.operand, false, nil
	case ">=":
		return n >= e.operand, false, nil
	case "<=":
		return n <= e.operand, false, nil
	case ">":
		return n > e.operand, false, nil
	case "<":
		return n < e.operand, false, nil
	default:
		return false, false, fmt.Errorf("predicate: unknown operator %q", e.op)
	}
}
