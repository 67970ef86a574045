package optimizer

import (
	"errors"
	"fmt"
	"math"
)

// ErrBadProblem reports a problem the optimizer cannot start from: missing
// callbacks, inconsistent bounds or a starting point of the wrong size.
var ErrBadProblem = errors.New("optimizer: bad problem")

// Func evaluates a function at x. When len(grad) > 0 the gradient is written
// into grad; a zero length grad asks for the value only.
type Func func(x, grad []float64) (float64, error)

// Problem is a bound constrained minimization with one inequality
// constraint Constraint(x) <= Tolerance.
type Problem struct {
	Lower, Upper []float64
	Objective    Func
	Constraint   Func
	Tolerance    float64
	MaxEval      int // objective evaluations
}

func (p Problem) Validate() error {
	switch {
	case p.Objective == nil:
		return fmt.Errorf("%w: no objective", ErrBadProblem)
	case p.Constraint == nil:
		return fmt.Errorf("%w: no constraint", ErrBadProblem)
	case len(p.Lower) == 0 || len(p.Lower) != len(p.Upper):
		return fmt.Errorf("%w: bounds of length %d and %d", ErrBadProblem, len(p.Lower), len(p.Upper))
	case p.MaxEval <= 0:
		return fmt.Errorf("%w: evaluation budget %d", ErrBadProblem, p.MaxEval)
	case p.Tolerance < 0 || math.IsNaN(p.Tolerance):
		return fmt.Errorf("%w: constraint tolerance %v", ErrBadProblem, p.Tolerance)
	}
	for i := range p.Lower {
		if !(p.Lower[i] <= p.Upper[i]) {
			return fmt.Errorf("%w: lower bound %v above upper bound %v at %d",
				ErrBadProblem, p.Lower[i], p.Upper[i], i)
		}
	}
	return nil
}

type Status uint8

const (
	BudgetExhausted Status = iota
	Converged
)

func (s Status) String() string {
	switch s {
	case BudgetExhausted:
		return "budget exhausted"
	case Converged:
		return "converged"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Result is the last evaluated design with its objective and constraint
// values
type Result struct {
	X           []float64
	F, C        float64
	Evaluations int
	Status      Status
}

// Optimizer minimizes a Problem from x0
type Optimizer interface {
	Minimize(p Problem, x0 []float64) (Result, error)
}
