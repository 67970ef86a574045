package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// A design whose largest change falls below this has converged
	changeTolerance = 1.e-6
	// Relative width of the final Lagrange multiplier bracket
	bisectionTolerance = 1.e-12
	maxBisections      = 200
	// Sensitivities are clipped to this before dividing
	tiny = 1.e-30
)

// OC is the optimality criteria update for a monotone objective under one
// linear resource constraint. Each step scales every design variable by
// (-df/dx / (lambda dc/dx))^Damping, limited to Move around the current value
// and to the bounds, with lambda found by bisection so that the linearized
// constraint is satisfied.
type OC struct {
	Move    float64
	Damping float64
}

func DefaultOC() OC {
	return OC{Move: 0.2, Damping: 0.5}
}

func (oc OC) Validate() error {
	if !(oc.Move > 0 && oc.Move <= 1) {
		return fmt.Errorf("%w: move limit %v outside (0, 1]", ErrBadProblem, oc.Move)
	}
	if !(oc.Damping > 0 && oc.Damping <= 1) {
		return fmt.Errorf("%w: damping %v outside (0, 1]", ErrBadProblem, oc.Damping)
	}
	return nil
}

// Minimize runs until MaxEval objective evaluations have been spent or the
// design stops moving. Every iteration evaluates the objective and the
// constraint, both with gradients, at the current design.
func (oc OC) Minimize(p Problem, x0 []float64) (Result, error) {
	if err := oc.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	n := len(p.Lower)
	if len(x0) != n {
		return Result{}, fmt.Errorf("%w: start has length %d, bounds %d", ErrBadProblem, len(x0), n)
	}

	x := make([]float64, n)
	for i, v := range x0 {
		x[i] = math.Min(math.Max(v, p.Lower[i]), p.Upper[i])
	}
	var (
		res  = Result{Status: BudgetExhausted}
		dfdx = make([]float64, n)
		dcdx = make([]float64, n)
		next = make([]float64, n)
	)
	for res.Evaluations < p.MaxEval {
		f, err := p.Objective(x, dfdx)
		if err != nil {
			return res, err
		}
		res.Evaluations++
		last := res.Evaluations == p.MaxEval
		var c float64
		if last {
			c, err = p.Constraint(x, nil)
		} else {
			c, err = p.Constraint(x, dcdx)
		}
		if err != nil {
			return res, err
		}
		res.X = append(res.X[:0], x...)
		res.F, res.C = f, c
		if last {
			break
		}

		oc.step(p, x, dfdx, c, dcdx, next)
		if floats.Distance(next, x, math.Inf(1)) < changeTolerance {
			res.Status = Converged
			break
		}
		x, next = next, x
	}
	return res, nil
}

// step writes the next design into out
func (oc OC) step(p Problem, x, dfdx []float64, c float64, dcdx, out []float64) {
	update := func(lambda float64) float64 {
		var dc float64
		for i := range x {
			lo := math.Max(p.Lower[i], x[i]-oc.Move)
			hi := math.Min(p.Upper[i], x[i]+oc.Move)
			if dcdx[i] <= 0 {
				// the constraint does not see this variable
				out[i] = x[i]
				continue
			}
			b := math.Max(-dfdx[i], tiny) / (lambda * dcdx[i])
			out[i] = math.Min(math.Max(x[i]*math.Pow(b, oc.Damping), lo), hi)
			dc += dcdx[i] * (out[i] - x[i])
		}
		// linearized constraint value at out
		return c + dc
	}

	l1, l2 := 0., 1.
	for k := 0; update(l2) > 0 && k < maxBisections; k++ {
		l1, l2 = l2, 2*l2
	}
	for k := 0; k < maxBisections && (l2-l1) > bisectionTolerance*(l1+l2); k++ {
		mid := 0.5 * (l1 + l2)
		if update(mid) > 0 {
			l1 = mid
		} else {
			l2 = mid
		}
	}
	// keep the feasible end of the bracket
	update(l2)
}
