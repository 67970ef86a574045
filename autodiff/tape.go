package autodiff

import (
	"errors"
	"fmt"
)

// ErrGradientNotImplemented is returned by a reverse rule asked for a gradient
// it does not provide (e.g. the right hand side of a linear solve).
var ErrGradientNotImplemented = errors.New("autodiff: gradient not implemented")

// Primitive is a differentiable operation with an explicit reverse rule.
// Forward must not retain or modify its inputs. Backward receives the same
// inputs, the forward output and the gradient of the scalar loss with respect
// to that output, and returns one gradient per input. Entries for inputs with
// needs[i] == false may be nil.
type Primitive interface {
	Name() string
	Forward(inputs [][]float64) ([]float64, error)
	Backward(inputs [][]float64, output, gradOutput []float64, needs []bool) ([][]float64, error)
}

// Node is a value recorded on a Tape
type Node struct {
	ID    int
	Value []float64
	Grad  []float64 // Filled by Tape.Backward, nil until then or when not required

	requiresGrad bool
	op           Primitive
	inputs       []*Node
}

// RequiresGrad reports whether a gradient flows into this node
func (n *Node) RequiresGrad() bool { return n.requiresGrad }

// Scalar returns the single value of a length one node
func (n *Node) Scalar() float64 {
	if len(n.Value) != 1 {
		panic(fmt.Sprintf("node %d is not a scalar: length %d", n.ID, len(n.Value)))
	}
	return n.Value[0]
}

// Tape records primitives in evaluation order. A tape is built for a single
// evaluation and dropped afterwards; it is not safe for concurrent use.
type Tape struct {
	nodes []*Node
}

func NewTape() *Tape {
	return &Tape{}
}

// Len returns the number of recorded nodes
func (t *Tape) Len() int { return len(t.nodes) }

// Variable records a leaf that gradients are accumulated into
func (t *Tape) Variable(v []float64) *Node {
	return t.leaf(v, true)
}

// Constant records a leaf that is never differentiated
func (t *Tape) Constant(v []float64) *Node {
	return t.leaf(v, false)
}

func (t *Tape) leaf(v []float64, requiresGrad bool) *Node {
	n := &Node{
		ID:           len(t.nodes),
		Value:        v,
		requiresGrad: requiresGrad,
	}
	t.nodes = append(t.nodes, n)
	return n
}

// Apply runs the forward rule of p on the input nodes and records the result
func (t *Tape) Apply(p Primitive, inputs ...*Node) (*Node, error) {
	values := make([][]float64, len(inputs))
	requiresGrad := false
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("%s: input %d is nil", p.Name(), i)
		}
		values[i] = in.Value
		requiresGrad = requiresGrad || in.requiresGrad
	}
	out, err := p.Forward(values)
	if err != nil {
		return nil, fmt.Errorf("%s forward: %w", p.Name(), err)
	}
	n := &Node{
		ID:           len(t.nodes),
		Value:        out,
		requiresGrad: requiresGrad,
		op:           p,
		inputs:       inputs,
	}
	t.nodes = append(t.nodes, n)
	return n, nil
}

// Backward seeds d(out)/d(out) = 1 and walks the tape in reverse, filling
// Grad on every node that requires a gradient. Nodes are recorded in creation
// order, so reverse order is a valid topological order.
func (t *Tape) Backward(out *Node) error {
	if len(out.Value) != 1 {
		return fmt.Errorf("backward needs a scalar output, node %d has length %d",
			out.ID, len(out.Value))
	}
	if !out.requiresGrad {
		return fmt.Errorf("node %d does not depend on any variable", out.ID)
	}
	for _, n := range t.nodes {
		n.Grad = nil
	}
	out.Grad = []float64{1}

	for k := out.ID; k >= 0; k-- {
		n := t.nodes[k]
		if n.op == nil || n.Grad == nil || !n.requiresGrad {
			continue
		}
		values := make([][]float64, len(n.inputs))
		needs := make([]bool, len(n.inputs))
		for i, in := range n.inputs {
			values[i] = in.Value
			needs[i] = in.requiresGrad
		}
		grads, err := n.op.Backward(values, n.Value, n.Grad, needs)
		if err != nil {
			return fmt.Errorf("%s backward: %w", n.op.Name(), err)
		}
		if len(grads) != len(n.inputs) {
			return fmt.Errorf("%s backward returned %d gradients for %d inputs",
				n.op.Name(), len(grads), len(n.inputs))
		}
		for i, in := range n.inputs {
			if !needs[i] {
				continue
			}
			g := grads[i]
			if len(g) != len(in.Value) {
				return fmt.Errorf("%s backward: gradient %d has length %d, want %d",
					n.op.Name(), i, len(g), len(in.Value))
			}
			if in.Grad == nil {
				in.Grad = make([]float64, len(in.Value))
			}
			for j, v := range g {
				in.Grad[j] += v
			}
		}
	}
	return nil
}
