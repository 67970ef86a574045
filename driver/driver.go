package driver

import (
	"fmt"
	"time"

	"github.com/notargets/topopt/assembly"
	"github.com/notargets/topopt/autodiff"
	"github.com/notargets/topopt/compliance"
	"github.com/notargets/topopt/config"
	"github.com/notargets/topopt/element"
	"github.com/notargets/topopt/filter"
	"github.com/notargets/topopt/material"
	"github.com/notargets/topopt/optimizer"
	"github.com/notargets/topopt/partitions"
	"go.uber.org/zap"
)

// Trace is the append-only record of objective evaluations: the loss and a
// copy of the physical density at every call.
type Trace struct {
	Losses []float64   `yaml:"losses"`
	Frames [][]float64 `yaml:"frames,omitempty"`
}

// Result is what a run leaves behind
type Result struct {
	Losses             []float64   `yaml:"losses"`
	Final              []float64   `yaml:"final"`
	Frames             [][]float64 `yaml:"frames,omitempty"`
	X                  []float64   `yaml:"x"`
	Loss               float64     `yaml:"loss"`
	ConstraintValue    float64     `yaml:"constraint_value"`
	ConstraintViolated bool        `yaml:"constraint_violated"`
	Evaluations        int         `yaml:"evaluations"`
	Status             string      `yaml:"status"`
	Width              int         `yaml:"width"`
	Height             int         `yaml:"height"`
}

type Option func(*Driver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithOptimizer(o optimizer.Optimizer) Option {
	return func(d *Driver) { d.opt = o }
}

// WithoutTrace disables loss and frame recording. Optimization results do
// not change.
func WithoutTrace() Option {
	return func(d *Driver) { d.record = false }
}

// WithInitialDesign starts from x instead of the constant target density
func WithInitialDesign(x []float64) Option {
	return func(d *Driver) { d.x0 = append([]float64(nil), x...) }
}

// Driver owns all state of one optimization run. It is not safe for
// concurrent use.
type Driver struct {
	Config *config.Problem
	Model  *compliance.Model

	logger *zap.Logger
	opt    optimizer.Optimizer
	record bool
	x0     []float64
	trace  Trace
	evals  int
	start  time.Time
}

// New validates the problem, builds the DOF partition, the element matrix,
// the filter and the compliance model. Configuration errors are returned
// here, before any solve.
func New(cfg *config.Problem, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil problem", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		Config: cfg,
		logger: zap.NewNop(),
		opt:    optimizer.OC{Move: cfg.Optimizer.Move, Damping: cfg.Optimizer.Damping},
		record: true,
	}
	for _, o := range opts {
		o(d)
	}

	grid, err := assembly.NewGrid(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	p, err := partitions.FromNormals(cfg.Normals(), cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("building DOF partition: %w", err)
	}
	ke, err := element.NewStiffness(cfg.Material.Young, cfg.Material.Poisson)
	if err != nil {
		return nil, err
	}
	f, err := filter.New(cfg.FilterWidth, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	simp := material.SIMP{
		E0:    cfg.Material.Young,
		Emin:  cfg.Material.YoungMin,
		Penal: cfg.Material.Penal,
	}
	if d.Model, err = compliance.NewModel(grid, p, ke, simp, f, cfg.MaskGrid(), cfg.Forces()); err != nil {
		return nil, err
	}

	n := grid.NumElements()
	if d.x0 == nil {
		d.x0 = make([]float64, n)
		for i := range d.x0 {
			d.x0[i] = cfg.Density
		}
	} else if len(d.x0) != n {
		return nil, fmt.Errorf("%w: initial design has %d values for %d elements",
			config.ErrInvalidConfig, len(d.x0), n)
	}
	d.logger.Debug("problem set up",
		zap.Int("elements", n),
		zap.Int("dofs", p.NumDOFs),
		zap.Int("free", p.NumFree()),
		zap.Int("fixed", len(p.Fixed)),
		zap.Float64("filter_width", cfg.FilterWidth))
	return d, nil
}

// Trace returns the recorded evaluations so far
func (d *Driver) Trace() Trace { return d.trace }

// Objective is the compliance of design x. When len(grad) > 0 the gradient
// is written into grad. Every call is recorded in the trace.
func (d *Driver) Objective(x, grad []float64) (float64, error) {
	tp := autodiff.NewTape()
	xn := d.leaf(tp, x, grad)
	loss, xPhys, err := d.Model.Evaluate(tp, xn)
	if err != nil {
		return 0, fmt.Errorf("objective: %w", err)
	}
	if err := backward(tp, loss, xn, grad); err != nil {
		return 0, fmt.Errorf("objective gradient: %w", err)
	}
	value := loss.Scalar()
	d.observe(value, xPhys.Value)
	return value, nil
}

// Constraint is mean(x_phys)/mean(mask) - density
func (d *Driver) Constraint(x, grad []float64) (float64, error) {
	tp := autodiff.NewTape()
	xn := d.leaf(tp, x, grad)
	c, err := d.Model.VolumeConstraint(tp, xn, d.Config.Density)
	if err != nil {
		return 0, fmt.Errorf("constraint: %w", err)
	}
	if err := backward(tp, c, xn, grad); err != nil {
		return 0, fmt.Errorf("constraint gradient: %w", err)
	}
	return c.Scalar(), nil
}

func (d *Driver) leaf(tp *autodiff.Tape, x, grad []float64) *autodiff.Node {
	if len(grad) > 0 {
		return tp.Variable(x)
	}
	return tp.Constant(x)
}

func backward(tp *autodiff.Tape, out, x *autodiff.Node, grad []float64) error {
	if len(grad) == 0 {
		return nil
	}
	if len(grad) != len(x.Value) {
		return fmt.Errorf("gradient buffer has length %d, design %d", len(grad), len(x.Value))
	}
	if err := tp.Backward(out); err != nil {
		return err
	}
	copy(grad, x.Grad)
	return nil
}

func (d *Driver) observe(loss float64, xPhys []float64) {
	d.evals++
	if pe := d.Config.PrintEvery; pe > 0 && d.evals%pe == 0 {
		d.logger.Info("step",
			zap.Int("step", d.evals),
			zap.Float64("loss", loss),
			zap.Duration("elapsed", time.Since(d.start)))
	}
	if !d.record {
		return
	}
	d.trace.Losses = append(d.trace.Losses, loss)
	d.trace.Frames = append(d.trace.Frames, append([]float64(nil), xPhys...))
}

// Run minimizes compliance under the volume constraint with a budget of
// opt_steps + 1 objective evaluations. Any evaluation error aborts the run.
func (d *Driver) Run() (*Result, error) {
	n := d.Model.Grid.NumElements()
	p := optimizer.Problem{
		Lower:      make([]float64, n),
		Upper:      make([]float64, n),
		Objective:  d.Objective,
		Constraint: d.Constraint,
		Tolerance:  d.Config.ConstraintTolerance,
		MaxEval:    d.Config.OptSteps + 1,
	}
	for i := range p.Lower {
		p.Lower[i], p.Upper[i] = d.Config.XMin, d.Config.XMax
	}
	d.start = time.Now()
	d.logger.Info("optimizing",
		zap.Int("nodes", d.Model.Grid.NumNodes()),
		zap.Int("dofs", d.Model.Grid.NumDOFs()),
		zap.Int("max_evaluations", p.MaxEval))

	res, err := d.opt.Minimize(p, d.x0)
	if err != nil {
		d.logger.Error("optimization failed",
			zap.Int("evaluations", res.Evaluations),
			zap.Error(err))
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	// The final design is re-evaluated so Final matches X regardless of
	// which evaluation the optimizer reported.
	tp := autodiff.NewTape()
	xPhys, err := d.Model.PhysicalDensity(tp, tp.Constant(res.X))
	if err != nil {
		return nil, err
	}
	out := &Result{
		Losses:             append([]float64(nil), d.trace.Losses...),
		Final:              xPhys.Value,
		X:                  res.X,
		Loss:               res.F,
		ConstraintValue:    res.C,
		ConstraintViolated: res.C > p.Tolerance,
		Evaluations:        res.Evaluations,
		Status:             res.Status.String(),
		Width:              d.Config.Width,
		Height:             d.Config.Height,
	}
	if d.record {
		out.Frames = d.trace.Frames
	}
	if out.ConstraintViolated {
		d.logger.Warn("volume constraint not satisfied",
			zap.Float64("constraint", res.C),
			zap.Float64("tolerance", p.Tolerance))
	}
	d.logger.Info("done",
		zap.String("status", out.Status),
		zap.Float64("loss", res.F),
		zap.Int("evaluations", res.Evaluations),
		zap.Duration("elapsed", time.Since(d.start)))
	return out, nil
}
