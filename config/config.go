package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every problem file validation failure
var ErrInvalidConfig = errors.New("invalid problem configuration")

// Axis names a displacement component
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// Index returns the DOF offset of the axis within a node
func (a Axis) Index() (int, error) {
	switch a {
	case AxisX:
		return 0, nil
	case AxisY:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: unknown axis %q", ErrInvalidConfig, string(a))
}

// All selects every column (for I) or every row (for J)
const All = -1

// Material holds the linear elastic constants and the SIMP exponent
type Material struct {
	Young    float64 `yaml:"young"`
	YoungMin float64 `yaml:"young_min"`
	Poisson  float64 `yaml:"poisson"`
	Penal    float64 `yaml:"penal"`
}

// Support fixes one displacement component at node (I, J). I runs over
// columns 0..width, J over rows 0..height; All selects a whole column or row.
type Support struct {
	I    int  `yaml:"i"`
	J    int  `yaml:"j"`
	Axis Axis `yaml:"axis"`
}

// PointLoad is a point force on one component of node (I, J), with the same
// selectors as Support
type PointLoad struct {
	I     int     `yaml:"i"`
	J     int     `yaml:"j"`
	Axis  Axis    `yaml:"axis"`
	Value float64 `yaml:"value"`
}

// OptimizerConfig tunes the optimality criteria update
type OptimizerConfig struct {
	Move    float64 `yaml:"move"`
	Damping float64 `yaml:"damping"`
}

// Problem is the full setup of one optimization run
type Problem struct {
	Width               int             `yaml:"width"`
	Height              int             `yaml:"height"`
	Density             float64         `yaml:"density"`
	Material            Material        `yaml:"material"`
	FilterWidth         float64         `yaml:"filter_width"`
	OptSteps            int             `yaml:"opt_steps"`
	PrintEvery          int             `yaml:"print_every"`
	ConstraintTolerance float64         `yaml:"constraint_tolerance"`
	XMin                float64         `yaml:"x_min"`
	XMax                float64         `yaml:"x_max"`
	Mask                []float64       `yaml:"mask,omitempty"`
	Supports            []Support       `yaml:"supports"`
	Loads               []PointLoad     `yaml:"loads"`
	Optimizer           OptimizerConfig `yaml:"optimizer"`
}

// DefaultProblem is a simply supported half beam: rollers along the left
// edge, a pin in y at the bottom right corner and a downward unit load at
// the top left corner.
func DefaultProblem() *Problem {
	p := &Problem{
		Width:   80,
		Height:  25,
		Density: 0.4,
		Material: Material{
			Young:    1,
			YoungMin: 1.e-9,
			Poisson:  0.3,
			Penal:    3,
		},
		FilterWidth:         2,
		OptSteps:            80,
		PrintEvery:          10,
		ConstraintTolerance: 1.e-8,
		XMin:                0.001,
		XMax:                1,
		Optimizer:           OptimizerConfig{Move: 0.2, Damping: 0.5},
	}
	p.Supports = []Support{
		{I: 0, J: All, Axis: AxisX},
		{I: p.Width, J: p.Height, Axis: AxisY},
	}
	p.Loads = []PointLoad{{I: 0, J: 0, Axis: AxisY, Value: -1}}
	return p
}

// Load reads a problem file over the defaults and validates it. Supports and
// loads are never inherited from the defaults.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML problem data over the defaults and validates it
func Parse(data []byte) (*Problem, error) {
	p := DefaultProblem()
	p.Supports, p.Loads = nil, nil
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the problem as YAML
func (p *Problem) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create problem directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal problem: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write problem: %w", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every scalar, the mask and the boundary conditions
func (p *Problem) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return invalid("grid %dx%d", p.Width, p.Height)
	case !(p.Density > 0 && p.Density <= 1):
		return invalid("density %v outside (0, 1]", p.Density)
	case !finite(p.FilterWidth) || p.FilterWidth < 0:
		return invalid("filter width %v", p.FilterWidth)
	case p.OptSteps < 0:
		return invalid("opt_steps %d", p.OptSteps)
	case p.PrintEvery < 0:
		return invalid("print_every %d", p.PrintEvery)
	case !finite(p.ConstraintTolerance) || p.ConstraintTolerance < 0:
		return invalid("constraint tolerance %v", p.ConstraintTolerance)
	case !(p.XMin >= 0 && p.XMin < p.XMax && p.XMax <= 1):
		return invalid("design bounds [%v, %v] not inside [0, 1]", p.XMin, p.XMax)
	case !(p.Optimizer.Move > 0 && p.Optimizer.Move <= 1):
		return invalid("optimizer move %v outside (0, 1]", p.Optimizer.Move)
	case !(p.Optimizer.Damping > 0 && p.Optimizer.Damping <= 1):
		return invalid("optimizer damping %v outside (0, 1]", p.Optimizer.Damping)
	}
	if err := p.Material.validate(); err != nil {
		return err
	}
	if err := p.validateMask(); err != nil {
		return err
	}
	if len(p.Supports) == 0 {
		return invalid("no supports")
	}
	if len(p.Loads) == 0 {
		return invalid("no loads")
	}
	for k, s := range p.Supports {
		if err := p.checkNode(s.I, s.J, s.Axis); err != nil {
			return fmt.Errorf("support %d: %w", k, err)
		}
	}
	for k, l := range p.Loads {
		if err := p.checkNode(l.I, l.J, l.Axis); err != nil {
			return fmt.Errorf("load %d: %w", k, err)
		}
		if !finite(l.Value) {
			return fmt.Errorf("load %d: %w", k, invalid("value %v", l.Value))
		}
	}
	return nil
}

func (m Material) validate() error {
	switch {
	case !finite(m.Young) || !finite(m.YoungMin) || !(m.YoungMin > 0) || !(m.Young > m.YoungMin):
		return invalid("moduli young=%v young_min=%v, need 0 < young_min < young", m.Young, m.YoungMin)
	case !(m.Poisson > -1 && m.Poisson < 0.5):
		return invalid("poisson ratio %v outside (-1, 0.5)", m.Poisson)
	case !finite(m.Penal) || !(m.Penal >= 1):
		return invalid("penalization %v below 1", m.Penal)
	}
	return nil
}

func (p *Problem) validateMask() error {
	if len(p.Mask) == 0 {
		return nil
	}
	if len(p.Mask) != p.Width*p.Height {
		return invalid("mask has %d values for a %dx%d grid", len(p.Mask), p.Width, p.Height)
	}
	var sum float64
	for i, v := range p.Mask {
		if !(v >= 0 && v <= 1) {
			return invalid("mask value %v at %d outside [0, 1]", v, i)
		}
		sum += v
	}
	if sum == 0 {
		return invalid("mask is empty")
	}
	return nil
}

func (p *Problem) checkNode(i, j int, axis Axis) error {
	if i < All || i > p.Width {
		return invalid("column %d outside 0..%d", i, p.Width)
	}
	if j < All || j > p.Height {
		return invalid("row %d outside 0..%d", j, p.Height)
	}
	_, err := axis.Index()
	return err
}

// NumDOFs is the number of displacement unknowns of the grid
func (p *Problem) NumDOFs() int {
	return 2 * (p.Width + 1) * (p.Height + 1)
}

// each calls fn with the flat DOF index of every node component selected by
// (i, j, axis)
func (p *Problem) each(i, j int, axis Axis, fn func(dof int)) {
	a, _ := axis.Index()
	i0, i1 := i, i
	if i == All {
		i0, i1 = 0, p.Width
	}
	j0, j1 := j, j
	if j == All {
		j0, j1 = 0, p.Height
	}
	for ii := i0; ii <= i1; ii++ {
		for jj := j0; jj <= j1; jj++ {
			fn(2*((p.Height+1)*ii+jj) + a)
		}
	}
}

// Normals expands the supports into a flag per DOF: 1 for fixed, 0 for free
func (p *Problem) Normals() []float64 {
	normals := make([]float64, p.NumDOFs())
	for _, s := range p.Supports {
		p.each(s.I, s.J, s.Axis, func(d int) { normals[d] = 1 })
	}
	return normals
}

// Forces expands the loads into a force per DOF. Loads on the same component
// add up.
func (p *Problem) Forces() []float64 {
	forces := make([]float64, p.NumDOFs())
	for _, l := range p.Loads {
		v := l.Value
		p.each(l.I, l.J, l.Axis, func(d int) { forces[d] += v })
	}
	return forces
}

// MaskGrid returns the design mask as a row-major (height, width) field. An
// empty mask is all ones.
func (p *Problem) MaskGrid() []float64 {
	mask := make([]float64, p.Width*p.Height)
	if len(p.Mask) == 0 {
		for i := range mask {
			mask[i] = 1
		}
		return mask
	}
	copy(mask, p.Mask)
	return mask
}
