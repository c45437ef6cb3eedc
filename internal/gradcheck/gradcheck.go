// Package gradcheck verifies generated derivative code numerically.
//
// A function is traced with the Go dialect in float64, wrapped into a
// self-contained Go source file and run through the yaegi interpreter. The
// analytic gradient it returns is compared against central differences of
// the generated forward pass.
package gradcheck

import (
	"fmt"
	"go/token"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/codegen"
)

// Errors returned by Program, Compile and Check.
var (
	ErrMismatch    = errors.New("gradient mismatch")
	ErrInvalidFunc = errors.New("invalid function")
	ErrInterpret   = errors.New("interpreting generated code")
)

// Func is a scalar function to trace.
type Func struct {
	Name   string
	Inputs []string
	Build  func(tr *autodiff.Trace, in []autodiff.Var[float64]) autodiff.Var[float64]
}

// GradFunc evaluates a generated gradient function: the output value and
// the input adjoints for the given output seed.
type GradFunc func(in []float64, seed float64) (float64, []float64)

// Options controls the comparison.
type Options struct {
	Step      float64 // central difference step
	Tolerance float64 // max error, relative to max(1, |analytic|, |numeric|)
	Logger    *zap.Logger
}

// DefaultOptions returns the default step and tolerance.
func DefaultOptions() Options {
	return Options{
		Step:      1e-6,
		Tolerance: 1e-4,
	}
}

// Report holds the outcome of one check.
type Report struct {
	Name     string
	Point    []float64
	Value    float64
	Analytic []float64
	Numeric  []float64
	MaxError float64
}

func (r *Report) String() string {
	return fmt.Sprintf("%s%v = %g: analytic %v numeric %v (max error %.3g)",
		r.Name, r.Point, r.Value, r.Analytic, r.Numeric, r.MaxError)
}

func validate(fn Func) error {
	if fn.Build == nil {
		return errors.Wrapf(ErrInvalidFunc, "%s: no body", fn.Name)
	}
	seen := make(map[string]bool, len(fn.Inputs))
	for _, name := range fn.Inputs {
		switch {
		case !token.IsIdentifier(name):
			return errors.Wrapf(ErrInvalidFunc, "%s: input %q is not an identifier", fn.Name, name)
		case seen[name]:
			return errors.Wrapf(ErrInvalidFunc, "%s: duplicate input %q", fn.Name, name)
		}
		seen[name] = true
	}
	return nil
}

// Program traces fn and returns a Go source file declaring
//
//	package gen
//	func Grad(in []float64, seed float64) (float64, []float64)
func Program(fn Func) (src string, err error) {
	if err := validate(fn); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tracing %s: %v", fn.Name, r)
		}
	}()

	tr := autodiff.NewTrace(autodiff.WithDialect(codegen.Go))
	tr.Start()
	in := make([]autodiff.Var[float64], len(fn.Inputs))
	// Inputs are read straight from the argument slice, so input names never
	// reach the generated code.
	for i := range fn.Inputs {
		in[i] = autodiff.Symbol[float64](tr, fmt.Sprintf("in[%d]", i))
	}
	out := fn.Build(tr, in)
	if err := tr.Stop(); err != nil {
		return "", err
	}
	if err := tr.SetGradient(out, "seed"); err != nil {
		return "", err
	}
	if err := tr.Backward(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("package gen\n\nimport \"math\"\n\nvar _ = math.Pi\n\n")
	b.WriteString("func Grad(in []float64, seed float64) (float64, []float64) {\n")
	b.WriteString(tr.Code())
	grads := make([]string, len(in))
	for i, v := range in {
		grads[i] = tr.Gradient(v)
	}
	fmt.Fprintf(&b, "return %s, []float64{%s}\n}\n", tr.Value(out), strings.Join(grads, ", "))
	return b.String(), nil
}

// Compile interprets a program produced by Program and returns its Grad.
func Compile(src string) (GradFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errors.Wrap(err, "loading stdlib symbols")
	}
	if _, err := i.Eval(src); err != nil {
		return nil, errors.Wrapf(ErrInterpret, "%v\n%s", err, src)
	}
	v, err := i.Eval("gen.Grad")
	if err != nil {
		return nil, errors.Wrapf(ErrInterpret, "resolving Grad: %v", err)
	}
	grad, ok := v.Interface().(func([]float64, float64) (float64, []float64))
	if !ok {
		return nil, errors.Wrapf(ErrInterpret, "Grad has type %T", v.Interface())
	}
	return grad, nil
}

// Check compares fn's generated gradient at point against central
// differences. On a mismatch the report is returned along with ErrMismatch.
func Check(fn Func, point []float64, opts Options) (*Report, error) {
	if len(point) != len(fn.Inputs) {
		return nil, errors.Wrapf(ErrInvalidFunc, "%s: %d inputs, point has %d", fn.Name, len(fn.Inputs), len(point))
	}
	if opts.Step <= 0 {
		opts.Step = DefaultOptions().Step
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	src, err := Program(fn)
	if err != nil {
		return nil, err
	}
	grad, err := Compile(src)
	if err != nil {
		return nil, err
	}

	value, analytic := grad(slices.Clone(point), 1)
	report := &Report{
		Name:     fn.Name,
		Point:    slices.Clone(point),
		Value:    value,
		Analytic: analytic,
		Numeric:  make([]float64, len(point)),
	}
	for i := range point {
		hi, lo := slices.Clone(point), slices.Clone(point)
		hi[i] += opts.Step
		lo[i] -= opts.Step
		fhi, _ := grad(hi, 0)
		flo, _ := grad(lo, 0)
		report.Numeric[i] = (fhi - flo) / (2 * opts.Step)

		scale := math.Max(1, math.Max(math.Abs(analytic[i]), math.Abs(report.Numeric[i])))
		report.MaxError = math.Max(report.MaxError, math.Abs(analytic[i]-report.Numeric[i])/scale)
	}

	opts.Logger.Debug("gradient checked",
		zap.String("func", fn.Name),
		zap.Float64s("point", point),
		zap.Float64s("analytic", report.Analytic),
		zap.Float64s("numeric", report.Numeric),
		zap.Float64("max_error", report.MaxError))

	if report.MaxError > opts.Tolerance || math.IsNaN(report.MaxError) {
		return report, errors.Wrapf(ErrMismatch, "%s", report)
	}
	return report, nil
}
