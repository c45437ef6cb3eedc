package gradcheck_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/gradcheck"
)

type V = autodiff.Var[float64]

var product = gradcheck.Func{
	Name:   "product",
	Inputs: []string{"x", "y"},
	Build: func(_ *autodiff.Trace, in []V) V {
		return in[0].Mul(in[1])
	},
}

func TestProgram(t *testing.T) {
	src, err := gradcheck.Program(product)
	require.NoError(t, err)

	assert.Contains(t, src, "package gen\n")
	assert.Contains(t, src, "func Grad(in []float64, seed float64) (float64, []float64) {\n")
	assert.Contains(t, src, "v0 = in[0]\nv1 = in[1]\n")
	assert.NotContains(t, src, "x :=")
	assert.Contains(t, src, "v2 = v0 * v1\n")
	assert.Contains(t, src, "dv2 += seed\n")
	assert.Contains(t, src, "return v2, []float64{dv0, dv1}\n}\n")
}

func TestCompile(t *testing.T) {
	src, err := gradcheck.Program(product)
	require.NoError(t, err)
	grad, err := gradcheck.Compile(src)
	require.NoError(t, err)

	value, grads := grad([]float64{3, 4}, 2)
	assert.InDelta(t, 12.0, value, 1e-12)
	assert.InDeltaSlice(t, []float64{8, 6}, grads, 1e-12)
}

func TestCompile_InvalidSource(t *testing.T) {
	_, err := gradcheck.Compile("package gen\nfunc Grad(")
	assert.True(t, errors.Is(err, gradcheck.ErrInterpret), "got %v", err)
}

func TestCheck_Passes(t *testing.T) {
	report, err := gradcheck.Check(product, []float64{1.5, -2}, gradcheck.DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, -3.0, report.Value, 1e-12)
	assert.InDeltaSlice(t, []float64{-2, 1.5}, report.Analytic, 1e-12)
	assert.InDeltaSlice(t, report.Analytic, report.Numeric, 1e-6)
	assert.Less(t, report.MaxError, 1e-6)
}

func TestCheck_DetectsWrongRule(t *testing.T) {
	// Sine with the derivative of cosine.
	wrong := gradcheck.Func{
		Name:   "badsin",
		Inputs: []string{"x"},
		Build: func(tr *autodiff.Trace, in []V) V {
			return autodiff.Custom[float64](tr, "$v = math.Sin($0)", "d$0 -= d$v * math.Sin($0)", in[0])
		},
	}
	report, err := gradcheck.Check(wrong, []float64{0.7}, gradcheck.Options{})
	assert.True(t, errors.Is(err, gradcheck.ErrMismatch), "got %v", err)
	require.NotNil(t, report)
	assert.Greater(t, report.MaxError, 0.1)
}

func TestCheck_InvalidFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   gradcheck.Func
	}{
		{"no body", gradcheck.Func{Name: "f", Inputs: []string{"x"}}},
		{"not identifier", gradcheck.Func{Name: "f", Inputs: []string{"1x"}, Build: product.Build}},
		{"duplicate", gradcheck.Func{Name: "f", Inputs: []string{"x", "x"}, Build: product.Build}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point := make([]float64, len(tt.fn.Inputs))
			_, err := gradcheck.Check(tt.fn, point, gradcheck.DefaultOptions())
			assert.True(t, errors.Is(err, gradcheck.ErrInvalidFunc), "got %v", err)
		})
	}
}

func TestCheck_InputNamesMatchWrapperNames(t *testing.T) {
	fn := product
	for _, inputs := range [][]string{{"in", "seed"}, {"math", "Grad"}, {"v1", "dv0"}} {
		fn.Inputs = inputs
		report, err := gradcheck.Check(fn, []float64{2, 3}, gradcheck.DefaultOptions())
		require.NoError(t, err, "inputs %v", inputs)
		assert.InDeltaSlice(t, []float64{3, 2}, report.Analytic, 1e-12)
	}
}

func TestCheck_PointArity(t *testing.T) {
	_, err := gradcheck.Check(product, []float64{1}, gradcheck.DefaultOptions())
	assert.True(t, errors.Is(err, gradcheck.ErrInvalidFunc), "got %v", err)
}

func TestProgram_RecoversTracingPanic(t *testing.T) {
	foreign := autodiff.NewTrace()
	foreign.Start()
	stray := autodiff.Symbol[float64](foreign, "z")

	fn := gradcheck.Func{
		Name:   "mixed",
		Inputs: []string{"x"},
		Build: func(_ *autodiff.Trace, in []V) V {
			return in[0].Add(stray)
		},
	}
	_, err := gradcheck.Program(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing mixed")
}
