package autodiff_test

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/codegen"
	"github.com/born-ml/adgen/internal/tape"
)

// rosenbrock mirrors F(x, y) = (1-x)^2 + 100*(y-x*x)^2 written the way a
// caller would with overloaded operators.
func rosenbrock[T float32 | float64](x, y autodiff.Var[T]) autodiff.Var[T] {
	t := autodiff.ScalarSub(1, x)
	t2 := y.Sub(x.Mul(x))
	return t.Mul(t).Add(autodiff.ScalarMul(100, t2).Mul(t2))
}

// TestTrace_Sum is the two-input sum: both inputs receive z's adjoint
// unchanged.
func TestTrace_Sum(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float32](tr, "x")
	y := autodiff.Symbol[float32](tr, "y")
	z := x.Add(y)
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.SetGradient(z, "1"))
	require.NoError(t, tr.Backward())

	want := `float v0 = 0;
float dv0 = 0;
float v1 = 0;
float dv1 = 0;
float v2 = 0;
float dv2 = 0;
v0 = x;
v1 = y;
v2 = v0 + v1;
dv2 += 1;
dv0 += dv2; dv1 += dv2;
`
	if diff := cmp.Diff(want, tr.Code()); diff != "" {
		t.Errorf("Code() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "dv0", tr.Gradient(x))
	assert.Equal(t, "dv1", y.Gradient())
	assert.Equal(t, "v2", tr.Value(z))
}

var identRE = regexp.MustCompile(`\bd?v[0-9]+\b`)

// TestTrace_Rosenbrock checks every generated identifier used by the forward
// and backward code is declared.
func TestTrace_Rosenbrock(t *testing.T) {
	for _, d := range []codegen.Dialect{codegen.CPP, codegen.Go} {
		t.Run(d.Name(), func(t *testing.T) {
			tr := autodiff.NewTrace(autodiff.WithDialect(d))
			tr.Start()
			x := autodiff.Symbol[float32](tr, "x")
			y := autodiff.Symbol[float32](tr, "y")
			f := rosenbrock(x, y)
			require.NoError(t, tr.Stop())
			require.NoError(t, tr.SetGradient(f, "dz"))
			require.NoError(t, tr.Backward())

			declared := make(map[string]bool)
			for _, name := range identRE.FindAllString(tr.Declarations(), -1) {
				declared[name] = true
			}
			assert.Len(t, declared, 2*tr.Tape().Len())

			body := tr.ForwardCode() + tr.BackwardCode()
			for _, name := range identRE.FindAllString(body, -1) {
				assert.True(t, declared[name], "%s used but not declared", name)
			}
			assert.True(t, declared[tr.Gradient(x)])
			assert.True(t, declared[tr.Gradient(y)])
			assert.True(t, strings.HasPrefix(tr.BackwardCode(), tr.Gradient(f)+" += dz"))
		})
	}
}

func TestTrace_EmptyTrace(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Backward())
	assert.Empty(t, tr.Declarations())
	assert.Empty(t, tr.ForwardCode())
	assert.Empty(t, tr.BackwardCode())
	assert.Equal(t, "", tr.Code())
}

func TestTrace_Lifecycle(t *testing.T) {
	tr := autodiff.NewTrace()
	assert.False(t, tr.IsRecording())
	assert.True(t, errors.Is(tr.Stop(), autodiff.ErrNotRecording))

	tr.Start()
	assert.True(t, tr.IsRecording())
	x := autodiff.Symbol[float64](tr, "x")
	assert.True(t, errors.Is(tr.SetGradient(x, "1"), autodiff.ErrNotStopped))
	assert.True(t, errors.Is(tr.Backward(), autodiff.ErrNotStopped))

	require.NoError(t, tr.Stop())
	assert.True(t, errors.Is(tr.Stop(), autodiff.ErrNotRecording))
	assert.Panics(t, func() { x.Add(x) }, "recording after Stop")

	require.NoError(t, tr.SetGradient(x, "1"))
	require.NoError(t, tr.Backward())
	assert.True(t, errors.Is(tr.Backward(), autodiff.ErrBackwardDone))
	assert.True(t, errors.Is(tr.SetGradient(x, "1"), autodiff.ErrBackwardDone))
}

func TestTrace_StartResets(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float64](tr, "x")
	autodiff.Sin(x)
	require.NoError(t, tr.Stop())
	require.NotEmpty(t, tr.Code())

	tr.Start()
	assert.Equal(t, 0, tr.Tape().Len())
	assert.Empty(t, tr.Code())
	y := autodiff.Symbol[float64](tr, "y")
	assert.Equal(t, tape.ID(0), y.ID())
}

func TestVar_BoolArithmeticPanics(t *testing.T) {
	tr := autodiff.NewTrace(autodiff.WithDialect(codegen.Go))
	tr.Start()
	x := autodiff.Symbol[float64](tr, "x")
	c := x.GtScalar(0)

	assert.Panics(t, func() { c.Add(c) })
	assert.Panics(t, func() { c.MulScalar(true) })
	assert.Panics(t, func() { c.Neg() })
	assert.Panics(t, func() { c.Lt(c) })

	n := tr.Tape().Len()
	eq := c.Eq(c)
	autodiff.Select(eq, x, x)
	autodiff.Convert[int32](c)
	assert.Equal(t, n+3, tr.Tape().Len())
}

func TestTrace_ForeignHandle(t *testing.T) {
	a := autodiff.NewTrace()
	b := autodiff.NewTrace()
	a.Start()
	b.Start()
	x := autodiff.Symbol[float64](a, "x")
	y := autodiff.Symbol[float64](b, "y")

	assert.Panics(t, func() { x.Add(y) })
	assert.Panics(t, func() { autodiff.Var[float64]{}.Neg() })

	require.NoError(t, b.Stop())
	assert.True(t, errors.Is(b.SetGradient(x, "1"), autodiff.ErrForeignHandle))
}

func TestTrace_IndependentTraces(t *testing.T) {
	a := autodiff.NewTrace()
	b := autodiff.NewTrace(autodiff.WithDialect(codegen.Go))
	a.Start()
	b.Start()
	autodiff.Symbol[float32](a, "x").MulScalar(2)
	autodiff.Exp(autodiff.Symbol[float64](b, "y"))
	require.NoError(t, a.Stop())
	require.NoError(t, b.Stop())

	assert.Equal(t, 3, a.Tape().Len())
	assert.Equal(t, 2, b.Tape().Len())
	assert.Contains(t, a.ForwardCode(), "v1 = 2;\nv2 = v0 * v1;\n")
	assert.Contains(t, b.ForwardCode(), "v1 = math.Exp(v0)\n")
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSymbol_InvalidName(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	assert.Panics(t, func() { autodiff.Symbol[float32](tr, "") })
	assert.Panics(t, func() { autodiff.Symbol[float32](tr, "$0") })
}

// TestTrace_TopologicalOrder builds random expressions and checks every
// dependency id precedes its user.
func TestTrace_TopologicalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := autodiff.NewTrace()
	tr.Start()

	vars := []autodiff.Var[float64]{
		autodiff.Symbol[float64](tr, "x"),
		autodiff.Symbol[float64](tr, "y"),
	}
	pick := func() autodiff.Var[float64] { return vars[rng.Intn(len(vars))] }
	for range 300 {
		var v autodiff.Var[float64]
		switch rng.Intn(8) {
		case 0:
			v = pick().Add(pick())
		case 1:
			v = pick().Sub(pick())
		case 2:
			v = pick().Mul(pick())
		case 3:
			v = pick().Div(pick())
		case 4:
			v = autodiff.Sin(pick())
		case 5:
			v = pick().AddScalar(rng.Float64())
		case 6:
			v = autodiff.Select(pick().Lt(pick()), pick(), pick())
		default:
			v = autodiff.Convert[float64](autodiff.Convert[float32](pick()))
		}
		vars = append(vars, v)
	}
	require.NoError(t, tr.Stop())

	for op := range tr.Tape().All() {
		for _, dep := range op.Deps() {
			assert.Less(t, dep, op.ID)
		}
	}
	lines := strings.Count(tr.Declarations(), "\n")
	assert.Equal(t, 2*tr.Tape().Len(), lines)
}

func TestTrace_NonDifferentiableSkipped(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float32](tr, "x")
	y := autodiff.Symbol[float32](tr, "y")
	c := x.Lt(y)
	n := autodiff.Convert[int32](x)
	bogus := autodiff.Custom[bool](tr, "$v = $0 > 0;", "d$0 += 1;", x)
	out := autodiff.Select(c, x, y)
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.SetGradient(out, "1"))
	require.NoError(t, tr.Backward())

	for _, id := range []tape.ID{c.ID(), n.ID(), bogus.ID()} {
		assert.NotContains(t, tr.BackwardCode(), "+= "+codegen.AdjointName(id)+";")
	}
	assert.NotContains(t, tr.BackwardCode(), "dv0 += 1;")
	assert.Contains(t, tr.BackwardCode(), "if (v2) { dv0 += dv5; } else { dv1 += dv5; }\n")
}

func TestTrace_MultipleSeedsAdd(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float64](tr, "x")
	u := x.MulScalar(2)
	w := autodiff.Sin(x)
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.SetGradient(u, "du"))
	require.NoError(t, tr.SetGradient(w, "dw"))
	require.NoError(t, tr.SetGradient(w, "0.5"))
	require.NoError(t, tr.Backward())

	assert.True(t, strings.HasPrefix(tr.BackwardCode(), "dv2 += du;\ndv3 += dw;\ndv3 += 0.5;\n"), tr.BackwardCode())
}

func TestVar_CompoundAssignment(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float32](tr, "x")
	y := autodiff.Symbol[float32](tr, "y")

	acc := x
	acc.AddAssign(y)
	acc.MulAssign(x)
	acc.SubAssign(y)
	acc.DivAssign(y)
	require.NoError(t, tr.Stop())

	assert.Equal(t, tape.ID(0), x.ID(), "operand must not be rebound")
	assert.Equal(t, tape.ID(5), acc.ID())
	var ops []tape.Op
	for op := range tr.Tape().All() {
		ops = append(ops, op.Op)
	}
	assert.Equal(t, []tape.Op{tape.Symbol, tape.Symbol, tape.Add, tape.Mul, tape.Sub, tape.Div}, ops)
}

func TestVar_ScalarOperandsAreLeaves(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float64](tr, "x")
	z := autodiff.ScalarDiv(3, x.SubScalar(0.25))
	require.NoError(t, tr.Stop())

	assert.Equal(t, tape.Literal, tr.Tape().At(1).Op)
	assert.Equal(t, 0.25, tr.Tape().At(1).Literal)
	assert.Equal(t, tape.Literal, tr.Tape().At(3).Op)
	assert.Equal(t, []tape.ID{3, 2}, tr.Tape().At(z.ID()).Deps())
	assert.Equal(t, "v0 = x;\nv1 = 0.25;\nv2 = v0 - v1;\nv3 = 3;\nv4 = v3 / v2;\n", tr.ForwardCode())
}

func TestVar_Comparisons(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[int32](tr, "i")
	y := autodiff.Symbol[int32](tr, "j")
	cmps := []autodiff.Var[bool]{x.Eq(y), x.Ne(y), x.Le(y), x.Ge(y), x.Lt(y), x.Gt(y), x.GtScalar(3)}
	require.NoError(t, tr.Stop())

	for _, c := range cmps {
		assert.Equal(t, "bool", c.Kind().String())
	}
	for _, stmt := range []string{"v2 = v0 == v1;", "v3 = v0 != v1;", "v4 = v0 <= v1;", "v5 = v0 >= v1;", "v6 = v0 < v1;", "v7 = v0 > v1;", "v9 = v0 > v8;"} {
		assert.Contains(t, tr.ForwardCode(), stmt+"\n")
	}
	assert.Contains(t, tr.Declarations(), "int v0 = 0;\n")
}

func TestConvert(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	x := autodiff.Symbol[float32](tr, "x")
	d := autodiff.Convert[float64](x)
	i := autodiff.Convert[uint32](d)
	f := autodiff.Convert[float32](i)
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.SetGradient(f, "1"))
	require.NoError(t, tr.Backward())

	assert.Contains(t, tr.ForwardCode(), "v1 = (double)(v0);\nv2 = (unsigned int)(v1);\nv3 = (float)(v2);\n")
	// Only the float -> double step carries a gradient.
	assert.Equal(t, "dv3 += 1;\ndv0 += dv1;\n", tr.BackwardCode())
	assert.Equal(t, "float32", f.Kind().String())
}

func TestZero(t *testing.T) {
	tr := autodiff.NewTrace()
	tr.Start()
	autodiff.Zero[float64](tr)
	autodiff.Zero[bool](tr)
	require.NoError(t, tr.Stop())
	assert.Equal(t, "v0 = 0;\nv1 = false;\n", tr.ForwardCode())
}

func TestTrace_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := autodiff.NewTrace(autodiff.WithLogger(zap.New(core)))
	tr.Start()
	x := autodiff.Symbol[float64](tr, "x")
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.SetGradient(x, "1"))
	require.NoError(t, tr.Backward())

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
		assert.Equal(t, tr.ID().String(), entry.ContextMap()["trace"])
	}
	assert.Equal(t, []string{"trace started", "trace stopped", "gradient seeded", "backward emitted"}, messages)
}
