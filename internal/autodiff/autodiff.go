// Package autodiff records scalar computations on symbolic handles and
// generates reverse-mode derivative code for them.
//
// Architecture:
//   - Trace: explicit context owning the tape and the generated text
//   - Var[T]: symbolic handle, an index into its trace's tape
//   - every operation on a Var appends one instruction through Trace.emit
//   - Stop replays the tape forwards, Backward replays it in reverse
//
// Usage:
//
//	tr := autodiff.NewTrace()
//	tr.Start()
//	x := autodiff.Symbol[float32](tr, "x")
//	y := autodiff.Symbol[float32](tr, "y")
//	z := x.Add(y)
//	_ = tr.Stop()
//	_ = tr.SetGradient(z, "1")
//	_ = tr.Backward()
//	fmt.Print(tr.Code())
package autodiff

import (
	"strings"

	"github.com/born-ml/adgen/internal/scalar"
	"github.com/born-ml/adgen/internal/tape"
)

// Handle is any symbolic value recorded on a trace.
type Handle interface {
	ID() tape.ID
	Kind() scalar.Kind
	Trace() *Trace
}

// Var is a symbolic scalar of Go type T. It holds no value, only the id of
// the operation producing it. The zero Var is not attached to any trace.
// Arithmetic and ordering comparisons on Var[bool] panic; use Eq, Ne,
// Select or Convert instead.
type Var[T scalar.Scalar] struct {
	tr *Trace
	id tape.ID
}

// ID returns the id of the producing operation.
func (v Var[T]) ID() tape.ID { return v.id }

// Kind returns the scalar kind of T.
func (v Var[T]) Kind() scalar.Kind { return scalar.Of[T]() }

// Trace returns the owning trace.
func (v Var[T]) Trace() *Trace { return v.tr }

// Gradient returns the generated identifier of v's adjoint.
func (v Var[T]) Gradient() string { return v.tr.Gradient(v) }

func wrap[T scalar.Scalar](tr *Trace, id tape.ID) Var[T] {
	return Var[T]{tr: tr, id: id}
}

// Symbol records a leaf bound to an external name, typically a parameter of
// the generated function. name is copied verbatim into the generated code
// and must not contain '$'.
func Symbol[T scalar.Scalar](tr *Trace, name string) Var[T] {
	if name == "" || strings.Contains(name, "$") {
		panic("autodiff: invalid symbol name " + `"` + name + `"`)
	}
	return wrap[T](tr, tr.emit(tape.Operation{
		Kind:   scalar.Of[T](),
		Op:     tape.Symbol,
		Symbol: name,
	}))
}

// Const records a literal leaf.
func Const[T scalar.Scalar](tr *Trace, v T) Var[T] {
	return wrap[T](tr, tr.emit(tape.Operation{
		Kind:    scalar.Of[T](),
		Op:      tape.Literal,
		Literal: scalar.Bits(v),
	}))
}

// Zero records a zero literal.
func Zero[T scalar.Scalar](tr *Trace) Var[T] {
	var zero T
	return Const(tr, zero)
}

// Convert records a kind conversion. The gradient passes through unchanged
// when the source kind is floating point and is dropped otherwise.
func Convert[To, From scalar.Scalar](v Var[From]) Var[To] {
	return wrap[To](v.tr, v.tr.emit(tape.Operation{
		Kind:   scalar.Of[To](),
		Op:     tape.Convert,
		Source: scalar.Of[From](),
	}, v))
}

// Custom records an operation from raw templates. $v names the result and
// $0..$3 the deps; d$v and d$i their adjoints. An empty backward template
// contributes no gradient.
func Custom[T scalar.Scalar](tr *Trace, forward, backward string, deps ...Handle) Var[T] {
	return wrap[T](tr, tr.emit(tape.Operation{
		Kind:     scalar.Of[T](),
		Op:       tape.Custom,
		Forward:  forward,
		Backward: backward,
	}, deps...))
}

func (v Var[T]) unary(op tape.Op) Var[T] {
	return wrap[T](v.tr, v.tr.emit(tape.Operation{Kind: scalar.Of[T](), Op: op}, v))
}

func (v Var[T]) binary(op tape.Op, rhs Var[T]) Var[T] {
	return wrap[T](v.tr, v.tr.emit(tape.Operation{Kind: scalar.Of[T](), Op: op}, v, rhs))
}

func (v Var[T]) compare(op tape.Op, rhs Var[T]) Var[bool] {
	return wrap[bool](v.tr, v.tr.emit(tape.Operation{Kind: scalar.Bool, Op: op}, v, rhs))
}

// Add returns v + rhs.
func (v Var[T]) Add(rhs Var[T]) Var[T] { return v.binary(tape.Add, rhs) }

// Sub returns v - rhs.
func (v Var[T]) Sub(rhs Var[T]) Var[T] { return v.binary(tape.Sub, rhs) }

// Mul returns v * rhs.
func (v Var[T]) Mul(rhs Var[T]) Var[T] { return v.binary(tape.Mul, rhs) }

// Div returns v / rhs.
func (v Var[T]) Div(rhs Var[T]) Var[T] { return v.binary(tape.Div, rhs) }

// Neg returns -v.
func (v Var[T]) Neg() Var[T] { return v.unary(tape.Neg) }

// The scalar forms record c as a literal leaf first, then the binary op, so
// literals are on the tape like any other value.

// AddScalar returns v + c.
func (v Var[T]) AddScalar(c T) Var[T] { return v.Add(Const(v.tr, c)) }

// SubScalar returns v - c.
func (v Var[T]) SubScalar(c T) Var[T] { return v.Sub(Const(v.tr, c)) }

// MulScalar returns v * c.
func (v Var[T]) MulScalar(c T) Var[T] { return v.Mul(Const(v.tr, c)) }

// DivScalar returns v / c.
func (v Var[T]) DivScalar(c T) Var[T] { return v.Div(Const(v.tr, c)) }

// ScalarAdd returns c + v.
func ScalarAdd[T scalar.Scalar](c T, v Var[T]) Var[T] { return Const(v.tr, c).Add(v) }

// ScalarSub returns c - v.
func ScalarSub[T scalar.Scalar](c T, v Var[T]) Var[T] { return Const(v.tr, c).Sub(v) }

// ScalarMul returns c * v.
func ScalarMul[T scalar.Scalar](c T, v Var[T]) Var[T] { return Const(v.tr, c).Mul(v) }

// ScalarDiv returns c / v.
func ScalarDiv[T scalar.Scalar](c T, v Var[T]) Var[T] { return Const(v.tr, c).Div(v) }

// AddAssign rebinds v to v + rhs.
func (v *Var[T]) AddAssign(rhs Var[T]) { *v = v.Add(rhs) }

// SubAssign rebinds v to v - rhs.
func (v *Var[T]) SubAssign(rhs Var[T]) { *v = v.Sub(rhs) }

// MulAssign rebinds v to v * rhs.
func (v *Var[T]) MulAssign(rhs Var[T]) { *v = v.Mul(rhs) }

// DivAssign rebinds v to v / rhs.
func (v *Var[T]) DivAssign(rhs Var[T]) { *v = v.Div(rhs) }

// Eq returns v == rhs.
func (v Var[T]) Eq(rhs Var[T]) Var[bool] { return v.compare(tape.Eq, rhs) }

// Ne returns v != rhs.
func (v Var[T]) Ne(rhs Var[T]) Var[bool] { return v.compare(tape.Ne, rhs) }

// Le returns v <= rhs.
func (v Var[T]) Le(rhs Var[T]) Var[bool] { return v.compare(tape.Le, rhs) }

// Ge returns v >= rhs.
func (v Var[T]) Ge(rhs Var[T]) Var[bool] { return v.compare(tape.Ge, rhs) }

// Lt returns v < rhs.
func (v Var[T]) Lt(rhs Var[T]) Var[bool] { return v.compare(tape.Lt, rhs) }

// Gt returns v > rhs.
func (v Var[T]) Gt(rhs Var[T]) Var[bool] { return v.compare(tape.Gt, rhs) }

// EqScalar returns v == c.
func (v Var[T]) EqScalar(c T) Var[bool] { return v.Eq(Const(v.tr, c)) }

// NeScalar returns v != c.
func (v Var[T]) NeScalar(c T) Var[bool] { return v.Ne(Const(v.tr, c)) }

// LeScalar returns v <= c.
func (v Var[T]) LeScalar(c T) Var[bool] { return v.Le(Const(v.tr, c)) }

// GeScalar returns v >= c.
func (v Var[T]) GeScalar(c T) Var[bool] { return v.Ge(Const(v.tr, c)) }

// LtScalar returns v < c.
func (v Var[T]) LtScalar(c T) Var[bool] { return v.Lt(Const(v.tr, c)) }

// GtScalar returns v > c.
func (v Var[T]) GtScalar(c T) Var[bool] { return v.Gt(Const(v.tr, c)) }
